// Package mqtt5 adapts an MQTT 5 broker. Unlike 3.1.1, the protocol carries
// content metadata natively: the content type travels as a publish property
// and the content encoding as a user property.
package mqtt5

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"orbit/internal/broker"
	"orbit/internal/logging"
)

const qos = 1

const subscriptionBuffer = 64

// contentEncodingProp is the user property carrying the body compression.
const contentEncodingProp = "content-encoding"

// Config holds the MQTT 5 connection parameters.
type Config struct {
	URL      string
	ClientID string
	Username string
	Password string
	Logger   *slog.Logger
}

// Conn is a connection to an MQTT 5 broker.
type Conn struct {
	cm     *autopaho.ConnectionManager
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]chan broker.Message
}

var _ broker.Conn = (*Conn)(nil)

// Dial connects to the broker and blocks until the first connection is up.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("broker url %q: %w", cfg.URL, err)
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = broker.ClientID("orbit")
	}
	logger := logging.Default(cfg.Logger).With("component", "broker", "kind", "mqtt5")

	conn := &Conn{logger: logger, subs: make(map[string]chan broker.Message)}
	clientCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		KeepAlive:                     30,
		CleanStartOnInitialConnection: true,
		ConnectUsername:               cfg.Username,
		ConnectPassword:               []byte(cfg.Password),
		OnConnectError: func(err error) {
			logger.Warn("connect error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: clientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				conn.onPublish,
			},
			OnClientError: func(err error) {
				logger.Warn("client error", "error", err)
			},
		},
	}

	cm, err := autopaho.NewConnection(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.URL, err)
	}
	if err := cm.AwaitConnection(ctx); err != nil {
		return nil, fmt.Errorf("await connection %s: %w", cfg.URL, err)
	}
	conn.cm = cm
	logger.Info("connected", "url", cfg.URL, "client_id", clientID)
	return conn, nil
}

func (c *Conn) onPublish(pr paho.PublishReceived) (bool, error) {
	msg := broker.Message{
		Topic: pr.Packet.Topic,
		Body:  pr.Packet.Payload,
	}
	if props := pr.Packet.Properties; props != nil {
		msg.ContentType = props.ContentType
		msg.ContentEncoding = props.User.Get(contentEncodingProp)
	}

	// The non-blocking send happens under the lock so a concurrent
	// unsubscribe cannot close the channel mid-send.
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.subs[msg.Topic]
	if !ok {
		c.logger.Warn("message on topic without subscriber", "topic", msg.Topic)
		return false, nil
	}
	select {
	case ch <- msg:
	default:
		c.logger.Warn("dropping message for slow subscriber", "topic", msg.Topic)
	}
	return true, nil
}

func (c *Conn) Publish(ctx context.Context, msg broker.Message) error {
	props := &paho.PublishProperties{ContentType: msg.ContentType}
	if msg.ContentEncoding != "" {
		props.User = append(props.User, paho.UserProperty{
			Key:   contentEncodingProp,
			Value: msg.ContentEncoding,
		})
	}
	_, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:      msg.Topic,
		QoS:        qos,
		Payload:    msg.Body,
		Properties: props,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", msg.Topic, err)
	}
	return nil
}

func (c *Conn) Subscribe(ctx context.Context, topic string) (<-chan broker.Message, error) {
	ch := make(chan broker.Message, subscriptionBuffer)
	c.mu.Lock()
	if _, exists := c.subs[topic]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("already subscribed to %s", topic)
	}
	c.subs[topic] = ch
	c.mu.Unlock()

	_, err := c.cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: topic, QoS: qos}},
	})
	if err != nil {
		c.dropSubscription(topic)
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	go func() {
		<-ctx.Done()
		if _, err := c.cm.Unsubscribe(context.Background(), &paho.Unsubscribe{Topics: []string{topic}}); err != nil {
			c.logger.Warn("unsubscribe failed", "topic", topic, "error", err)
		}
		c.dropSubscription(topic)
	}()
	return ch, nil
}

func (c *Conn) dropSubscription(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.subs[topic]; ok {
		delete(c.subs, topic)
		close(ch)
	}
}

func (c *Conn) Close() error {
	c.mu.Lock()
	for topic, ch := range c.subs {
		delete(c.subs, topic)
		close(ch)
	}
	c.mu.Unlock()
	return c.cm.Disconnect(context.Background())
}
