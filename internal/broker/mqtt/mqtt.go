// Package mqtt adapts an MQTT 3.1.1 broker. The protocol carries no content
// metadata, so bodies travel bare and the codec sniffs compression on the
// way in.
package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"

	"orbit/internal/broker"
	"orbit/internal/logging"
)

// qos 1: at-least-once, matching the store's replace-by-id idempotence.
const qos = 1

const subscriptionBuffer = 64

// Config holds the MQTT connection parameters.
type Config struct {
	URL      string
	ClientID string
	Username string
	Password string
	Logger   *slog.Logger
}

// Conn is a connection to an MQTT 3.1.1 broker.
type Conn struct {
	client paho.Client
	logger *slog.Logger

	mu     sync.Mutex
	cancel []context.CancelFunc
}

var _ broker.Conn = (*Conn)(nil)

// Dial connects to the broker.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = broker.ClientID("orbit")
	}
	opts := paho.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(clientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true)

	logger := logging.Default(cfg.Logger).With("component", "broker", "kind", "mqtt")
	client := paho.NewClient(opts)
	if err := wait(ctx, client.Connect()); err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.URL, err)
	}
	logger.Info("connected", "url", cfg.URL, "client_id", clientID)
	return &Conn{client: client, logger: logger}, nil
}

func (c *Conn) Publish(ctx context.Context, msg broker.Message) error {
	if err := wait(ctx, c.client.Publish(msg.Topic, qos, false, msg.Body)); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Topic, err)
	}
	return nil
}

func (c *Conn) Subscribe(ctx context.Context, topic string) (<-chan broker.Message, error) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = append(c.cancel, cancel)
	c.mu.Unlock()

	out := make(chan broker.Message, subscriptionBuffer)
	token := c.client.Subscribe(topic, qos, func(_ paho.Client, m paho.Message) {
		if ctx.Err() != nil {
			return
		}
		select {
		case out <- broker.Message{Topic: m.Topic(), Body: m.Payload()}:
		default:
			c.logger.Warn("dropping message for slow subscriber", "topic", m.Topic())
		}
	})
	if err := wait(ctx, token); err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	go func() {
		<-ctx.Done()
		if t := c.client.Unsubscribe(topic); t.Wait() && t.Error() != nil {
			c.logger.Warn("unsubscribe failed", "topic", topic, "error", t.Error())
		}
		close(out)
	}()
	return out, nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	for _, cancel := range c.cancel {
		cancel()
	}
	c.cancel = nil
	c.mu.Unlock()
	c.client.Disconnect(250)
	return nil
}

// wait blocks on a paho token, honoring context cancellation.
func wait(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
