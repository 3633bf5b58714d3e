// Package kafka adapts a Kafka cluster using franz-go. Queue names use `/`
// as a separator, which Kafka topic names do not allow, so topics are
// rewritten with `.` on the wire and mapped back on receipt. Content
// metadata travels in record headers.
package kafka

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"github.com/twmb/franz-go/pkg/sasl/scram"

	"orbit/internal/broker"
	"orbit/internal/logging"
)

const subscriptionBuffer = 64

const (
	headerContentType     = "content-type"
	headerContentEncoding = "content-encoding"
)

// SASLConfig holds SASL authentication parameters.
type SASLConfig struct {
	Mechanism string // "plain", "scram-sha-256", "scram-sha-512"
	User      string
	Password  string
}

// Config holds the Kafka connection parameters.
type Config struct {
	Brokers []string
	Group   string
	TLS     bool
	SASL    *SASLConfig
	Logger  *slog.Logger
}

// Conn is a connection to a Kafka cluster.
type Conn struct {
	client *kgo.Client
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	subs map[string]chan broker.Message
}

var _ broker.Conn = (*Conn)(nil)

// Dial connects to the cluster and starts the shared poll loop. Topics are
// added to the consumer as subscriptions arrive.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	group := cfg.Group
	if group == "" {
		group = "orbit"
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(group),
	}
	if cfg.TLS {
		opts = append(opts, kgo.DialTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12}))
	}
	if cfg.SASL != nil {
		mech, err := buildSASLMechanism(cfg.SASL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, kgo.SASL(mech))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("kafka ping: %w", err)
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	conn := &Conn{
		client: client,
		logger: logging.Default(cfg.Logger).With("component", "broker", "kind", "kafka"),
		cancel: cancel,
		done:   make(chan struct{}),
		subs:   make(map[string]chan broker.Message),
	}
	go conn.poll(pollCtx)
	conn.logger.Info("connected", "brokers", cfg.Brokers, "group", group)
	return conn, nil
}

// wireTopic maps a queue name to a Kafka topic name.
func wireTopic(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}

// queueTopic maps a Kafka topic name back to the queue name.
func queueTopic(topic string) string {
	return strings.ReplaceAll(topic, ".", "/")
}

func (c *Conn) Publish(ctx context.Context, msg broker.Message) error {
	rec := &kgo.Record{
		Topic: wireTopic(msg.Topic),
		Value: msg.Body,
	}
	if msg.ContentType != "" {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: headerContentType, Value: []byte(msg.ContentType)})
	}
	if msg.ContentEncoding != "" {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: headerContentEncoding, Value: []byte(msg.ContentEncoding)})
	}
	if err := c.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce %s: %w", msg.Topic, err)
	}
	return nil
}

func (c *Conn) Subscribe(ctx context.Context, topic string) (<-chan broker.Message, error) {
	ch := make(chan broker.Message, subscriptionBuffer)
	wire := wireTopic(topic)

	c.mu.Lock()
	if _, exists := c.subs[wire]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("already subscribed to %s", topic)
	}
	c.subs[wire] = ch
	c.mu.Unlock()

	c.client.AddConsumeTopics(wire)
	go func() {
		<-ctx.Done()
		c.dropSubscription(wire)
	}()
	return ch, nil
}

func (c *Conn) dropSubscription(wire string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.subs[wire]; ok {
		delete(c.subs, wire)
		close(ch)
	}
}

// poll is the shared consumer loop, fanning records out to subscriptions by
// topic.
func (c *Conn) poll(ctx context.Context) {
	defer close(c.done)
	for {
		fetches := c.client.PollFetches(ctx)
		if ctx.Err() != nil {
			_ = c.client.CommitUncommittedOffsets(context.Background())
			return
		}
		for _, err := range fetches.Errors() {
			c.logger.Warn("fetch error", "topic", err.Topic, "partition", err.Partition, "error", err.Err)
		}
		fetches.EachRecord(func(rec *kgo.Record) {
			msg := broker.Message{Topic: queueTopic(rec.Topic), Body: rec.Value}
			for _, h := range rec.Headers {
				switch h.Key {
				case headerContentType:
					msg.ContentType = string(h.Value)
				case headerContentEncoding:
					msg.ContentEncoding = string(h.Value)
				}
			}

			c.mu.Lock()
			ch, ok := c.subs[rec.Topic]
			if !ok {
				c.mu.Unlock()
				c.logger.Warn("record on topic without subscriber", "topic", rec.Topic)
				return
			}
			select {
			case ch <- msg:
			default:
				c.logger.Warn("dropping message for slow subscriber", "topic", msg.Topic)
			}
			c.mu.Unlock()
		})
	}
}

func (c *Conn) Close() error {
	c.cancel()
	<-c.done
	c.mu.Lock()
	for wire, ch := range c.subs {
		delete(c.subs, wire)
		close(ch)
	}
	c.mu.Unlock()
	c.client.Close()
	return nil
}

func buildSASLMechanism(cfg *SASLConfig) (sasl.Mechanism, error) {
	switch strings.ToLower(cfg.Mechanism) {
	case "plain":
		return plain.Auth{User: cfg.User, Pass: cfg.Password}.AsMechanism(), nil
	case "scram-sha-256":
		return scram.Auth{User: cfg.User, Pass: cfg.Password}.AsSha256Mechanism(), nil
	case "scram-sha-512":
		return scram.Auth{User: cfg.User, Pass: cfg.Password}.AsSha512Mechanism(), nil
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism %q", cfg.Mechanism)
	}
}
