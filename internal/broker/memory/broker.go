// Package memory is an in-process broker for tests and single-binary
// deployments. Subscription topics are doublestar globs, so one worker can
// watch a whole topic subtree.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"orbit/internal/broker"
	"orbit/internal/logging"
)

// subscriptionBuffer is the per-subscription channel depth. A publish to a
// subscriber that is this far behind is dropped.
const subscriptionBuffer = 64

var errClosed = errors.New("broker closed")

type subscription struct {
	pattern string
	ch      chan broker.Message
}

// Broker fans published messages out to every matching subscription.
type Broker struct {
	logger *slog.Logger

	mu     sync.Mutex
	subs   []*subscription
	closed bool
}

var _ broker.Conn = (*Broker)(nil)

// New creates an in-process broker.
func New(logger *slog.Logger) *Broker {
	return &Broker{logger: logging.Default(logger).With("component", "broker", "kind", "memory")}
}

func (b *Broker) Publish(_ context.Context, msg broker.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errClosed
	}
	for _, sub := range b.subs {
		ok, err := doublestar.Match(sub.pattern, msg.Topic)
		if err != nil {
			return fmt.Errorf("pattern %q: %w", sub.pattern, err)
		}
		if !ok {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			b.logger.Warn("dropping message for slow subscriber",
				"topic", msg.Topic, "pattern", sub.pattern)
		}
	}
	return nil
}

func (b *Broker) Subscribe(ctx context.Context, topic string) (<-chan broker.Message, error) {
	if !doublestar.ValidatePattern(topic) {
		return nil, fmt.Errorf("invalid topic pattern %q", topic)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errClosed
	}
	sub := &subscription{pattern: topic, ch: make(chan broker.Message, subscriptionBuffer)}
	b.subs = append(b.subs, sub)

	go func() {
		<-ctx.Done()
		b.unsubscribe(sub)
	}()
	return sub.ch, nil
}

func (b *Broker) unsubscribe(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(sub.ch)
			return
		}
	}
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
	return nil
}
