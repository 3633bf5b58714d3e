// Package router dispatches broker messages to per-topic handlers. One
// worker per subscription, one message at a time per worker; replies go
// back out through a shared rate limiter.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"orbit/internal/broker"
	"orbit/internal/logging"
)

// HandlerFunc consumes one message and returns the replies to publish.
type HandlerFunc func(ctx context.Context, msg broker.Message) ([]broker.Message, error)

// MalformedMessageError marks a message whose body failed to decode. The
// router drops it with a warning instead of treating it as a handler
// failure.
type MalformedMessageError struct {
	Err error
}

func (e *MalformedMessageError) Error() string { return "malformed message: " + e.Err.Error() }
func (e *MalformedMessageError) Unwrap() error { return e.Err }

// Malformed wraps a decode failure.
func Malformed(err error) error { return &MalformedMessageError{Err: err} }

// Tap observes every inbound message before dispatch.
type Tap interface {
	Record(ctx context.Context, msg broker.Message) error
}

// Config configures a Router.
type Config struct {
	Conn    broker.Conn
	Logger  *slog.Logger
	Limiter *rate.Limiter
	Tap     Tap
}

type route struct {
	topic   string
	handler HandlerFunc
}

// Router owns the subscriptions and their workers.
type Router struct {
	conn    broker.Conn
	logger  *slog.Logger
	limiter *rate.Limiter
	tap     Tap
	routes  []route
	ready   chan struct{}
}

// New creates a Router. A nil limiter means unlimited publishing.
func New(cfg Config) *Router {
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Router{
		conn:    cfg.Conn,
		logger:  logging.Default(cfg.Logger).With("component", "router"),
		limiter: limiter,
		tap:     cfg.Tap,
		ready:   make(chan struct{}),
	}
}

// Ready is closed once Run has subscribed every route. Messages published
// before that are not delivered.
func (r *Router) Ready() <-chan struct{} { return r.ready }

// Handle registers a handler for a topic. Registration order decides the
// subscription order.
func (r *Router) Handle(topic string, h HandlerFunc) {
	r.routes = append(r.routes, route{topic: topic, handler: h})
}

// Run subscribes every route and blocks until the context is cancelled and
// all workers drained their channels.
func (r *Router) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, rt := range r.routes {
		ch, err := r.conn.Subscribe(ctx, rt.topic)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", rt.topic, err)
		}
		g.Go(func() error {
			r.worker(ctx, rt, ch)
			return nil
		})
	}
	close(r.ready)
	r.logger.Info("router running", "routes", len(r.routes))
	return g.Wait()
}

func (r *Router) worker(ctx context.Context, rt route, ch <-chan broker.Message) {
	for msg := range ch {
		if r.tap != nil {
			if err := r.tap.Record(ctx, msg); err != nil {
				r.logger.Warn("archive tap failed", "topic", msg.Topic, "error", err)
			}
		}

		replies, err := rt.handler(ctx, msg)
		if err != nil {
			var malformed *MalformedMessageError
			if errors.As(err, &malformed) {
				r.logger.Warn("dropping malformed message", "topic", msg.Topic, "error", err)
			} else {
				r.logger.Error("handler failed", "topic", msg.Topic, "error", err)
			}
			continue
		}

		for _, reply := range replies {
			if err := r.limiter.Wait(ctx); err != nil {
				return
			}
			if err := r.conn.Publish(ctx, reply); err != nil {
				r.logger.Error("publish reply failed",
					"topic", msg.Topic, "reply_topic", reply.Topic, "error", err)
			}
		}
	}
}
