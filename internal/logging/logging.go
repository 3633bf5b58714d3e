// Package logging provides utilities for structured logging across the system.
//
// Design principles:
//   - Logging is dependency-injected, never global
//   - Each component owns its own scoped logger
//   - Logger scoping happens once at construction time
//   - slog.With() is used to attach default attributes
//   - If no logger is provided, a discard logger is used
//
// Global configuration (output format, level, destination) belongs only in main().
// Components must never call slog.SetDefault or access global loggers.
//
// Logging is intentionally sparse:
//   - No logging inside tight loops (clustering, geometry sweeps, store scans)
//   - Lifecycle boundaries and handler outcomes are the intended log points
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// discardHandler is a handler that discards all log records.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Discard returns a logger that discards all output.
// Use this as a default when no logger is provided.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// Default returns the provided logger if non-nil, otherwise returns a discard logger.
// This is the standard pattern for optional logger parameters:
//
//	func NewComponent(logger *slog.Logger) *Component {
//	    logger = logging.Default(logger)
//	    return &Component{logger: logger.With("component", "name")}
//	}
func Default(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return Discard()
}

// ParseLevel converts a level name ("debug", "info", "warn", "error") into a
// slog.Level. The comparison is case-insensitive.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// ComponentFilterHandler filters records by the "component" attribute, so
// individual components can be raised to DEBUG at runtime while the rest of
// the process stays at the default level. Level overrides are shared across
// all clones produced by WithAttrs/WithGroup.
type ComponentFilterHandler struct {
	next slog.Handler
	def  slog.Level

	mu     *sync.RWMutex
	levels map[string]slog.Level

	// component is set when a clone was created via WithAttrs with a
	// "component" attribute, which lets Enabled answer precisely.
	component string
}

// NewComponentFilterHandler wraps next with per-component level filtering.
// Records without a component attribute, and components without an override,
// are filtered at defaultLevel.
func NewComponentFilterHandler(next slog.Handler, defaultLevel slog.Level) *ComponentFilterHandler {
	return &ComponentFilterHandler{
		next:   next,
		def:    defaultLevel,
		mu:     new(sync.RWMutex),
		levels: make(map[string]slog.Level),
	}
}

// SetLevel overrides the minimum level for one component.
func (h *ComponentFilterHandler) SetLevel(component string, level slog.Level) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.levels[component] = level
}

// ClearLevel removes a component override, restoring the default level.
func (h *ComponentFilterHandler) ClearLevel(component string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.levels, component)
}

// Level reports the effective minimum level for a component.
func (h *ComponentFilterHandler) Level(component string) slog.Level {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if level, ok := h.levels[component]; ok {
		return level
	}
	return h.def
}

// DefaultLevel reports the level applied to components without an override.
func (h *ComponentFilterHandler) DefaultLevel() slog.Level {
	return h.def
}

// minLevel is the lowest level any record could be accepted at. Enabled has
// no access to record attributes, so it must be optimistic when overrides
// below the default exist; Handle does the precise check.
func (h *ComponentFilterHandler) minLevel() slog.Level {
	h.mu.RLock()
	defer h.mu.RUnlock()
	min := h.def
	for _, level := range h.levels {
		if level < min {
			min = level
		}
	}
	return min
}

func (h *ComponentFilterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.component != "" {
		return level >= h.Level(h.component)
	}
	return level >= h.minLevel()
}

func (h *ComponentFilterHandler) Handle(ctx context.Context, r slog.Record) error {
	component := h.component
	if component == "" {
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == "component" {
				component = a.Value.String()
				return false
			}
			return true
		})
	}
	if r.Level < h.Level(component) {
		return nil
	}
	if h.next == nil {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *ComponentFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	if h.next != nil {
		clone.next = h.next.WithAttrs(attrs)
	}
	for _, a := range attrs {
		if a.Key == "component" {
			clone.component = a.Value.String()
		}
	}
	return &clone
}

func (h *ComponentFilterHandler) WithGroup(name string) slog.Handler {
	clone := *h
	if h.next != nil {
		clone.next = h.next.WithGroup(name)
	}
	return &clone
}
