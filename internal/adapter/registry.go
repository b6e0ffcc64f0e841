package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"netconform/internal/evidence"
)

// Registry runs collectors in registration order and submits their events
type Registry struct {
	mu         sync.RWMutex
	collectors []Collector
	names      map[string]bool
	submit     SubmitFunc
}

// NewRegistry creates a registry that hands collected events to submit
func NewRegistry(submit SubmitFunc) *Registry {
	return &Registry{
		names:  make(map[string]bool),
		submit: submit,
	}
}

// Register adds a collector to the end of the run order
func (r *Registry) Register(c Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if r.names[name] {
		return fmt.Errorf("collector %s already registered", name)
	}
	r.names[name] = true
	r.collectors = append(r.collectors, c)
	slog.Info("Registered collector", "name", name, "position", len(r.collectors))
	return nil
}

// Names returns the registered collector names in run order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.collectors))
	for i, c := range r.collectors {
		names[i] = c.Name()
	}
	return names
}

// Run collects from every collector once. A failing collector is logged and
// skipped; a failing submit stops the run.
func (r *Registry) Run(ctx context.Context) (int, error) {
	r.mu.RLock()
	collectors := append([]Collector(nil), r.collectors...)
	r.mu.RUnlock()

	var seen []evidence.Event
	total := 0
	for _, c := range collectors {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		if f, ok := c.(Follower); ok {
			f.Follow(seen)
		}

		events, err := c.Collect(ctx)
		if err != nil {
			slog.Warn("Collector failed", "name", c.Name(), "error", err)
			continue
		}
		if len(events) == 0 {
			slog.Debug("Collector found nothing", "name", c.Name())
			continue
		}

		n, err := r.submit(ctx, events)
		total += n
		if err != nil {
			return total, fmt.Errorf("collector %s: %w", c.Name(), err)
		}
		slog.Info("Collector submitted events", "name", c.Name(), "events", n)
		seen = append(seen, events...)
	}
	return total, nil
}
