package service

import (
	"context"
	"log/slog"

	"netconform/internal/domain"
	"netconform/internal/repository"
)

// EntitySummary is the payload of change events
type EntitySummary struct {
	ID      int            `json:"id"`
	Kind    string         `json:"kind"`
	Name    string         `json:"name"`
	Status  domain.Status  `json:"status"`
	Verdict domain.Verdict `json:"verdict"`
}

// busListener forwards inspector notifications to the event bus
type busListener struct {
	registry *repository.Registry
	bus      *EventBus
	metrics  *Metrics
}

func (l *busListener) HostChanged(h *domain.Host) {
	l.publish(EventHostChanged, h)
}

func (l *busListener) ConnectionChanged(c *domain.Connection) {
	l.publish(EventConnectionChanged, c)
}

func (l *busListener) publish(t EventType, e domain.Entity) {
	summary, err := summarize(context.Background(), l.registry, e)
	if err != nil {
		slog.Warn("Reconciler: cannot identify changed entity", "entity", e.Core().Name, "error", err)
		return
	}
	dropped := l.bus.Publish(Event{Type: t, Payload: summary})
	l.metrics.notified(t, dropped)
}

func summarize(ctx context.Context, reg *repository.Registry, e domain.Entity) (EntitySummary, error) {
	b := e.Core()
	durable, err := reg.ID(ctx, b.ID)
	if err != nil {
		return EntitySummary{}, err
	}
	return EntitySummary{
		ID:      durable,
		Kind:    e.Kind().String(),
		Name:    reg.System().LongName(b.ID),
		Status:  b.Status,
		Verdict: reg.System().Verdict(b.ID, domain.NewVerdictCache()),
	}, nil
}
