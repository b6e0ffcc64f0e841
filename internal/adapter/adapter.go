package adapter

import (
	"context"

	"netconform/internal/evidence"
)

// Collector produces evidence events from an external tool
type Collector interface {
	// Name returns the unique identifier for this collector
	Name() string

	// Collect runs the tool once and returns the events in the order they
	// should be consumed
	Collect(ctx context.Context) ([]evidence.Event, error)
}

// Follower is a Collector that builds its work list from the events
// collected before it in the same run
type Follower interface {
	Collector

	// Follow is called with every event collected earlier in the run
	Follow(events []evidence.Event)
}

// SubmitFunc consumes a batch of events and returns how many were applied.
// Reconciler.SubmitAll has this shape.
type SubmitFunc func(ctx context.Context, events []evidence.Event) (int, error)
