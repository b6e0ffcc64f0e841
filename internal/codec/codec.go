package codec

import (
	"context"

	"netconform/internal/domain"
	"netconform/internal/evidence"
)

// Resolver translates entity references between arena IDs and the durable
// IDs used on the wire
type Resolver interface {
	ID(ctx context.Context, id domain.ID) (int, error)
	Arena(ctx context.Context, durable int) (domain.ID, error)
}

// EventReader reads evidence events from a stream. Next returns io.EOF
// once the stream is exhausted.
type EventReader interface {
	Next(ctx context.Context) (evidence.Event, error)
}
