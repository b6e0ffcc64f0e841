package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"netconform/internal/domain"
)

// EntityDatabase assigns durable entity IDs and keeps the evidence event log
type EntityDatabase interface {
	// GetID returns the durable ID of a structural key, assigning the next
	// free ID the first time the key is seen
	GetID(ctx context.Context, key Key) (int, error)

	// PutEvent appends an encoded event to the log. A label the database has
	// not seen before becomes enabled.
	PutEvent(ctx context.Context, rec Record) error

	// Reset rewinds replay to the start of the log and overrides the
	// enabled state of the labels named in filter
	Reset(ctx context.Context, filter map[string]bool) error

	// NextPending returns the next logged event of an enabled label in
	// arrival order. ok is false once the log is exhausted.
	NextPending(ctx context.Context) (rec Record, ok bool, err error)

	// Labels returns every known label with its enabled state
	Labels(ctx context.Context) (map[string]bool, error)

	// PurgeModelEvents removes the synthetic events of the declared model
	PurgeModelEvents(ctx context.Context) error

	Close() error
}

// Record is one logged event in its encoded form
type Record struct {
	Seq   int64
	Label string
	Model bool
	Kind  string
	Data  []byte
}

// Key is the structural identity of an entity. Parent and Target are
// durable IDs, so equal structures map to equal keys across runs.
type Key struct {
	Kind   domain.Kind
	Name   string
	Parent int
	Target int
}

// String renders the key in the form stored by the databases
func (k Key) String() string {
	switch k.Kind {
	case domain.KindService, domain.KindComponent:
		return k.Kind.String() + "|" + k.Name + "|" + strconv.Itoa(k.Parent)
	case domain.KindConnection:
		return k.Kind.String() + "|" + strconv.Itoa(k.Parent) + "|" + strconv.Itoa(k.Target)
	}
	return k.Kind.String() + "|" + k.Name
}

// ParseKey reads the stored form of a key
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, "|")
	var kind domain.Kind
	for k := domain.KindSystem; k <= domain.KindComponent; k++ {
		if k.String() == parts[0] {
			kind = k
		}
	}
	if kind == 0 {
		return Key{}, fmt.Errorf("invalid entity key %q", s)
	}
	key := Key{Kind: kind}
	var err error
	switch {
	case kind == domain.KindConnection && len(parts) == 3:
		if key.Parent, err = strconv.Atoi(parts[1]); err == nil {
			key.Target, err = strconv.Atoi(parts[2])
		}
	case (kind == domain.KindService || kind == domain.KindComponent) && len(parts) >= 3:
		// names may contain the separator, the parent ID is always last
		key.Name = strings.Join(parts[1:len(parts)-1], "|")
		key.Parent, err = strconv.Atoi(parts[len(parts)-1])
	case kind == domain.KindSystem || kind == domain.KindHost:
		key.Name = strings.Join(parts[1:], "|")
	default:
		return Key{}, fmt.Errorf("invalid entity key %q", s)
	}
	if err != nil {
		return Key{}, fmt.Errorf("invalid entity key %q: %w", s, err)
	}
	return key, nil
}
