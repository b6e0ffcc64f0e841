package repository

import (
	"context"
	"fmt"
	"sync"

	"netconform/internal/domain"
)

// Registry maps the arena IDs of one System to durable IDs of an
// EntityDatabase. Collaborators outside the reconciliation loop only ever
// see durable IDs.
type Registry struct {
	db     EntityDatabase
	system *domain.System

	mu      sync.RWMutex
	durable map[domain.ID]int
	arena   map[int]domain.ID
}

// NewRegistry creates a registry over a system and database
func NewRegistry(system *domain.System, db EntityDatabase) *Registry {
	return &Registry{
		db:      db,
		system:  system,
		durable: make(map[domain.ID]int),
		arena:   make(map[int]domain.ID),
	}
}

// System returns the mapped system
func (r *Registry) System() *domain.System {
	return r.system
}

// KeyOf derives the structural key of an entity
func (r *Registry) KeyOf(ctx context.Context, id domain.ID) (Key, error) {
	e, ok := r.system.Get(id)
	if !ok {
		return Key{}, fmt.Errorf("entity %d: %w", id, domain.ErrNotFound)
	}
	key := Key{Kind: e.Kind()}
	var err error
	switch v := e.(type) {
	case *domain.System:
		key.Name = v.Name
	case *domain.Host:
		key.Name = r.system.LongName(v.ID)
	case *domain.Service:
		key.Name = v.Name
		key.Parent, err = r.ID(ctx, v.Parent)
	case *domain.Component:
		key.Name = v.Name
		key.Parent, err = r.ID(ctx, v.Owner)
	case *domain.Connection:
		if key.Parent, err = r.ID(ctx, v.Source); err == nil {
			key.Target, err = r.ID(ctx, v.Target)
		}
	}
	if err != nil {
		return Key{}, err
	}
	return key, nil
}

// ID returns the durable ID of an arena entity
func (r *Registry) ID(ctx context.Context, id domain.ID) (int, error) {
	r.mu.RLock()
	d, ok := r.durable[id]
	r.mu.RUnlock()
	if ok {
		return d, nil
	}

	key, err := r.KeyOf(ctx, id)
	if err != nil {
		return 0, err
	}
	d, err = r.db.GetID(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("failed to get id for %s: %w", key, err)
	}

	r.mu.Lock()
	r.durable[id] = d
	r.arena[d] = id
	r.mu.Unlock()
	return d, nil
}

// Arena returns the arena ID for a durable ID. Entities created since the
// last lookup are identified first, so IDs of lazily created entities
// resolve as soon as they exist.
func (r *Registry) Arena(ctx context.Context, durable int) (domain.ID, error) {
	r.mu.RLock()
	id, ok := r.arena[durable]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}
	if err := r.Sync(ctx); err != nil {
		return domain.NoID, err
	}
	r.mu.RLock()
	id, ok = r.arena[durable]
	r.mu.RUnlock()
	if !ok {
		return domain.NoID, fmt.Errorf("entity id %d: %w", durable, domain.ErrNotFound)
	}
	return id, nil
}

// Entity resolves a durable ID, the get_entity contract of the database
func (r *Registry) Entity(ctx context.Context, durable int) (domain.Entity, error) {
	id, err := r.Arena(ctx, durable)
	if err != nil {
		return nil, err
	}
	e, _ := r.system.Get(id)
	return e, nil
}

// Sync assigns durable IDs to every entity of the system not mapped yet
func (r *Registry) Sync(ctx context.Context) error {
	for _, e := range r.system.Entities() {
		r.mu.RLock()
		_, ok := r.durable[e.EntityID()]
		r.mu.RUnlock()
		if ok {
			continue
		}
		if _, err := r.ID(ctx, e.EntityID()); err != nil {
			return err
		}
	}
	return nil
}
