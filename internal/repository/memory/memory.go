// Package memory is an in-memory EntityDatabase
package memory

import (
	"context"
	"sync"

	"netconform/internal/evidence"
	"netconform/internal/repository"
)

// Database keeps IDs and the event trail in memory
type Database struct {
	mu     sync.Mutex
	ids    map[string]int
	nextID int
	trail  []repository.Record
	filter map[string]bool
	cursor int
	seq    int64
}

// New creates an empty database
func New() *Database {
	return &Database{
		ids:    make(map[string]int),
		nextID: 1,
		filter: make(map[string]bool),
	}
}

// GetID implements repository.EntityDatabase
func (d *Database) GetID(_ context.Context, key repository.Key) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := key.String()
	if id, ok := d.ids[k]; ok {
		return id, nil
	}
	id := d.nextID
	d.nextID++
	d.ids[k] = id
	return id, nil
}

// PutEvent implements repository.EntityDatabase
func (d *Database) PutEvent(_ context.Context, rec repository.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	rec.Seq = d.seq
	if _, ok := d.filter[rec.Label]; !ok {
		d.filter[rec.Label] = true
	}
	d.trail = append(d.trail, rec)
	return nil
}

// Reset implements repository.EntityDatabase
func (d *Database) Reset(_ context.Context, filter map[string]bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for label, on := range filter {
		d.filter[label] = on
	}
	d.cursor = 0
	return nil
}

// NextPending implements repository.EntityDatabase
func (d *Database) NextPending(_ context.Context) (repository.Record, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.cursor < len(d.trail) {
		rec := d.trail[d.cursor]
		d.cursor++
		if rec.Model || rec.Label == evidence.ModelLabel || d.filter[rec.Label] {
			return rec, true, nil
		}
	}
	return repository.Record{}, false, nil
}

// Labels implements repository.EntityDatabase
func (d *Database) Labels(_ context.Context) (map[string]bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]bool, len(d.filter))
	for k, v := range d.filter {
		out[k] = v
	}
	return out, nil
}

// PurgeModelEvents implements repository.EntityDatabase
func (d *Database) PurgeModelEvents(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.trail[:0]
	for _, rec := range d.trail {
		if !rec.Model {
			kept = append(kept, rec)
		}
	}
	d.trail = kept
	d.cursor = 0
	return nil
}

// Close implements repository.EntityDatabase
func (d *Database) Close() error {
	return nil
}
