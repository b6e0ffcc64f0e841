package service

import (
	"context"
	"time"

	"netconform/internal/domain"
	"netconform/internal/repository"
)

// Report is the verdict summary of one aggregation pass
type Report struct {
	System    string         `json:"system"`
	Verdict   domain.Verdict `json:"verdict"`
	Generated time.Time      `json:"generated"`
	// Counts tallies entity verdicts, "undefined" for entities without one
	Counts   map[string]int  `json:"counts"`
	Entities []*EntityReport `json:"entities"`
}

// EntityReport describes one entity and, nested, its children
type EntityReport struct {
	ID         int              `json:"id"`
	Kind       string           `json:"kind"`
	Name       string           `json:"name"`
	Status     domain.Status    `json:"status"`
	Verdict    domain.Verdict   `json:"verdict"`
	Addresses  []string         `json:"addresses,omitempty"`
	Properties []PropertyReport `json:"properties,omitempty"`
	Children   []*EntityReport  `json:"children,omitempty"`
}

// PropertyReport is one property of an entity
type PropertyReport struct {
	Key         string         `json:"key"`
	Verdict     domain.Verdict `json:"verdict,omitempty"`
	Explanation string         `json:"exp,omitempty"`
	Value       any            `json:"value,omitempty"`
}

// VerdictName is the report label of a verdict
func VerdictName(v domain.Verdict) string {
	if v == domain.VerdictUndefined {
		return "undefined"
	}
	return string(v)
}

// buildReport walks the graph once with a fresh cache. It must run on the
// reconciliation loop.
func buildReport(ctx context.Context, reg *repository.Registry) (*Report, error) {
	s := reg.System()
	cache := domain.NewVerdictCache()
	r := &Report{
		System:    s.Name,
		Verdict:   s.Verdict(s.ID, cache),
		Generated: time.Now().UTC(),
		Counts:    make(map[string]int),
	}

	var walk func(id domain.ID) (*EntityReport, error)
	walk = func(id domain.ID) (*EntityReport, error) {
		e, ok := s.Get(id)
		if !ok || e.Core().Status == domain.StatusPlaceholder {
			return nil, nil
		}
		er, err := describe(ctx, reg, e, cache)
		if err != nil {
			return nil, err
		}
		r.Counts[VerdictName(er.Verdict)]++
		for _, child := range s.Children(id) {
			ce, err := walk(child)
			if err != nil {
				return nil, err
			}
			if ce != nil {
				er.Children = append(er.Children, ce)
			}
		}
		return er, nil
	}

	for _, id := range s.Children(s.ID) {
		er, err := walk(id)
		if err != nil {
			return nil, err
		}
		if er != nil {
			r.Entities = append(r.Entities, er)
		}
	}
	return r, nil
}

func describe(ctx context.Context, reg *repository.Registry, e domain.Entity, cache *domain.VerdictCache) (*EntityReport, error) {
	s := reg.System()
	b := e.Core()
	durable, err := reg.ID(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	er := &EntityReport{
		ID:      durable,
		Kind:    e.Kind().String(),
		Name:    b.Name,
		Status:  b.Status,
		Verdict: s.Verdict(b.ID, cache),
	}
	if a, ok := domain.AsAddressable(e); ok {
		for _, addr := range a.Addresses {
			er.Addresses = append(er.Addresses, addr.String())
		}
	}
	for _, p := range b.Properties.All() {
		er.Properties = append(er.Properties, PropertyReport{
			Key:         p.Key.String(),
			Verdict:     p.Value.Verdict,
			Explanation: p.Value.Explanation,
			Value:       p.Value.Value,
		})
	}
	return er, nil
}
