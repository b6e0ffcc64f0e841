package codec

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"netconform/internal/domain"
	"netconform/internal/evidence"
)

// wireEvent is the JSON form of every event kind. Addresses travel in
// their parseable string form and entities by durable ID.
type wireEvent struct {
	Kind      evidence.Kind    `json:"kind"`
	Source    *evidence.Source `json:"source,omitempty"`
	Timestamp *time.Time       `json:"ts,omitempty"`
	Reference string           `json:"ref,omitempty"`

	// flow
	Protocol   domain.Protocol `json:"protocol,omitempty"`
	From       *wireEnd        `json:"from,omitempty"`
	To         *wireEnd        `json:"to,omitempty"`
	Properties []wireProperty  `json:"properties,omitempty"`

	// name
	Name    string `json:"name,omitempty"`
	Service int    `json:"service,omitempty"`
	Peers   []int  `json:"peers,omitempty"`

	// property updates
	Entity  int                   `json:"entity,omitempty"`
	Address string                `json:"address,omitempty"`
	Key     string                `json:"key,omitempty"`
	Model   bool                  `json:"model,omitempty"`
	Value   *domain.PropertyValue `json:"value,omitempty"`

	// scans
	Endpoint  string   `json:"endpoint,omitempty"`
	Host      string   `json:"host,omitempty"`
	Endpoints []string `json:"endpoints,omitempty"`
}

type wireEnd struct {
	HW   string `json:"hw,omitempty"`
	IP   string `json:"ip,omitempty"`
	Port int    `json:"port"`
}

type wireProperty struct {
	Key   string               `json:"key"`
	Model bool                 `json:"model,omitempty"`
	Value domain.PropertyValue `json:"value"`
}

// JSONCodec encodes events to JSON and back
type JSONCodec struct {
	resolver Resolver
}

// NewJSONCodec creates a codec resolving entity references with r
func NewJSONCodec(r Resolver) *JSONCodec {
	return &JSONCodec{resolver: r}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// Encode serializes an event
func (c *JSONCodec) Encode(ctx context.Context, ev evidence.Event) ([]byte, error) {
	w, err := c.toWire(ctx, ev)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", ev.Kind(), err)
	}
	return data, nil
}

// Decode parses one event. Events without a source get fallback.
func (c *JSONCodec) Decode(ctx context.Context, data []byte, fallback *evidence.Source) (evidence.Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to parse event: %w", err)
	}
	return c.fromWire(ctx, &w, fallback)
}

func (c *JSONCodec) toWire(ctx context.Context, ev evidence.Event) (*wireEvent, error) {
	prov := ev.Provenance()
	w := &wireEvent{
		Kind:      ev.Kind(),
		Source:    prov.Source,
		Reference: prov.Reference,
	}
	if !prov.Timestamp.IsZero() {
		ts := prov.Timestamp
		w.Timestamp = &ts
	}

	var err error
	switch e := ev.(type) {
	case *evidence.Flow:
		w.Protocol = e.Protocol
		w.From = endToWire(e.Source)
		w.To = endToWire(e.Target)
		for _, p := range e.Properties {
			w.Properties = append(w.Properties, wireProperty{Key: p.Key.String(), Model: p.Key.IsModel(), Value: p.Value})
		}
	case *evidence.Name:
		w.Name = e.Name.String()
		w.Address = addressToWire(e.Address)
		if e.Service != domain.NoID {
			if w.Service, err = c.resolver.ID(ctx, e.Service); err != nil {
				return nil, err
			}
		}
		for _, p := range e.Peers {
			id, err := c.resolver.ID(ctx, p)
			if err != nil {
				return nil, err
			}
			w.Peers = append(w.Peers, id)
		}
	case *evidence.PropertyUpdate:
		if w.Entity, err = c.resolver.ID(ctx, e.Entity); err != nil {
			return nil, err
		}
		w.Key, w.Model = e.Key.String(), e.Key.IsModel()
		v := e.Value
		w.Value = &v
	case *evidence.PropertyAddressUpdate:
		w.Address = addressToWire(e.Address)
		w.Key, w.Model = e.Key.String(), e.Key.IsModel()
		v := e.Value
		w.Value = &v
	case *evidence.ServiceScan:
		w.Endpoint = addressToWire(e.Endpoint)
	case *evidence.HostScan:
		w.Host = addressToWire(e.Host)
		w.Endpoints = make([]string, 0, len(e.Endpoints))
		for _, a := range e.Endpoints {
			w.Endpoints = append(w.Endpoints, a.ParseableValue())
		}
	default:
		return nil, fmt.Errorf("%w: %T", domain.ErrUnknownEvent, ev)
	}
	return w, nil
}

func (c *JSONCodec) fromWire(ctx context.Context, w *wireEvent, fallback *evidence.Source) (evidence.Event, error) {
	prov := evidence.Evidence{Source: w.Source, Reference: w.Reference}
	if prov.Source == nil {
		prov.Source = fallback
	}
	if w.Timestamp != nil {
		prov.Timestamp = *w.Timestamp
	}

	switch w.Kind {
	case evidence.KindFlow:
		if w.From == nil || w.To == nil {
			return nil, fmt.Errorf("%w: flow without both ends", domain.ErrMalformedAddress)
		}
		proto, err := domain.ParseProtocol(string(w.Protocol))
		if err != nil {
			return nil, err
		}
		src, err := evidence.ParseEnd(w.From.HW, w.From.IP, w.From.Port)
		if err != nil {
			return nil, err
		}
		tgt, err := evidence.ParseEnd(w.To.HW, w.To.IP, w.To.Port)
		if err != nil {
			return nil, err
		}
		f := &evidence.Flow{Evidence: prov, Source: src, Target: tgt, Protocol: proto}
		for _, p := range w.Properties {
			f.Properties = append(f.Properties, domain.Property{Key: wireKey(p.Key, p.Model), Value: p.Value})
		}
		return f, nil

	case evidence.KindName:
		name, err := parseName(w.Name)
		if err != nil {
			return nil, err
		}
		addr, err := parseOptional(w.Address)
		if err != nil {
			return nil, err
		}
		ev := &evidence.Name{Evidence: prov, Name: name, Address: addr}
		if w.Service != 0 {
			if ev.Service, err = c.resolver.Arena(ctx, w.Service); err != nil {
				return nil, err
			}
		}
		for _, p := range w.Peers {
			id, err := c.resolver.Arena(ctx, p)
			if err != nil {
				return nil, err
			}
			ev.Peers = append(ev.Peers, id)
		}
		return ev, nil

	case evidence.KindPropertyUpdate:
		id, err := c.resolver.Arena(ctx, w.Entity)
		if err != nil {
			return nil, err
		}
		return &evidence.PropertyUpdate{Evidence: prov, Entity: id, Key: wireKey(w.Key, w.Model), Value: valueOrZero(w.Value)}, nil

	case evidence.KindPropertyAddressUpdate:
		addr, err := domain.ParseAddress(w.Address)
		if err != nil {
			return nil, err
		}
		return &evidence.PropertyAddressUpdate{Evidence: prov, Address: addr, Key: wireKey(w.Key, w.Model), Value: valueOrZero(w.Value)}, nil

	case evidence.KindServiceScan:
		ep, err := domain.ParseAddress(w.Endpoint)
		if err != nil {
			return nil, err
		}
		return &evidence.ServiceScan{Evidence: prov, Endpoint: ep}, nil

	case evidence.KindHostScan:
		host, err := domain.ParseAddress(w.Host)
		if err != nil {
			return nil, err
		}
		ev := &evidence.HostScan{Evidence: prov, Host: host}
		for _, s := range w.Endpoints {
			ep, err := domain.ParseAddress(s)
			if err != nil {
				return nil, err
			}
			ev.Endpoints = append(ev.Endpoints, ep)
		}
		return ev, nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownEvent, w.Kind)
}

func endToWire(e evidence.End) *wireEnd {
	return &wireEnd{HW: addressToWire(e.HW), IP: addressToWire(e.IP), Port: e.Port}
}

func addressToWire(a domain.Address) string {
	if a.IsZero() {
		return ""
	}
	if a.Kind() == domain.AddressHardware {
		return a.String()
	}
	return a.ParseableValue()
}

// parseName reads a DNS name, the type suffix is optional
func parseName(s string) (domain.Address, error) {
	if s == "" {
		return domain.Address{}, fmt.Errorf("%w: empty name", domain.ErrMalformedAddress)
	}
	if strings.Contains(s, "|") {
		return domain.ParseAddress(s)
	}
	return domain.DNSName(s), nil
}

func parseOptional(s string) (domain.Address, error) {
	if s == "" {
		return domain.Address{}, nil
	}
	return domain.ParseAddress(s)
}

func wireKey(s string, model bool) domain.PropertyKey {
	k := domain.ParsePropertyKey(s)
	if model {
		k = k.Persistent()
	}
	return k
}

func valueOrZero(v *domain.PropertyValue) domain.PropertyValue {
	if v == nil {
		return domain.PropertyValue{}
	}
	return *v
}
