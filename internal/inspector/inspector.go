// Package inspector turns evidence events into status transitions and
// verdicts on the model.
//
// The inspector is single-writer: events must be consumed one at a time in
// arrival order, as the first-seen and session direction logic depends on it.
package inspector

import (
	"fmt"
	"log/slog"

	"netconform/internal/domain"
	"netconform/internal/evidence"
	"netconform/internal/matcher"
)

// Inspector implements the evidence event interface over a system
type Inspector struct {
	system     *domain.System
	matcher    *matcher.SystemMatcher
	listeners  []Listener
	connCount  map[domain.ID]int
	sessions   map[evidence.FlowKey]bool
	knownHosts map[domain.ID]bool
}

// New creates an inspector. Listeners are notified in order by Dispatch.
func New(system *domain.System, listeners ...Listener) *Inspector {
	return &Inspector{
		system:     system,
		matcher:    matcher.New(system),
		listeners:  listeners,
		connCount:  make(map[domain.ID]int),
		sessions:   make(map[evidence.FlowKey]bool),
		knownHosts: make(map[domain.ID]bool),
	}
}

// System returns the inspected system
func (i *Inspector) System() *domain.System {
	return i.system
}

// Reset discards transient state and returns the graph to the declared model
func (i *Inspector) Reset() {
	i.system.Reset()
	i.matcher.Reset()
	i.connCount = make(map[domain.ID]int)
	i.sessions = make(map[evidence.FlowKey]bool)
	i.knownHosts = make(map[domain.ID]bool)
}

// Consume dispatches an event to its handler
func (i *Inspector) Consume(ev evidence.Event) (Result, error) {
	switch e := ev.(type) {
	case *evidence.Flow:
		return i.Connection(e)
	case *evidence.Name:
		return i.Name(e)
	case *evidence.PropertyUpdate:
		return i.PropertyUpdate(e)
	case *evidence.PropertyAddressUpdate:
		return i.PropertyAddressUpdate(e)
	case *evidence.ServiceScan:
		return i.ServiceScan(e)
	case *evidence.HostScan:
		return i.HostScan(e)
	}
	return Result{}, fmt.Errorf("%w: %T", domain.ErrUnknownEvent, ev)
}

// Dispatch notifies the listeners of a change set
func (i *Inspector) Dispatch(cs ChangeSet) {
	for _, ch := range cs.Changes() {
		switch ch.Kind {
		case ChangeHost:
			h, ok := i.system.Host(ch.Entity)
			if !ok {
				continue
			}
			for _, l := range i.listeners {
				l.HostChanged(h)
			}
		case ChangeConnection:
			c, ok := i.system.Connection(ch.Entity)
			if !ok {
				continue
			}
			for _, l := range i.listeners {
				l.ConnectionChanged(c)
			}
		}
	}
}

// Connection handles a flow
func (i *Inspector) Connection(flow *evidence.Flow) (Result, error) {
	mt, err := i.matcher.Connection(flow)
	if err != nil {
		return Result{}, err
	}
	conn, _ := i.system.Connection(mt.Connection)
	if conn.Status == domain.StatusPlaceholder {
		return Result{}, fmt.Errorf("%w: connection %s", domain.ErrUnresolvedPlaceholder, conn.Name)
	}
	// hosts at either end are classified by the flow, names bound later
	// must not reclassify them
	i.knownHosts[i.system.ParentHost(conn.Source)] = true
	i.knownHosts[i.system.ParentHost(conn.Target)] = true

	var send []domain.ID
	count := i.connCount[conn.ID] + 1
	i.connCount[conn.ID] = count
	if count == 1 {
		if i.system.SetSeenNow(conn.ID) {
			send = append(send, conn.ID)
		}
		if conn.Status == domain.StatusExternal && conn.ExpectedVerdict() == domain.VerdictUndefined {
			conn.SetExpectedVerdict(domain.VerdictExternal, "")
			send = append(send, conn.ID)
		}
		if flow.IsIP() {
			if i.system.LearnAddressPair(i.system.ParentHost(mt.SourceEntity), flow.Source.HW, flow.Source.IP) {
				send = append(send, mt.SourceEntity)
			}
			if i.system.LearnAddressPair(i.system.ParentHost(mt.TargetEntity), flow.Target.HW, flow.Target.IP) {
				send = append(send, mt.TargetEntity)
			}
		}
	}

	key := flow.Key()
	if !i.sessions[key] {
		i.sessions[key] = true
		if mt.Reply {
			if i.system.SetSeenNow(conn.Target) {
				send = append(send, conn.Target)
			}
		} else {
			if i.system.SetSeenNow(conn.Source) {
				send = append(send, conn.Source)
			}
			if i.updateTarget(conn.Target) {
				send = append(send, conn.Target)
			}
		}
	}

	if conn.Status == domain.StatusExpected {
		changed := false
		for _, p := range flow.Properties {
			changed = conn.Properties.Set(p.Key, p.Value) || changed
		}
		if changed {
			send = append(send, conn.ID)
		}
	}

	r := Result{Entity: conn.ID, Reply: mt.Reply}
	for _, id := range send {
		i.collect(&r.Changes, id)
	}
	return r, nil
}

// updateTarget applies the first-session rule to a connection target:
// unexpected targets fail, relevant multicast sinks are seen and external
// targets are recorded as inconclusive
func (i *Inspector) updateTarget(id domain.ID) bool {
	a, ok := i.system.Addressable(id)
	if !ok {
		return false
	}
	switch {
	case a.Status == domain.StatusUnexpected:
		return i.system.SetSeenNow(id)
	case a.IsMulticast() && i.system.IsRelevant(id):
		return i.system.SetSeenNow(id)
	case a.Status == domain.StatusExternal && a.ExpectedVerdict() == domain.VerdictUndefined:
		return a.SetExpectedVerdict(domain.VerdictIncon, "external target")
	}
	return false
}

// Name handles a DNS name resolution
func (i *Inspector) Name(ev *evidence.Name) (Result, error) {
	addr := ev.Address
	if svc, ok := i.system.Service(ev.Service); ok && svc.CaptivePortal && !addr.IsZero() {
		if owner, ok := i.system.Host(svc.Parent); ok && owner.HasAddress(addr.Host()) {
			// redirect to the portal itself, not an address of the name
			addr = domain.Address{}
		}
	}
	h, changed, err := i.system.LearnNamedAddress(ev.Name, addr)
	if err != nil {
		return Result{}, err
	}
	r := Result{Entity: h.ID}
	if h.Status == domain.StatusPlaceholder {
		i.system.ResolvePlaceholder(h.ID, domain.StatusUnexpected)
		changed = true
	}

	if !i.knownHosts[h.ID] && h.Status == domain.StatusUnexpected {
		external := true
		for _, peer := range ev.Peers {
			ph, ok := i.system.Host(i.system.ParentHost(peer))
			if !ok || ph.IgnoresName(ev.Name) {
				continue
			}
			if ph.ExternalActivity < domain.ActivityOpen {
				if i.system.SetSeenNow(h.ID) {
					changed = true
				}
				external = false
				break
			}
		}
		if external {
			h.Status = domain.StatusExternal
			changed = true
			slog.Debug("Inspector: name promoted to external", "name", ev.Name, "host", h.Name)
		}
	}
	i.knownHosts[h.ID] = true
	if changed {
		r.Changes.add(Change{Kind: ChangeHost, Entity: h.ID})
	}
	return r, nil
}

// PropertyUpdate applies a property to a known entity
func (i *Inspector) PropertyUpdate(ev *evidence.PropertyUpdate) (Result, error) {
	e, ok := i.system.Get(ev.Entity)
	if !ok {
		return Result{}, fmt.Errorf("property %s for entity %d: %w", ev.Key, ev.Entity, domain.ErrNotFound)
	}
	r := Result{Entity: e.EntityID()}
	if i.applyProperty(e, ev.Key, ev.Value) {
		i.collect(&r.Changes, e.EntityID())
	}
	return r, nil
}

// PropertyAddressUpdate marks the entity at an address seen and applies a
// property to it
func (i *Inspector) PropertyAddressUpdate(ev *evidence.PropertyAddressUpdate) (Result, error) {
	e, seen, err := i.seenEntity(ev.Address)
	if err != nil {
		return Result{}, err
	}
	r := Result{Entity: e.EntityID()}
	if i.applyProperty(e, ev.Key, ev.Value) || seen {
		i.collect(&r.Changes, e.EntityID())
	}
	return r, nil
}

// applyProperty drops updates for entities outside the declared model and
// model keys the entity does not carry yet
func (i *Inspector) applyProperty(e domain.Entity, key domain.PropertyKey, value domain.PropertyValue) bool {
	b := e.Core()
	if b.Status == domain.StatusPlaceholder || b.Status == domain.StatusUnexpected {
		return false
	}
	if key.IsModel() && !b.Properties.Has(key) {
		slog.Debug("Inspector: model property not declared", "entity", i.system.LongName(b.ID), "key", key)
		return false
	}
	return b.Properties.Set(key, value)
}

// ServiceScan marks a scanned service seen
func (i *Inspector) ServiceScan(ev *evidence.ServiceScan) (Result, error) {
	if !ev.Endpoint.IsEndpoint() {
		return Result{}, fmt.Errorf("%w: service scan of %s", domain.ErrMalformedAddress, ev.Endpoint)
	}
	e, seen, err := i.seenEntity(ev.Endpoint)
	if err != nil {
		return Result{}, err
	}
	if _, ok := e.(*domain.Service); !ok {
		return Result{}, fmt.Errorf("service scan of %s resolved to %s", ev.Endpoint, e.Kind())
	}
	r := Result{Entity: e.EntityID()}
	if seen {
		i.collect(&r.Changes, e.EntityID())
	}
	return r, nil
}

// HostScan fails every relevant server of the host whose addresses are
// missing from the scan result
func (i *Inspector) HostScan(ev *evidence.HostScan) (Result, error) {
	if ev.Host.IsEndpoint() {
		return Result{}, fmt.Errorf("%w: host scan of %s", domain.ErrMalformedAddress, ev.Host)
	}
	e, err := i.matcher.Endpoint(ev.Host)
	if err != nil {
		return Result{}, err
	}
	h, ok := e.(*domain.Host)
	if !ok {
		return Result{}, fmt.Errorf("host scan of %s resolved to %s", ev.Host, e.Kind())
	}
	r := Result{Entity: h.ID}
	if i.system.ResolvePlaceholder(h.ID, domain.StatusUnexpected) {
		r.Changes.add(Change{Kind: ChangeHost, Entity: h.ID})
	}

	open := make(map[domain.Address]bool, len(ev.Endpoints))
	for _, a := range ev.Endpoints {
		open[a] = true
	}
	for _, sid := range h.Services {
		svc, _ := i.system.Service(sid)
		if !i.system.IsRelevant(sid) || !svc.IsServer() {
			continue
		}
		found := false
		for _, a := range svc.Addresses {
			if a.IsWildcard() {
				a = a.WithHost(ev.Host)
			}
			if open[a] {
				found = true
				break
			}
		}
		if !found && svc.SetExpectedVerdict(domain.VerdictFail, "not found by host scan") {
			r.Changes.add(Change{Kind: ChangeHost, Entity: h.ID})
		}
	}
	i.knownHosts[h.ID] = true
	return r, nil
}

// seenEntity resolves an address, classifying new entities as unexpected,
// and applies the "seen now" rule
func (i *Inspector) seenEntity(addr domain.Address) (domain.Entity, bool, error) {
	e, err := i.matcher.Endpoint(addr)
	if err != nil {
		return nil, false, err
	}
	created := i.system.ResolvePlaceholder(e.EntityID(), domain.StatusUnexpected)
	seen := i.system.SetSeenNow(e.EntityID())
	return e, created || seen, nil
}

// collect maps a changed entity to its notification
func (i *Inspector) collect(cs *ChangeSet, id domain.ID) {
	e, ok := i.system.Get(id)
	if !ok {
		return
	}
	switch v := e.(type) {
	case *domain.Connection:
		cs.add(Change{Kind: ChangeConnection, Entity: v.ID})
	case *domain.Host, *domain.Service:
		cs.add(Change{Kind: ChangeHost, Entity: i.system.ParentHost(id)})
	case *domain.Component:
		if v.Owner != i.system.ID {
			cs.add(Change{Kind: ChangeHost, Entity: i.system.ParentHost(id)})
		}
	case *domain.System:
	}
}
