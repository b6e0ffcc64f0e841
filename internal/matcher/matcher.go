// Package matcher maps observed address pairs onto entities of the model,
// creating placeholders for traffic the model does not declare.
package matcher

import (
	"fmt"
	"log/slog"

	"netconform/internal/domain"
	"netconform/internal/evidence"
)

// Match is the resolution of one flow. Source and target follow the flow
// direction; for a reply they are the connection target and source.
type Match struct {
	Connection   domain.ID
	SourceEntity domain.ID
	TargetEntity domain.ID
	Source       domain.Address
	Target       domain.Address
	Reply        bool
}

func (m Match) reversed() Match {
	return Match{
		Connection:   m.Connection,
		SourceEntity: m.TargetEntity,
		TargetEntity: m.SourceEntity,
		Source:       m.Target,
		Target:       m.Source,
		Reply:        !m.Reply,
	}
}

// candidate is an entity an observed address may belong to
type candidate struct {
	entity   domain.ID
	address  domain.Address
	wildcard bool
}

// SystemMatcher resolves flows. It is not safe for concurrent use; the
// inspector owns it.
type SystemMatcher struct {
	system   *domain.System
	observed map[evidence.FlowKey]Match
}

// New creates a matcher over a system
func New(system *domain.System) *SystemMatcher {
	return &SystemMatcher{
		system:   system,
		observed: make(map[evidence.FlowKey]Match),
	}
}

// Reset forgets observed flows
func (m *SystemMatcher) Reset() {
	m.observed = make(map[evidence.FlowKey]Match)
}

// Endpoint resolves an address or endpoint, creating placeholders as needed
func (m *SystemMatcher) Endpoint(addr domain.Address) (domain.Entity, error) {
	return m.system.GetEndpoint(addr)
}

// Connection resolves a flow to a connection. The first occurrence of a flow
// establishes its direction; the reversed flow is a reply.
func (m *SystemMatcher) Connection(flow *evidence.Flow) (Match, error) {
	key := flow.Key()
	if mt, ok := m.observed[key]; ok {
		return mt, nil
	}
	if mt, ok := m.observed[key.Reverse()]; ok {
		r := mt.reversed()
		m.checkExternalReply(r)
		m.observed[key] = r
		return r, nil
	}
	mt, err := m.addConnection(flow)
	if err != nil {
		return Match{}, err
	}
	m.observed[key] = mt
	return mt, nil
}

// checkExternalReply fails an external connection whose target replies
// although its policy forbids it
func (m *SystemMatcher) checkExternalReply(mt Match) {
	c, _ := m.system.Connection(mt.Connection)
	if !mt.Reply || c.Status != domain.StatusExternal {
		return
	}
	if m.system.Activity(c.Target) < domain.ActivityOpen {
		c.SetExpectedVerdict(domain.VerdictFail, "reply from host with restricted external activity")
	}
}

func (m *SystemMatcher) addConnection(flow *evidence.Flow) (Match, error) {
	sources, err := m.candidates(flow.Source, flow.Protocol)
	if err != nil {
		return Match{}, err
	}
	targets, err := m.candidates(flow.Target, flow.Protocol)
	if err != nil {
		return Match{}, err
	}

	// declared or previously created connection between any candidates
	for _, s := range sources {
		for _, t := range targets {
			if m.sameHost(s.entity, t.entity) {
				continue
			}
			c, reversed := m.system.ConnectionBetween(s.entity, t.entity)
			if c == nil {
				continue
			}
			mt := Match{
				Connection:   c.ID,
				SourceEntity: s.entity,
				TargetEntity: t.entity,
				Source:       s.address,
				Target:       t.address,
				Reply:        reversed,
			}
			if c.Status == domain.StatusPlaceholder {
				m.setConnectionStatus(c, reversed)
			}
			return mt, nil
		}
	}

	source, err := m.newConnectionEnd(flow, flow.Source, sources, false)
	if err != nil {
		return Match{}, err
	}
	target, err := m.newConnectionEnd(flow, flow.Target, targets, true)
	if err != nil {
		return Match{}, err
	}

	c := m.system.NewConnection(source.entity, target.entity)
	if c.Status == domain.StatusPlaceholder {
		m.setConnectionStatus(c, false)
	}
	slog.Debug("Matcher: new connection", "connection", c.Name, "status", c.Status)
	return Match{
		Connection:   c.ID,
		SourceEntity: source.entity,
		TargetEntity: target.entity,
		Source:       source.address,
		Target:       target.address,
	}, nil
}

// candidates lists the entities an end may belong to, best first: services
// of hosts owning the address, those hosts, then wildcard hosts.
func (m *SystemMatcher) candidates(end evidence.End, proto domain.Protocol) ([]candidate, error) {
	var out []candidate
	seen := make(map[domain.ID]bool)
	add := func(c candidate) {
		if !seen[c.entity] {
			seen[c.entity] = true
			out = append(out, c)
		}
	}

	addrs := m.matchAddresses(end)
	for _, a := range addrs {
		host, ok := m.system.FindHost(a)
		if !ok {
			continue
		}
		ep := domain.Endpoint(a, proto, end.Port)
		sid, err := m.system.MatchService(host, ep)
		if err != nil {
			return nil, err
		}
		if sid != domain.NoID {
			add(candidate{entity: sid, address: ep})
		}
		add(candidate{entity: host, address: ep})
	}

	if len(addrs) == 0 {
		return out, nil
	}
	ep := domain.Endpoint(addrs[0], proto, end.Port)
	var loose []candidate
	for _, host := range m.system.WildcardHosts() {
		sid, err := m.system.MatchService(host, ep)
		if err != nil {
			return nil, err
		}
		if sid != domain.NoID {
			add(candidate{entity: sid, address: ep, wildcard: true})
			continue
		}
		loose = append(loose, candidate{entity: host, address: ep, wildcard: true})
	}
	for _, c := range loose {
		add(c)
	}
	return out, nil
}

// matchAddresses picks the host addresses used for lookup. The hardware
// address of an external IP end belongs to the local router and is skipped.
func (m *SystemMatcher) matchAddresses(end evidence.End) []domain.Address {
	if !end.IP.IsZero() && m.system.IsExternal(end.IP) {
		return []domain.Address{end.IP}
	}
	var out []domain.Address
	for _, a := range end.Stack() {
		if !a.IsNull() {
			out = append(out, a)
		}
	}
	return out
}

// newConnectionEnd picks or creates the entity for one end of a connection
// the model does not declare. Wildcard hosts never take part in those.
func (m *SystemMatcher) newConnectionEnd(flow *evidence.Flow, end evidence.End, cands []candidate, target bool) (candidate, error) {
	var chosen candidate
	for _, c := range cands {
		if !c.wildcard {
			chosen = c
			break
		}
	}
	if chosen.entity == domain.NoID {
		addr, err := m.newEndpointAddress(end)
		if err != nil {
			return candidate{}, fmt.Errorf("flow %s: %w", flow, err)
		}
		e, err := m.system.GetEndpoint(addr)
		if err != nil {
			return candidate{}, err
		}
		slog.Debug("Matcher: placeholder host", "address", addr, "host", e.Core().Name)
		chosen = candidate{entity: e.EntityID(), address: domain.Endpoint(addr, flow.Protocol, end.Port)}
	}

	if !target {
		// sources are clients, resolve to the host
		if host := m.system.ParentHost(chosen.entity); host != domain.NoID {
			chosen.entity = host
		}
		return chosen, nil
	}
	if _, isHost := m.system.Host(chosen.entity); isHost && hasServicePort(flow.Protocol, end.Port) {
		e, err := m.system.GetEndpoint(chosen.address)
		if err != nil {
			return candidate{}, err
		}
		chosen.entity = e.EntityID()
	}
	return chosen, nil
}

// newEndpointAddress selects the address a new host is known by: the
// hardware address unless the IP is external or multicast
func (m *SystemMatcher) newEndpointAddress(end evidence.End) (domain.Address, error) {
	ip, hw := end.IP, end.HW
	switch {
	case !ip.IsZero() && !ip.IsNull() && (m.system.IsExternal(ip) || ip.IsMulticast()):
		return ip, nil
	case !hw.IsZero() && !hw.IsNull():
		return hw, nil
	case !ip.IsZero() && !ip.IsNull():
		return ip, nil
	}
	return domain.Address{}, fmt.Errorf("%w: end %s has no usable address", domain.ErrMalformedAddress, end)
}

// setConnectionStatus classifies a connection the model does not declare.
// It is External when both ends tolerate external activity and the source
// is unlimited, or the source may reply openly; otherwise Unexpected.
// Placeholder ends take the status of the connection.
func (m *SystemMatcher) setConnectionStatus(c *domain.Connection, reply bool) {
	src := m.system.Activity(c.Source)
	tgt := m.system.Activity(c.Target)
	status := domain.StatusUnexpected
	if src > domain.ActivityBanned && tgt > domain.ActivityBanned {
		if src >= domain.ActivityUnlimited || (reply && src >= domain.ActivityOpen) {
			status = domain.StatusExternal
		}
	}
	c.Status = status
	m.system.ResolvePlaceholder(c.Source, status)
	m.system.ResolvePlaceholder(c.Target, status)
}

func (m *SystemMatcher) sameHost(a, b domain.ID) bool {
	ha := m.system.ParentHost(a)
	return ha != domain.NoID && ha == m.system.ParentHost(b)
}

func hasServicePort(proto domain.Protocol, port int) bool {
	switch proto {
	case domain.ProtocolTCP, domain.ProtocolUDP:
		return port >= 0
	}
	return false
}
