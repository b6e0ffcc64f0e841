package domain

import (
	"fmt"
	"net/netip"
)

// DefaultIPNetwork is the local network assumed when none is configured
var DefaultIPNetwork = netip.MustParsePrefix("192.168.0.0/16")

type connKey struct {
	source, target ID
}

// System is the root of the model and the arena that owns every entity.
// Relationships between entities are ID fields resolved through the arena.
type System struct {
	Base
	// IPNetworks are the local networks, IPs outside them are external
	IPNetworks []netip.Prefix

	entities   map[ID]Entity
	order      []ID
	hosts      []ID
	components []ID
	nextID     ID
	addrIndex  map[Address]ID
	connIndex  map[connKey]ID
	originals  map[ID]bool
}

func (*System) Kind() Kind { return KindSystem }
func (*System) sealed()    {}

// NewSystem creates an empty system with the default local network
func NewSystem(name string) *System {
	s := &System{
		IPNetworks: []netip.Prefix{DefaultIPNetwork},
		entities:   make(map[ID]Entity),
		nextID:     1,
		addrIndex:  make(map[Address]ID),
		connIndex:  make(map[connKey]ID),
		originals:  make(map[ID]bool),
	}
	s.Base = Base{Name: name, Status: StatusExpected}
	s.register(s)
	return s
}

func (s *System) register(e Entity) {
	b := e.Core()
	b.ID = s.nextID
	s.nextID++
	s.entities[b.ID] = e
	s.order = append(s.order, b.ID)
}

// ============================================================================
// Lookup
// ============================================================================

// Get returns the entity for an arena ID
func (s *System) Get(id ID) (Entity, bool) {
	e, ok := s.entities[id]
	return e, ok
}

// Host returns a host by ID
func (s *System) Host(id ID) (*Host, bool) {
	h, ok := s.entities[id].(*Host)
	return h, ok
}

// Service returns a service by ID
func (s *System) Service(id ID) (*Service, bool) {
	v, ok := s.entities[id].(*Service)
	return v, ok
}

// Connection returns a connection by ID
func (s *System) Connection(id ID) (*Connection, bool) {
	c, ok := s.entities[id].(*Connection)
	return c, ok
}

// Addressable returns the addressable part of a host or service
func (s *System) Addressable(id ID) (*Addressable, bool) {
	e, ok := s.entities[id]
	if !ok {
		return nil, false
	}
	return AsAddressable(e)
}

// Entities returns every entity in creation order
func (s *System) Entities() []Entity {
	out := make([]Entity, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entities[id])
	}
	return out
}

// Hosts returns the hosts in creation order
func (s *System) Hosts() []*Host {
	out := make([]*Host, 0, len(s.hosts))
	for _, id := range s.hosts {
		out = append(out, s.entities[id].(*Host))
	}
	return out
}

// Connections returns the connections in creation order
func (s *System) Connections() []*Connection {
	var out []*Connection
	for _, id := range s.order {
		if c, ok := s.entities[id].(*Connection); ok {
			out = append(out, c)
		}
	}
	return out
}

// HostByName finds a host by its name
func (s *System) HostByName(name string) (*Host, bool) {
	for _, id := range s.hosts {
		if h := s.entities[id].(*Host); h.Name == name {
			return h, true
		}
	}
	return nil, false
}

// FindHost returns the host bound to a concrete host address
func (s *System) FindHost(addr Address) (ID, bool) {
	id, ok := s.addrIndex[addr.Host()]
	return id, ok
}

// WildcardHosts returns hosts without concrete addresses, they match any host
// address through their services
func (s *System) WildcardHosts() []ID {
	var out []ID
	for _, id := range s.hosts {
		if s.entities[id].(*Host).IsWildcard() {
			out = append(out, id)
		}
	}
	return out
}

// MatchService finds the service of a host serving an endpoint. More than
// one candidate is a model inconsistency.
func (s *System) MatchService(host ID, endpoint Address) (ID, error) {
	h, ok := s.Host(host)
	if !ok {
		return NoID, fmt.Errorf("host %d: %w", host, ErrNotFound)
	}
	found := NoID
	for _, sid := range h.Services {
		svc := s.entities[sid].(*Service)
		for _, a := range svc.Addresses {
			if !a.Matches(endpoint) {
				continue
			}
			if found != NoID && found != sid {
				return NoID, fmt.Errorf("%w: %s matches %s and %s", ErrAmbiguousMatch,
					endpoint, s.LongName(found), s.LongName(sid))
			}
			found = sid
		}
	}
	return found, nil
}

// ConnectionBetween returns the connection linking two entities in either
// direction. reversed is set when a is the connection target.
func (s *System) ConnectionBetween(a, b ID) (c *Connection, reversed bool) {
	if id, ok := s.connIndex[connKey{a, b}]; ok {
		return s.entities[id].(*Connection), false
	}
	if id, ok := s.connIndex[connKey{b, a}]; ok {
		return s.entities[id].(*Connection), true
	}
	return nil, false
}

// ParentHost returns the host an entity belongs to, NoID for the system
func (s *System) ParentHost(id ID) ID {
	switch e := s.entities[id].(type) {
	case *Host:
		return e.ID
	case *Service:
		return s.ParentHost(e.Parent)
	case *Component:
		return s.ParentHost(e.Owner)
	case *Connection:
		return s.ParentHost(e.Source)
	case *System:
		return NoID
	}
	return NoID
}

// Activity returns the external activity policy governing an entity
func (s *System) Activity(id ID) ExternalActivity {
	if h, ok := s.Host(s.ParentHost(id)); ok {
		return h.ExternalActivity
	}
	return ActivityBanned
}

// LongName is a human readable unique name
func (s *System) LongName(id ID) string {
	switch e := s.entities[id].(type) {
	case *Host:
		return e.Name
	case *Service:
		return s.LongName(e.Parent) + " " + e.Name
	case *Component:
		if e.Owner == s.ID {
			return e.Name
		}
		return s.LongName(e.Owner) + " " + e.Name
	case *Connection:
		return s.LongName(e.Source) + " => " + s.LongName(e.Target)
	case *System:
		return e.Name
	}
	return fmt.Sprintf("#%d", id)
}

// IsExternal reports an IP outside the local networks. Multicast, broadcast,
// loopback and link-local addresses are never external.
func (s *System) IsExternal(addr Address) bool {
	h := addr.Host()
	if h.kind != AddressIP {
		return false
	}
	ip := h.ip
	if ip.IsMulticast() || h == BroadcastIP || ip.IsUnspecified() || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
		return false
	}
	for _, p := range s.IPNetworks {
		if p.Contains(ip) {
			return false
		}
	}
	return true
}

// IsRelevant reports entities that take part in verdicts. External
// connections are relevant when either end is.
func (s *System) IsRelevant(id ID) bool {
	switch e := s.entities[id].(type) {
	case *System:
		return true
	case *Connection:
		switch e.Status {
		case StatusExpected, StatusUnexpected:
			return true
		case StatusExternal:
			return s.IsRelevant(e.Source) || s.IsRelevant(e.Target)
		}
		return false
	case *Host, *Service, *Component:
		st := e.Core().Status
		return st == StatusExpected || st == StatusUnexpected
	}
	return false
}

// IsOriginal reports entities of the declared model
func (s *System) IsOriginal(id ID) bool {
	return s.originals[id]
}

// ============================================================================
// Declared model
// ============================================================================

// AddHost declares a host
func (s *System) AddHost(name string, addrs ...Address) (*Host, error) {
	if _, ok := s.HostByName(name); ok {
		return nil, fmt.Errorf("%w: host %q", ErrDuplicateEntity, name)
	}
	h := s.newHost(name, StatusExpected)
	h.HostType = HostTypeDevice
	for _, a := range addrs {
		if err := s.AddAddress(h.ID, a); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// AddAddress binds a concrete host address. No two hosts may share one.
func (s *System) AddAddress(host ID, addr Address) error {
	h, ok := s.Host(host)
	if !ok {
		return fmt.Errorf("host %d: %w", host, ErrNotFound)
	}
	if addr.IsEndpoint() || addr.IsWildcard() || addr.IsNull() {
		return fmt.Errorf("%w: %s is not a host address", ErrMalformedAddress, addr)
	}
	if owner, ok := s.addrIndex[addr]; ok && owner != host {
		return fmt.Errorf("%w: %s claimed by %s and %s", ErrDuplicateAddress,
			addr, s.LongName(owner), h.Name)
	}
	s.bind(h, addr)
	return nil
}

// AddService declares a service with explicit addresses
func (s *System) AddService(host ID, name string, addrs ...Address) (*Service, error) {
	h, ok := s.Host(host)
	if !ok {
		return nil, fmt.Errorf("host %d: %w", host, ErrNotFound)
	}
	for _, sid := range h.Services {
		if s.entities[sid].Core().Name == name {
			return nil, fmt.Errorf("%w: service %q in %s", ErrDuplicateEntity, name, h.Name)
		}
	}
	svc := s.newService(h, name, StatusExpected)
	for _, a := range addrs {
		if !a.IsEndpoint() {
			return nil, fmt.Errorf("%w: service address %s", ErrMalformedAddress, a)
		}
		svc.addAddress(a)
		if svc.Protocol == ProtocolAny {
			svc.Protocol = a.Protocol()
		}
	}
	return svc, nil
}

// AddPortService declares a service listening on a protocol and port of
// whichever addresses the host has
func (s *System) AddPortService(host ID, proto Protocol, port int) (*Service, error) {
	return s.AddService(host, ServiceName(proto, port), AnyEndpoint(proto, port))
}

// AddConnection declares an expected connection
func (s *System) AddConnection(source, target ID) (*Connection, error) {
	if _, ok := s.Addressable(source); !ok {
		return nil, fmt.Errorf("connection source %d: %w", source, ErrNotFound)
	}
	if _, ok := s.Addressable(target); !ok {
		return nil, fmt.Errorf("connection target %d: %w", target, ErrNotFound)
	}
	if _, ok := s.connIndex[connKey{source, target}]; ok {
		return nil, fmt.Errorf("%w: connection %s => %s", ErrDuplicateEntity,
			s.LongName(source), s.LongName(target))
	}
	c := s.newConnection(source, target, StatusExpected)
	return c, nil
}

// AddComponent declares a component owned by a host, a service or the system
func (s *System) AddComponent(owner ID, name, typ string) (*Component, error) {
	e, ok := s.entities[owner]
	if !ok {
		return nil, fmt.Errorf("component owner %d: %w", owner, ErrNotFound)
	}
	if k := e.Kind(); k == KindConnection || k == KindComponent {
		return nil, fmt.Errorf("%s %s cannot own components", k, s.LongName(owner))
	}
	c := &Component{Base: Base{Name: name, Status: StatusExpected}, Owner: owner, Type: typ}
	s.register(c)
	switch o := e.(type) {
	case *System:
		s.components = append(s.components, c.ID)
	case *Host:
		o.Components = append(o.Components, c.ID)
	case *Service:
		o.Components = append(o.Components, c.ID)
	}
	return c, nil
}

// Seal marks every entity created so far as part of the declared model
func (s *System) Seal() {
	for _, id := range s.order {
		s.originals[id] = true
	}
}

// ============================================================================
// Placeholders and learning
// ============================================================================

// GetEndpoint resolves an address to a host, or an endpoint to a service,
// creating placeholders for anything unknown
func (s *System) GetEndpoint(addr Address) (Entity, error) {
	if addr.IsZero() || addr.IsWildcard() || addr.IsNull() {
		return nil, fmt.Errorf("%w: cannot resolve %q", ErrMalformedAddress, addr.String())
	}
	if addr.IsEndpoint() {
		he, err := s.GetEndpoint(addr.Host())
		if err != nil {
			return nil, err
		}
		h := he.(*Host)
		sid, err := s.MatchService(h.ID, addr)
		if err != nil {
			return nil, err
		}
		if sid != NoID {
			return s.entities[sid], nil
		}
		return s.newPlaceholderService(h, addr.Protocol(), addr.Port()), nil
	}
	if id, ok := s.addrIndex[addr]; ok {
		return s.entities[id], nil
	}
	return s.newPlaceholderHost(addr), nil
}

func (s *System) newPlaceholderHost(addr Address) *Host {
	h := s.newHost(s.uniqueHostName(addr.String()), StatusPlaceholder)
	h.ExternalActivity = ActivityUnlimited
	switch {
	case addr.IsMulticast():
		h.HostType = HostTypeAdministrative
	case s.IsExternal(addr):
		h.HostType = HostTypeRemote
	default:
		h.HostType = HostTypeGeneric
	}
	s.bind(h, addr)
	return h
}

func (s *System) newPlaceholderService(h *Host, proto Protocol, port int) *Service {
	name := ServiceName(proto, port)
	for i := 2; s.hasService(h, name); i++ {
		name = fmt.Sprintf("%s (%d)", ServiceName(proto, port), i)
	}
	svc := s.newService(h, name, StatusPlaceholder)
	svc.Protocol = proto
	svc.addAddress(AnyEndpoint(proto, port))
	return svc
}

func (s *System) hasService(h *Host, name string) bool {
	for _, sid := range h.Services {
		if s.entities[sid].Core().Name == name {
			return true
		}
	}
	return false
}

func (s *System) uniqueHostName(name string) string {
	candidate := name
	for i := 2; ; i++ {
		if _, ok := s.HostByName(candidate); !ok {
			return candidate
		}
		candidate = fmt.Sprintf("%s (%d)", name, i)
	}
}

// NewConnection returns the connection for an ordered pair, creating a
// placeholder when there is none
func (s *System) NewConnection(source, target ID) *Connection {
	if id, ok := s.connIndex[connKey{source, target}]; ok {
		return s.entities[id].(*Connection)
	}
	return s.newConnection(source, target, StatusPlaceholder)
}

// ResolvePlaceholder gives a placeholder entity, and its placeholder parent
// host, a real status
func (s *System) ResolvePlaceholder(id ID, status Status) bool {
	e, ok := s.entities[id]
	if !ok || e.Core().Status != StatusPlaceholder {
		return false
	}
	e.Core().Status = status
	if a, ok := AsAddressable(e); ok && a.Parent != s.ID {
		s.ResolvePlaceholder(a.Parent, status)
	}
	return true
}

// SetSeenNow applies the "seen now" rule to an entity. A change on a
// service propagates to its host.
func (s *System) SetSeenNow(id ID) bool {
	e, ok := s.entities[id]
	if !ok {
		return false
	}
	changed := e.Core().seenNow()
	if changed {
		if a, ok := AsAddressable(e); ok && a.Parent != s.ID && a.Parent != NoID {
			s.SetSeenNow(a.Parent)
		}
	}
	return changed
}

// LearnAddressPair binds a hardware/IP pair observed together on a host.
// Wildcard hosts, external or multicast addresses and pairs claimed by
// another host are not learned.
func (s *System) LearnAddressPair(host ID, hw, ip Address) bool {
	h, ok := s.Host(host)
	if !ok || h.IsWildcard() {
		return false
	}
	if hw.IsNull() || ip.IsNull() || hw.IsMulticast() || ip.IsMulticast() || s.IsExternal(ip) {
		return false
	}
	for _, a := range []Address{hw, ip} {
		if owner, ok := s.addrIndex[a]; ok && owner != host {
			return false
		}
	}
	changed := false
	for _, a := range []Address{hw, ip} {
		if !h.HasAddress(a) {
			s.bind(h, a)
			changed = true
		}
	}
	return changed
}

// LearnNamedAddress binds a DNS name, and optionally the address it resolved
// to, to a host. Reverse DNS names resolve to the host of the encoded IP.
// When the name and the address belong to different hosts, the binding of
// the host outside the declared model moves to the declared one.
func (s *System) LearnNamedAddress(name, addr Address) (*Host, bool, error) {
	if ip, ok := ReverseDNSAddress(name); ok {
		e, err := s.GetEndpoint(ip)
		if err != nil {
			return nil, false, err
		}
		h := e.(*Host)
		return h, h.Status == StatusPlaceholder, nil
	}
	if name.Kind() != AddressName {
		return nil, false, fmt.Errorf("%w: %s is not a DNS name", ErrMalformedAddress, name)
	}
	useAddr := !addr.IsZero() && !addr.IsNull() && !addr.IsEndpoint()
	nameHost, hasName := s.addrIndex[name]
	addrHost, hasAddr := NoID, false
	if useAddr {
		addrHost, hasAddr = s.addrIndex[addr]
	}

	switch {
	case !hasName && !hasAddr:
		h := s.newPlaceholderHost(name)
		if useAddr {
			s.bind(h, addr)
		}
		return h, true, nil
	case !hasName:
		h := s.entities[addrHost].(*Host)
		s.bind(h, name)
		return h, true, nil
	case !hasAddr:
		h := s.entities[nameHost].(*Host)
		if !useAddr {
			return h, false, nil
		}
		s.bind(h, addr)
		return h, true, nil
	case nameHost == addrHost:
		return s.entities[nameHost].(*Host), false, nil
	}

	nh := s.entities[nameHost].(*Host)
	ah := s.entities[addrHost].(*Host)
	switch {
	case !s.originals[nh.ID] && s.originals[ah.ID]:
		s.unbind(nh, name)
		s.bind(ah, name)
		return ah, true, nil
	case !s.originals[ah.ID]:
		s.unbind(ah, addr)
		s.bind(nh, addr)
		return nh, true, nil
	}
	return nh, false, nil
}

// Reset returns the graph to the declared model. Entities created from
// evidence stay in the arena as placeholders so their identities survive.
func (s *System) Reset() {
	for _, id := range s.order {
		b := s.entities[id].Core()
		if s.originals[id] {
			b.Properties.reset()
			continue
		}
		b.Status = StatusPlaceholder
		b.Properties = Properties{}
	}
}

// ============================================================================
// Verdicts
// ============================================================================

// Children returns the entities whose verdicts fold into the entity verdict
func (s *System) Children(id ID) []ID {
	switch e := s.entities[id].(type) {
	case *System:
		out := append([]ID{}, s.hosts...)
		return append(out, s.components...)
	case *Host:
		out := append([]ID{}, e.Services...)
		out = append(out, e.Components...)
		for _, cid := range e.Connections {
			if s.IsRelevant(cid) {
				out = append(out, cid)
			}
		}
		return out
	case *Service:
		out := append([]ID{}, e.Services...)
		return append(out, e.Components...)
	case *Connection, *Component:
		return nil
	}
	return nil
}

// Verdict aggregates the verdict of an entity from its properties and
// children. Results are memoized in the cache for the current pass.
func (s *System) Verdict(id ID, cache *VerdictCache) Verdict {
	if v, ok := cache.lookup(id); ok {
		return v
	}
	e, ok := s.entities[id]
	if !ok || e.Core().Status == StatusPlaceholder {
		cache.store(id, VerdictUndefined)
		return VerdictUndefined
	}
	v := VerdictUndefined
	for _, pv := range e.Core().Properties.Verdicts() {
		if pv == VerdictIgnore {
			cache.store(id, VerdictIgnore)
			return VerdictIgnore
		}
		v = Resolve(v, pv)
	}
	for _, child := range s.Children(id) {
		v = Resolve(v, s.Verdict(child, cache))
	}
	cache.store(id, v)
	return v
}

// ============================================================================
// Internal constructors
// ============================================================================

func (s *System) newHost(name string, status Status) *Host {
	h := &Host{Addressable: Addressable{
		Base:     Base{Name: name, Status: status},
		Parent:   s.ID,
		HostType: HostTypeGeneric,
	}}
	s.register(h)
	s.hosts = append(s.hosts, h.ID)
	return h
}

func (s *System) newService(h *Host, name string, status Status) *Service {
	svc := &Service{Addressable: Addressable{
		Base:             Base{Name: name, Status: status},
		Parent:           h.ID,
		HostType:         h.HostType,
		ExternalActivity: h.ExternalActivity,
	}}
	s.register(svc)
	h.Services = append(h.Services, svc.ID)
	return svc
}

func (s *System) newConnection(source, target ID, status Status) *Connection {
	c := &Connection{Base: Base{Status: status}, Source: source, Target: target}
	s.register(c)
	c.Name = s.LongName(c.ID)
	s.connIndex[connKey{source, target}] = c.ID
	if h, ok := s.Host(s.ParentHost(source)); ok {
		h.Connections = append(h.Connections, c.ID)
	}
	return c
}

func (s *System) bind(h *Host, addr Address) {
	if h.addAddress(addr) {
		s.addrIndex[addr] = h.ID
	}
}

func (s *System) unbind(h *Host, addr Address) {
	h.removeAddress(addr)
	if s.addrIndex[addr] == h.ID {
		delete(s.addrIndex, addr)
	}
}
