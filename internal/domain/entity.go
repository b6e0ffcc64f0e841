package domain

import (
	"fmt"
	"strings"
)

// ID identifies an entity inside one System arena. It is process local;
// durable identities are assigned by the entity database.
type ID int

// NoID is the zero reference
const NoID ID = 0

// Kind discriminates the entity variants
type Kind uint8

const (
	KindSystem Kind = iota + 1
	KindHost
	KindService
	KindConnection
	KindComponent
)

func (k Kind) String() string {
	switch k {
	case KindSystem:
		return "system"
	case KindHost:
		return "host"
	case KindService:
		return "service"
	case KindConnection:
		return "connection"
	case KindComponent:
		return "component"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Entity is the closed set of modeled objects: *System, *Host, *Service,
// *Connection and *Component.
type Entity interface {
	EntityID() ID
	Kind() Kind
	Core() *Base
	sealed()
}

// Base holds what every entity carries
type Base struct {
	ID          ID
	Name        string
	Description string
	Status      Status
	Properties  Properties
}

// EntityID returns the arena ID
func (b *Base) EntityID() ID { return b.ID }

// Core gives access to the shared fields
func (b *Base) Core() *Base { return b }

// ExpectedVerdict returns the verdict recorded by the "seen now" rule
func (b *Base) ExpectedVerdict() Verdict {
	v, _ := b.Properties.Get(PropertyExpected)
	return v.Verdict
}

// SetExpectedVerdict records a verdict for the entity itself
func (b *Base) SetExpectedVerdict(v Verdict, explanation string) bool {
	return b.Properties.Set(PropertyExpected, VerdictValue(v, explanation))
}

// seenNow applies the pass/fail rule for an observation, reporting a change
func (b *Base) seenNow() bool {
	switch b.Status {
	case StatusExpected:
		if b.ExpectedVerdict() == VerdictPass {
			return false
		}
		return b.SetExpectedVerdict(VerdictPass, "")
	case StatusUnexpected:
		if b.ExpectedVerdict() == VerdictFail {
			return false
		}
		return b.SetExpectedVerdict(VerdictFail, "unexpected")
	}
	return false
}

// Addressable is shared by hosts and services
type Addressable struct {
	Base
	Parent           ID
	Addresses        []Address
	Services         []ID
	Components       []ID
	HostType         HostType
	ExternalActivity ExternalActivity
}

// HasAddress reports whether the address is bound to the entity
func (a *Addressable) HasAddress(addr Address) bool {
	for _, x := range a.Addresses {
		if x == addr {
			return true
		}
	}
	return false
}

// IsMulticast reports an entity bound to a multicast or broadcast address
func (a *Addressable) IsMulticast() bool {
	for _, x := range a.Addresses {
		if x.IsMulticast() {
			return true
		}
	}
	return false
}

// IsWildcard reports an entity without any concrete host address
func (a *Addressable) IsWildcard() bool {
	for _, x := range a.Addresses {
		if !x.IsWildcard() {
			return false
		}
	}
	return true
}

func (a *Addressable) addAddress(addr Address) bool {
	if a.HasAddress(addr) {
		return false
	}
	a.Addresses = append(a.Addresses, addr)
	return true
}

func (a *Addressable) removeAddress(addr Address) {
	for i, x := range a.Addresses {
		if x == addr {
			a.Addresses = append(a.Addresses[:i], a.Addresses[i+1:]...)
			return
		}
	}
}

// Host is a network node
type Host struct {
	Addressable
	IgnoreNameRequests map[string]struct{}
	// Connections initiated by the host or its services
	Connections []ID
}

func (*Host) Kind() Kind { return KindHost }
func (*Host) sealed()    {}

// IgnoresName reports a name listed in ignore_name_requests
func (h *Host) IgnoresName(name Address) bool {
	_, ok := h.IgnoreNameRequests[strings.ToLower(name.String())]
	return ok
}

// IgnoreName adds a DNS name that must not trigger unexpected name handling
func (h *Host) IgnoreName(name string) {
	if h.IgnoreNameRequests == nil {
		h.IgnoreNameRequests = make(map[string]struct{})
	}
	h.IgnoreNameRequests[strings.ToLower(strings.TrimSuffix(name, "."))] = struct{}{}
}

// Service is an addressable child of a host
type Service struct {
	Addressable
	Protocol       Protocol
	ConnType       ConnectionType
	Authentication bool
	ClientSide     bool
	// DHCP style services reply from an address other than the one asked
	ReplyFromOtherAddress bool
	// DNS services that redirect names to their own address
	CaptivePortal bool
}

func (*Service) Kind() Kind { return KindService }
func (*Service) sealed()    {}

// IsServer reports a service that listens on a protocol/port endpoint
func (s *Service) IsServer() bool {
	if s.ClientSide {
		return false
	}
	for _, a := range s.Addresses {
		if a.IsEndpoint() && a.Port() >= 0 {
			return true
		}
	}
	return false
}

// ServiceName is the default name of a port service, e.g. "UDP:1234"
func ServiceName(proto Protocol, port int) string {
	if port < 0 {
		return strings.ToUpper(string(proto))
	}
	return fmt.Sprintf("%s:%d", strings.ToUpper(string(proto)), port)
}

// Connection links two addressable entities
type Connection struct {
	Base
	Source   ID
	Target   ID
	ConnType ConnectionType
}

func (*Connection) Kind() Kind { return KindConnection }
func (*Connection) sealed()    {}

// IsEnd reports whether the entity is either end
func (c *Connection) IsEnd(id ID) bool {
	return c.Source == id || c.Target == id
}

// Component is a sub-resource of a host, service or the system, such as
// installed software or stored data
type Component struct {
	Base
	Owner ID
	Type  string
}

func (*Component) Kind() Kind { return KindComponent }
func (*Component) sealed()    {}

// AsAddressable returns the addressable part of hosts and services
func AsAddressable(e Entity) (*Addressable, bool) {
	switch v := e.(type) {
	case *Host:
		return &v.Addressable, true
	case *Service:
		return &v.Addressable, true
	case *System, *Connection, *Component:
		return nil, false
	}
	return nil, false
}
