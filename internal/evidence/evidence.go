// Package evidence defines the provenance records and the closed set of
// evidence events the inspector consumes.
package evidence

import (
	"time"

	"netconform/internal/domain"
)

// Source describes where a batch of evidence came from
type Source struct {
	Name    string `json:"name"`
	Label   string `json:"label,omitempty"`
	BaseRef string `json:"base_ref,omitempty"`
	// Model marks synthetic events produced while building the declared
	// model. They are purged and regenerated on every load.
	Model bool `json:"model,omitempty"`
}

// ModelLabel is the label of model sources
const ModelLabel = "model"

// NewSource creates a source labelled by its name
func NewSource(name, label string) *Source {
	if label == "" {
		label = name
	}
	return &Source{Name: name, Label: label}
}

// ModelSource creates the source of declared model events
func ModelSource(name string) *Source {
	return &Source{Name: name, Label: ModelLabel, Model: true}
}

// Evidence is the provenance of a single event
type Evidence struct {
	Source    *Source
	Timestamp time.Time
	Reference string
}

// Kind discriminates events
type Kind string

const (
	KindFlow                  Kind = "flow"
	KindName                  Kind = "name"
	KindPropertyUpdate        Kind = "property"
	KindPropertyAddressUpdate Kind = "property-address"
	KindServiceScan           Kind = "service-scan"
	KindHostScan              Kind = "host-scan"
)

// Event is implemented by *Flow, *Name, *PropertyUpdate,
// *PropertyAddressUpdate, *ServiceScan and *HostScan
type Event interface {
	Kind() Kind
	Provenance() Evidence
	event()
}

// Provenance returns the evidence record
func (e Evidence) Provenance() Evidence { return e }

// Label returns the label of the event source, empty without a source
func Label(ev Event) string {
	if src := ev.Provenance().Source; src != nil {
		return src.Label
	}
	return ""
}

// IsModel reports synthetic model events
func IsModel(ev Event) bool {
	src := ev.Provenance().Source
	return src != nil && src.Model
}

// Name binds a DNS name to an address, optionally naming the service that
// answered and the peers that asked
type Name struct {
	Evidence
	Name    domain.Address
	Address domain.Address
	Service domain.ID
	Peers   []domain.ID
}

func (*Name) Kind() Kind { return KindName }
func (*Name) event()     {}

// PropertyUpdate sets a property of a known entity
type PropertyUpdate struct {
	Evidence
	Entity domain.ID
	Key    domain.PropertyKey
	Value  domain.PropertyValue
}

func (*PropertyUpdate) Kind() Kind { return KindPropertyUpdate }
func (*PropertyUpdate) event()     {}

// PropertyAddressUpdate sets a property of the entity at an address
type PropertyAddressUpdate struct {
	Evidence
	Address domain.Address
	Key     domain.PropertyKey
	Value   domain.PropertyValue
}

func (*PropertyAddressUpdate) Kind() Kind { return KindPropertyAddressUpdate }
func (*PropertyAddressUpdate) event()     {}

// ServiceScan confirms a listening endpoint
type ServiceScan struct {
	Evidence
	Endpoint domain.Address
}

func (*ServiceScan) Kind() Kind { return KindServiceScan }
func (*ServiceScan) event()     {}

// HostScan lists every endpoint found open on a host
type HostScan struct {
	Evidence
	Host      domain.Address
	Endpoints []domain.Address
}

func (*HostScan) Kind() Kind { return KindHostScan }
func (*HostScan) event()     {}
