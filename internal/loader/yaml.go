package loader

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"netconform/internal/domain"
	"netconform/internal/evidence"

	"gopkg.in/yaml.v3"
)

// ModelYAML represents the declared model file
type ModelYAML struct {
	System      string           `yaml:"system"`
	Description string           `yaml:"description,omitempty"`
	Networks    []string         `yaml:"networks,omitempty"`
	Hosts       []HostYAML       `yaml:"hosts"`
	Connections []ConnectionYAML `yaml:"connections,omitempty"`
	Components  []ComponentYAML  `yaml:"components,omitempty"`
	Properties  PropertiesYAML   `yaml:"properties,omitempty"`
}

// HostYAML represents a declared host
type HostYAML struct {
	Name             string          `yaml:"name"`
	Description      string          `yaml:"description,omitempty"`
	Type             string          `yaml:"type,omitempty"`
	Addresses        []string        `yaml:"addresses,omitempty"`
	ExternalActivity string          `yaml:"external_activity,omitempty"`
	IgnoreNames      []string        `yaml:"ignore_names,omitempty"`
	Services         []ServiceYAML   `yaml:"services,omitempty"`
	Components       []ComponentYAML `yaml:"components,omitempty"`
	Properties       PropertiesYAML  `yaml:"properties,omitempty"`
}

// ServiceYAML represents a declared service. Protocol and port declare a
// service on any address of the host; explicit addresses are endpoints.
type ServiceYAML struct {
	Name                  string          `yaml:"name,omitempty"`
	Description           string          `yaml:"description,omitempty"`
	Protocol              string          `yaml:"protocol,omitempty"`
	Port                  *int            `yaml:"port,omitempty"`
	Addresses             []string        `yaml:"addresses,omitempty"`
	ConnectionType        string          `yaml:"connection_type,omitempty"`
	Authentication        bool            `yaml:"authentication,omitempty"`
	ClientSide            bool            `yaml:"client_side,omitempty"`
	ReplyFromOtherAddress bool            `yaml:"reply_from_other_address,omitempty"`
	CaptivePortal         bool            `yaml:"captive_portal,omitempty"`
	ExternalActivity      string          `yaml:"external_activity,omitempty"`
	Components            []ComponentYAML `yaml:"components,omitempty"`
	Properties            PropertiesYAML  `yaml:"properties,omitempty"`
}

// ConnectionYAML represents a declared connection from a host to a host or
// one of its services
type ConnectionYAML struct {
	From       string         `yaml:"from"`
	To         string         `yaml:"to"`
	Service    string         `yaml:"service,omitempty"`
	Type       string         `yaml:"type,omitempty"`
	Properties PropertiesYAML `yaml:"properties,omitempty"`
}

// ComponentYAML represents a software or data component
type ComponentYAML struct {
	Name        string         `yaml:"name"`
	Type        string         `yaml:"type,omitempty"`
	Description string         `yaml:"description,omitempty"`
	Properties  PropertiesYAML `yaml:"properties,omitempty"`
}

// PropertyYAML is a declared model property
type PropertyYAML struct {
	Verdict     string `yaml:"verdict,omitempty"`
	Explanation string `yaml:"exp,omitempty"`
	Value       any    `yaml:"value,omitempty"`
}

// PropertiesYAML maps colon separated keys to declared properties
type PropertiesYAML map[string]PropertyYAML

// Model is a loaded declaration: the sealed system and the synthetic events
// that apply declared property values
type Model struct {
	System *domain.System
	Source *evidence.Source
	Events []evidence.Event
}

// LoadYAML loads a model from a YAML file
func LoadYAML(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParseYAML(data, filepath.Base(path))
}

// ParseYAML parses a model from YAML bytes. name identifies the model
// source of the synthetic events.
func ParseYAML(data []byte, name string) (*Model, error) {
	var y ModelYAML
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return convertYAMLToModel(&y, name)
}

// builder carries the conversion state
type builder struct {
	system *domain.System
	source *evidence.Source
	events []evidence.Event
}

func convertYAMLToModel(y *ModelYAML, name string) (*Model, error) {
	if y.System == "" {
		return nil, fmt.Errorf("model has no system name")
	}
	b := &builder{
		system: domain.NewSystem(y.System),
		source: evidence.ModelSource(name),
	}
	b.system.Description = y.Description

	if len(y.Networks) > 0 {
		b.system.IPNetworks = nil
		for _, n := range y.Networks {
			p, err := netip.ParsePrefix(n)
			if err != nil {
				return nil, fmt.Errorf("invalid network %q: %w", n, err)
			}
			b.system.IPNetworks = append(b.system.IPNetworks, p)
		}
	}

	for i := range y.Hosts {
		if err := b.addHost(&y.Hosts[i]); err != nil {
			return nil, fmt.Errorf("host %q: %w", y.Hosts[i].Name, err)
		}
	}
	for i := range y.Connections {
		c := &y.Connections[i]
		if err := b.addConnection(c); err != nil {
			return nil, fmt.Errorf("connection %s -> %s: %w", c.From, c.To, err)
		}
	}
	for i := range y.Components {
		if err := b.addComponent(b.system.ID, &y.Components[i]); err != nil {
			return nil, err
		}
	}
	if err := b.declare(b.system.ID, y.Properties); err != nil {
		return nil, err
	}

	b.system.Seal()
	return &Model{System: b.system, Source: b.source, Events: b.events}, nil
}

func (b *builder) addHost(hy *HostYAML) error {
	if hy.Name == "" {
		return fmt.Errorf("missing name")
	}
	h, err := b.system.AddHost(hy.Name)
	if err != nil {
		return err
	}
	h.Description = hy.Description
	if hy.Type != "" {
		h.HostType = domain.HostType(strings.ToLower(hy.Type))
	}
	if h.ExternalActivity, err = domain.ParseExternalActivity(hy.ExternalActivity); err != nil {
		return err
	}
	for _, s := range hy.Addresses {
		a, err := domain.ParseAddress(s)
		if err != nil {
			return err
		}
		if err := b.system.AddAddress(h.ID, a); err != nil {
			return err
		}
	}
	for _, n := range hy.IgnoreNames {
		h.IgnoreName(n)
	}

	for i := range hy.Services {
		if err := b.addService(h, &hy.Services[i]); err != nil {
			return err
		}
	}
	for i := range hy.Components {
		if err := b.addComponent(h.ID, &hy.Components[i]); err != nil {
			return err
		}
	}
	return b.declare(h.ID, hy.Properties)
}

func (b *builder) addService(h *domain.Host, sy *ServiceYAML) error {
	proto, err := domain.ParseProtocol(sy.Protocol)
	if err != nil {
		return err
	}

	var addrs []domain.Address
	for _, s := range sy.Addresses {
		a, err := domain.ParseAddress(s)
		if err != nil {
			return err
		}
		addrs = append(addrs, a)
	}
	if sy.Port != nil {
		addrs = append(addrs, domain.AnyEndpoint(proto, *sy.Port))
	}
	if len(addrs) == 0 {
		return fmt.Errorf("service %q has neither port nor addresses", sy.Name)
	}

	name := sy.Name
	if name == "" {
		if sy.Port == nil {
			return fmt.Errorf("service without port needs a name")
		}
		name = domain.ServiceName(proto, *sy.Port)
	}

	svc, err := b.system.AddService(h.ID, name, addrs...)
	if err != nil {
		return err
	}
	svc.Description = sy.Description
	if proto != domain.ProtocolAny {
		svc.Protocol = proto
	}
	svc.ConnType = domain.ConnectionType(strings.ToLower(sy.ConnectionType))
	svc.Authentication = sy.Authentication
	svc.ClientSide = sy.ClientSide
	svc.ReplyFromOtherAddress = sy.ReplyFromOtherAddress
	svc.CaptivePortal = sy.CaptivePortal
	if sy.ExternalActivity != "" {
		if svc.ExternalActivity, err = domain.ParseExternalActivity(sy.ExternalActivity); err != nil {
			return err
		}
	}

	for i := range sy.Components {
		if err := b.addComponent(svc.ID, &sy.Components[i]); err != nil {
			return err
		}
	}
	return b.declare(svc.ID, sy.Properties)
}

func (b *builder) addConnection(cy *ConnectionYAML) error {
	src, ok := b.system.HostByName(cy.From)
	if !ok {
		return fmt.Errorf("source host %q: %w", cy.From, domain.ErrNotFound)
	}
	dst, ok := b.system.HostByName(cy.To)
	if !ok {
		return fmt.Errorf("target host %q: %w", cy.To, domain.ErrNotFound)
	}

	target := dst.ID
	if cy.Service != "" {
		target = domain.NoID
		for _, sid := range dst.Services {
			if svc, _ := b.system.Service(sid); svc.Name == cy.Service {
				target = sid
			}
		}
		if target == domain.NoID {
			return fmt.Errorf("service %q of %s: %w", cy.Service, dst.Name, domain.ErrNotFound)
		}
	}

	c, err := b.system.AddConnection(src.ID, target)
	if err != nil {
		return err
	}
	c.ConnType = domain.ConnectionType(strings.ToLower(cy.Type))
	if c.ConnType == domain.ConnTypeUnknown {
		if svc, ok := b.system.Service(target); ok {
			c.ConnType = svc.ConnType
		}
	}
	return b.declare(c.ID, cy.Properties)
}

func (b *builder) addComponent(owner domain.ID, cy *ComponentYAML) error {
	c, err := b.system.AddComponent(owner, cy.Name, cy.Type)
	if err != nil {
		return err
	}
	c.Description = cy.Description
	return b.declare(c.ID, cy.Properties)
}

// declare registers model property keys on an entity. The declared values
// travel as model events so a reset followed by replay restores them.
func (b *builder) declare(id domain.ID, props PropertiesYAML) error {
	e, _ := b.system.Get(id)
	for _, name := range sortedKeys(props) {
		py := props[name]
		verdict, err := domain.ParseVerdict(py.Verdict)
		if err != nil {
			return fmt.Errorf("property %s of %s: %w", name, b.system.LongName(id), err)
		}
		key := domain.ParsePropertyKey(name).Persistent()
		value := domain.PropertyValue{Verdict: verdict, Explanation: py.Explanation, Value: py.Value}

		placeholder := domain.PropertyValue{Explanation: py.Explanation}
		if verdict != domain.VerdictUndefined {
			placeholder.Verdict = domain.VerdictIncon
		}
		e.Core().Properties.Set(key, placeholder)

		if !reflect.DeepEqual(value, placeholder) {
			b.events = append(b.events, &evidence.PropertyUpdate{
				Evidence: evidence.Evidence{Source: b.source, Reference: b.system.LongName(id)},
				Entity:   id,
				Key:      key,
				Value:    value,
			})
		}
	}
	return nil
}

func sortedKeys(props PropertiesYAML) []string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
