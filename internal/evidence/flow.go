package evidence

import (
	"fmt"

	"netconform/internal/domain"
)

// End is one side of a flow. Ethernet flows leave IP unset and carry the
// ethertype in Port.
type End struct {
	HW   domain.Address `json:"hw,omitempty"`
	IP   domain.Address `json:"ip,omitempty"`
	Port int            `json:"port"`
}

// Stack returns the host addresses of the end, hardware first
func (e End) Stack() []domain.Address {
	var out []domain.Address
	if !e.HW.IsZero() {
		out = append(out, e.HW)
	}
	if !e.IP.IsZero() {
		out = append(out, e.IP)
	}
	return out
}

func (e End) String() string {
	switch {
	case e.IP.IsZero():
		return fmt.Sprintf("%s:%d", e.HW, e.Port)
	case e.HW.IsZero():
		return fmt.Sprintf("%s:%d", e.IP, e.Port)
	}
	return fmt.Sprintf("%s/%s:%d", e.HW, e.IP, e.Port)
}

// FlowKey identifies a direction-tagged flow
type FlowKey struct {
	Source   End
	Target   End
	Protocol domain.Protocol
}

// Reverse swaps the ends
func (k FlowKey) Reverse() FlowKey {
	return FlowKey{Source: k.Target, Target: k.Source, Protocol: k.Protocol}
}

// Flow is observed traffic from Source to Target
type Flow struct {
	Evidence
	Source     End
	Target     End
	Protocol   domain.Protocol
	Properties []domain.Property
}

func (*Flow) Kind() Kind { return KindFlow }
func (*Flow) event()     {}

// Key returns the flow identity without provenance or properties
func (f *Flow) Key() FlowKey {
	return FlowKey{Source: f.Source, Target: f.Target, Protocol: f.Protocol}
}

// IsIP reports a flow with IP addresses
func (f *Flow) IsIP() bool {
	return !f.Source.IP.IsZero() || !f.Target.IP.IsZero()
}

func (f *Flow) String() string {
	return fmt.Sprintf("%s %s >> %s", f.Protocol, f.Source, f.Target)
}

// IPFlow builds an IP flow
func IPFlow(ev Evidence, proto domain.Protocol, source, target End) *Flow {
	return &Flow{Evidence: ev, Source: source, Target: target, Protocol: proto}
}

// EthernetFlow builds a link layer flow between hardware addresses
func EthernetFlow(ev Evidence, source, target domain.Address, ethertype int) *Flow {
	return &Flow{
		Evidence: ev,
		Source:   End{HW: source, Port: ethertype},
		Target:   End{HW: target, Port: ethertype},
		Protocol: domain.ProtocolEth,
	}
}

// BLEAdvertisementFlow builds a flow from a BLE advertiser to the
// advertisement pseudo address
func BLEAdvertisementFlow(ev Evidence, source domain.Address, eventType int) *Flow {
	return &Flow{
		Evidence: ev,
		Source:   End{HW: source, Port: eventType},
		Target:   End{HW: domain.BLEAdvertisement, Port: eventType},
		Protocol: domain.ProtocolBLE,
	}
}

// ParseEnd builds an end from string addresses, empty strings are unset
func ParseEnd(hw, ip string, port int) (End, error) {
	var e End
	var err error
	switch hw {
	case "":
	case domain.BLEAdvertisement.String():
		e.HW = domain.BLEAdvertisement
	default:
		if e.HW, err = domain.ParseHW(hw); err != nil {
			return End{}, err
		}
	}
	if ip != "" {
		if e.IP, err = domain.ParseIP(ip); err != nil {
			return End{}, err
		}
	}
	e.Port = port
	return e, nil
}
