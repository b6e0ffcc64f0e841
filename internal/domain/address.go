package domain

import (
	"encoding/hex"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// Protocol tags a flow or an endpoint with its transport or application protocol
type Protocol string

const (
	ProtocolAny  Protocol = ""
	ProtocolARP  Protocol = "arp"
	ProtocolDNS  Protocol = "dns"
	ProtocolEth  Protocol = "eth"
	ProtocolHTTP Protocol = "http"
	ProtocolICMP Protocol = "icmp"
	ProtocolTCP  Protocol = "tcp"
	ProtocolIP   Protocol = "ip"
	ProtocolSSH  Protocol = "ssh"
	ProtocolTLS  Protocol = "tls"
	ProtocolUDP  Protocol = "udp"
	ProtocolBLE  Protocol = "ble"
)

// ParseProtocol converts a protocol tag, case-insensitive
func ParseProtocol(s string) (Protocol, error) {
	p := Protocol(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case ProtocolAny, ProtocolARP, ProtocolDNS, ProtocolEth, ProtocolHTTP, ProtocolICMP,
		ProtocolTCP, ProtocolIP, ProtocolSSH, ProtocolTLS, ProtocolUDP, ProtocolBLE:
		return p, nil
	}
	return ProtocolAny, fmt.Errorf("%w: unknown protocol %q", ErrMalformedAddress, s)
}

// AddressKind discriminates the Address variants
type AddressKind uint8

const (
	AddressNone AddressKind = iota
	AddressHardware
	AddressIP
	AddressName
	AddressPseudo
	AddressEndpoint
)

func (k AddressKind) String() string {
	switch k {
	case AddressHardware:
		return "hw"
	case AddressIP:
		return "ip"
	case AddressName:
		return "name"
	case AddressPseudo:
		return "pseudo"
	case AddressEndpoint:
		return "endpoint"
	}
	return "none"
}

// Address is an immutable, comparable address value usable as a map key.
//
// Host addresses are hardware, IP, DNS name or one of the pseudo addresses
// (the ANY wildcard and the BLE advertisement sink). An endpoint carries a
// host address together with a protocol and a port; port -1 means no port.
type Address struct {
	kind     AddressKind
	hostKind AddressKind
	hw       [6]byte
	ip       netip.Addr
	name     string
	proto    Protocol
	port     int
}

var (
	// NullHW is the all-zero hardware address
	NullHW = Address{kind: AddressHardware}
	// BroadcastHW is ff:ff:ff:ff:ff:ff
	BroadcastHW = Address{kind: AddressHardware, hw: [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}}
	// NullIP is 0.0.0.0
	NullIP = Address{kind: AddressIP, ip: netip.IPv4Unspecified()}
	// BroadcastIP is 255.255.255.255
	BroadcastIP = Address{kind: AddressIP, ip: netip.AddrFrom4([4]byte{255, 255, 255, 255})}
	// AnyHost is the wildcard host used in endpoints declared without a fixed host
	AnyHost = Address{kind: AddressPseudo, name: "*"}
	// BLEAdvertisement is the pseudo address BLE advertisements are sent to
	BLEAdvertisement = Address{kind: AddressPseudo, name: "BLE_Ad"}
)

// HWAddress returns a hardware address
func HWAddress(b [6]byte) Address {
	return Address{kind: AddressHardware, hw: b}
}

// IPAddress returns an IP address, IPv4-mapped IPv6 addresses are unmapped
func IPAddress(ip netip.Addr) Address {
	return Address{kind: AddressIP, ip: ip.Unmap()}
}

// DNSName returns a DNS name address
func DNSName(name string) Address {
	return Address{kind: AddressName, name: strings.ToLower(strings.TrimSuffix(name, "."))}
}

// Endpoint combines a host address with protocol and port
func Endpoint(host Address, proto Protocol, port int) Address {
	if host.kind == AddressEndpoint {
		host = host.Host()
	}
	return Address{
		kind:     AddressEndpoint,
		hostKind: host.kind,
		hw:       host.hw,
		ip:       host.ip,
		name:     host.name,
		proto:    proto,
		port:     port,
	}
}

// AnyEndpoint is an endpoint on the wildcard host
func AnyEndpoint(proto Protocol, port int) Address {
	return Endpoint(AnyHost, proto, port)
}

// ParseHW parses a colon separated hardware address. Segments may omit the
// leading zero, so "1:0:0:0:0:1" is accepted.
func ParseHW(s string) (Address, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return Address{}, fmt.Errorf("%w: hardware address %q", ErrMalformedAddress, s)
	}
	var b [6]byte
	for i, p := range parts {
		if len(p) == 0 || len(p) > 2 {
			return Address{}, fmt.Errorf("%w: hardware address %q", ErrMalformedAddress, s)
		}
		if len(p) == 1 {
			p = "0" + p
		}
		v, err := hex.DecodeString(p)
		if err != nil {
			return Address{}, fmt.Errorf("%w: hardware address %q", ErrMalformedAddress, s)
		}
		b[i] = v[0]
	}
	return HWAddress(b), nil
}

// ParseIP parses an IPv4 or IPv6 address
func ParseIP(s string) (Address, error) {
	ip, err := netip.ParseAddr(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: ip address %q", ErrMalformedAddress, s)
	}
	return IPAddress(ip), nil
}

// ParseAddress parses a host address in "value|type" form where type is
// ip (the default), hw or name. "*" and "BLE_Ad" parse to the pseudo
// addresses. Values containing a slash are parsed as endpoints.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}, fmt.Errorf("%w: empty address", ErrMalformedAddress)
	}
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return parseEndpoint(s, i)
	}
	return parseHost(s)
}

// MustParse is like ParseAddress but panics on error
func MustParse(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func parseHost(s string) (Address, error) {
	value, typ, found := strings.Cut(s, "|")
	if !found {
		switch value {
		case AnyHost.name:
			return AnyHost, nil
		case BLEAdvertisement.name:
			return BLEAdvertisement, nil
		}
		if a, err := ParseIP(value); err == nil {
			return a, nil
		}
		if a, err := ParseHW(value); err == nil {
			return a, nil
		}
		typ = "ip"
	}
	switch typ {
	case "ip":
		return ParseIP(value)
	case "hw":
		return ParseHW(value)
	case "name":
		if value == "" {
			return Address{}, fmt.Errorf("%w: empty name", ErrMalformedAddress)
		}
		return DNSName(value), nil
	}
	return Address{}, fmt.Errorf("%w: unknown address type %q", ErrMalformedAddress, typ)
}

// parseEndpoint handles "host/proto:port" and "host/proto"
func parseEndpoint(s string, slash int) (Address, error) {
	host, err := parseHost(s[:slash])
	if err != nil {
		return Address{}, err
	}
	protoPart, portPart, hasPort := strings.Cut(s[slash+1:], ":")
	proto, err := ParseProtocol(protoPart)
	if err != nil {
		return Address{}, err
	}
	port := -1
	if hasPort {
		port, err = strconv.Atoi(portPart)
		if err != nil || port < 0 || port > 65535 {
			return Address{}, fmt.Errorf("%w: port in %q", ErrMalformedAddress, s)
		}
	}
	return Endpoint(host, proto, port), nil
}

// Kind returns the address variant
func (a Address) Kind() AddressKind {
	return a.kind
}

// IsZero reports whether the address is unset
func (a Address) IsZero() bool {
	return a.kind == AddressNone
}

// IsNull reports the all-zero value of the address kind
func (a Address) IsNull() bool {
	switch a.kind {
	case AddressNone:
		return true
	case AddressHardware:
		return a.hw == [6]byte{}
	case AddressIP:
		return !a.ip.IsValid() || a.ip.IsUnspecified()
	case AddressName:
		return a.name == ""
	case AddressEndpoint:
		return a.Host().IsNull()
	}
	return false
}

// IsEndpoint reports whether the address carries protocol and port
func (a Address) IsEndpoint() bool {
	return a.kind == AddressEndpoint
}

// Host strips protocol and port from an endpoint
func (a Address) Host() Address {
	if a.kind != AddressEndpoint {
		return a
	}
	return Address{kind: a.hostKind, hw: a.hw, ip: a.ip, name: a.name}
}

// WithHost replaces the host part of an endpoint
func (a Address) WithHost(host Address) Address {
	if a.kind != AddressEndpoint {
		return host
	}
	return Endpoint(host, a.proto, a.port)
}

// Protocol returns the endpoint protocol
func (a Address) Protocol() Protocol {
	return a.proto
}

// Port returns the endpoint port, -1 when there is none
func (a Address) Port() int {
	if a.kind != AddressEndpoint {
		return -1
	}
	return a.port
}

// IP returns the IP of an IP address or an IP based endpoint
func (a Address) IP() netip.Addr {
	return a.ip
}

// IsIP reports an IP host address
func (a Address) IsIP() bool {
	return a.Host().kind == AddressIP
}

// IsName reports a DNS name host address
func (a Address) IsName() bool {
	return a.Host().kind == AddressName
}

// IsHardware reports a hardware address, including the BLE advertisement sink
func (a Address) IsHardware() bool {
	h := a.Host()
	return h.kind == AddressHardware || h == BLEAdvertisement
}

// IsWildcard reports the ANY host or an endpoint on it
func (a Address) IsWildcard() bool {
	return a.Host() == AnyHost
}

// IsMulticast covers broadcast, group addresses and the BLE advertisement sink
func (a Address) IsMulticast() bool {
	h := a.Host()
	switch h.kind {
	case AddressHardware:
		return h.hw[0]&0x01 != 0
	case AddressIP:
		return h.ip.IsMulticast() || h == BroadcastIP
	case AddressPseudo:
		return h == BLEAdvertisement
	}
	return false
}

// IsGlobal reports a globally routable unicast IP
func (a Address) IsGlobal() bool {
	h := a.Host()
	return h.kind == AddressIP && h.ip.IsGlobalUnicast() && !h.ip.IsPrivate()
}

// Matches compares a declared address against an observed one. An endpoint
// on the ANY host matches any host with the same protocol and port; the
// reverse direction does not hold.
func (a Address) Matches(observed Address) bool {
	if a == observed {
		return true
	}
	if a.kind != AddressEndpoint || observed.kind != AddressEndpoint {
		return false
	}
	return a.IsWildcard() && a.proto == observed.proto && a.port == observed.port
}

func (a Address) String() string {
	switch a.kind {
	case AddressHardware:
		return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a.hw[0], a.hw[1], a.hw[2], a.hw[3], a.hw[4], a.hw[5])
	case AddressIP:
		return a.ip.String()
	case AddressName, AddressPseudo:
		return a.name
	case AddressEndpoint:
		return a.Host().String() + a.suffix()
	}
	return ""
}

// ParseableValue renders the address so that ParseAddress restores it
func (a Address) ParseableValue() string {
	switch a.kind {
	case AddressHardware:
		return a.String() + "|hw"
	case AddressName:
		return a.name + "|name"
	case AddressEndpoint:
		return a.Host().ParseableValue() + a.suffix()
	}
	return a.String()
}

func (a Address) suffix() string {
	if a.port < 0 {
		return "/" + string(a.proto)
	}
	return fmt.Sprintf("/%s:%d", a.proto, a.port)
}

// MarshalText implements encoding.TextMarshaler
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.ParseableValue()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, empty text is the zero address
func (a *Address) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ReverseDNSAddress decodes an in-addr.arpa or ip6.arpa name into its IP
func ReverseDNSAddress(name Address) (Address, bool) {
	n := strings.ToLower(name.name)
	if name.kind != AddressName {
		return Address{}, false
	}
	if rest, ok := strings.CutSuffix(n, ".in-addr.arpa"); ok {
		parts := strings.Split(rest, ".")
		if len(parts) != 4 {
			return Address{}, false
		}
		for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
			parts[i], parts[j] = parts[j], parts[i]
		}
		ip, err := ParseIP(strings.Join(parts, "."))
		return ip, err == nil
	}
	if rest, ok := strings.CutSuffix(n, ".ip6.arpa"); ok {
		nibbles := strings.Split(rest, ".")
		if len(nibbles) != 32 {
			return Address{}, false
		}
		var sb strings.Builder
		for i := len(nibbles) - 1; i >= 0; i-- {
			sb.WriteString(nibbles[i])
			if i%4 == 0 && i > 0 {
				sb.WriteByte(':')
			}
		}
		ip, err := ParseIP(sb.String())
		return ip, err == nil
	}
	return Address{}, false
}
