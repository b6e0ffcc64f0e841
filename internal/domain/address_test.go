package domain

import (
	"errors"
	"testing"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		input    string
		wantKind AddressKind
		wantStr  string
	}{
		{"192.168.0.1", AddressIP, "192.168.0.1"},
		{"192.168.0.1|ip", AddressIP, "192.168.0.1"},
		{"1:0:0:0:0:1|hw", AddressHardware, "01:00:00:00:00:01"},
		{"1:0:0:0:0:1", AddressHardware, "01:00:00:00:00:01"},
		{"Example.COM.|name", AddressName, "example.com"},
		{"*", AddressPseudo, "*"},
		{"BLE_Ad", AddressPseudo, "BLE_Ad"},
		{"192.168.0.2/udp:1234", AddressEndpoint, "192.168.0.2/udp:1234"},
		{"*/tcp:80", AddressEndpoint, "*/tcp:80"},
		{"fe80::1/tcp:22", AddressEndpoint, "fe80::1/tcp:22"},
		{"10.0.0.1/icmp", AddressEndpoint, "10.0.0.1/icmp"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			a, err := ParseAddress(tt.input)
			if err != nil {
				t.Fatalf("ParseAddress(%q) error: %v", tt.input, err)
			}
			if a.Kind() != tt.wantKind {
				t.Errorf("kind = %s, want %s", a.Kind(), tt.wantKind)
			}
			if a.String() != tt.wantStr {
				t.Errorf("String() = %q, want %q", a.String(), tt.wantStr)
			}
		})
	}
}

func TestParseAddressErrors(t *testing.T) {
	inputs := []string{
		"",
		"300.1.1.1",
		"1:2:3|hw",
		"foo|bar",
		"192.168.0.1/xyz:80",
		"192.168.0.1/tcp:99999",
		"192.168.0.1/tcp:abc",
	}
	for _, in := range inputs {
		if _, err := ParseAddress(in); !errors.Is(err, ErrMalformedAddress) {
			t.Errorf("ParseAddress(%q) error = %v, want ErrMalformedAddress", in, err)
		}
	}
}

func TestParseableValueRoundTrip(t *testing.T) {
	for _, s := range []string{"1:0:0:0:0:1|hw", "backend.local|name", "192.168.0.2/udp:1234", "*/udp:67"} {
		a := MustParse(s)
		b, err := ParseAddress(a.ParseableValue())
		if err != nil {
			t.Fatalf("reparse %q: %v", a.ParseableValue(), err)
		}
		if a != b {
			t.Errorf("round trip of %q gave %v", s, b)
		}
	}
}

func TestAddressClassification(t *testing.T) {
	t.Run("multicast and broadcast", func(t *testing.T) {
		for _, a := range []Address{BroadcastHW, BroadcastIP, MustParse("224.0.0.251"), BLEAdvertisement, MustParse("1:0:5e:0:0:fb|hw")} {
			if !a.IsMulticast() {
				t.Errorf("%s should be multicast", a)
			}
		}
		if MustParse("192.168.0.1").IsMulticast() {
			t.Error("unicast IP reported multicast")
		}
	})

	t.Run("null values", func(t *testing.T) {
		if !NullHW.IsNull() || !NullIP.IsNull() || !(Address{}).IsNull() {
			t.Error("null addresses should report IsNull")
		}
		if BroadcastHW.IsNull() {
			t.Error("broadcast is not null")
		}
	})

	t.Run("hardware", func(t *testing.T) {
		if !BLEAdvertisement.IsHardware() || !BroadcastHW.IsHardware() {
			t.Error("expected hardware addresses")
		}
		if MustParse("10.0.0.1").IsHardware() {
			t.Error("IP is not hardware")
		}
	})
}

func TestEndpointMatches(t *testing.T) {
	declared := AnyEndpoint(ProtocolUDP, 1234)
	concrete := MustParse("192.168.0.2/udp:1234")

	if !declared.Matches(concrete) {
		t.Error("wildcard endpoint should match concrete host")
	}
	if concrete.Matches(declared) {
		t.Error("matching must be one-directional")
	}
	if declared.Matches(MustParse("192.168.0.2/tcp:1234")) {
		t.Error("protocol must match")
	}
	if declared.Matches(MustParse("192.168.0.2/udp:1235")) {
		t.Error("port must match")
	}
	if !concrete.Matches(concrete) {
		t.Error("equal endpoints match")
	}
	if concrete.WithHost(AnyHost) != declared {
		t.Error("WithHost should replace the host part")
	}
	if declared.WithHost(MustParse("192.168.0.2")) != concrete {
		t.Error("WithHost should resolve the wildcard")
	}
}

func TestReverseDNSAddress(t *testing.T) {
	ip, ok := ReverseDNSAddress(DNSName("2.0.168.192.in-addr.arpa"))
	if !ok || ip != MustParse("192.168.0.2") {
		t.Errorf("in-addr.arpa decoded to %v, %v", ip, ok)
	}

	v6 := "1.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.8.e.f.ip6.arpa"
	ip, ok = ReverseDNSAddress(DNSName(v6))
	if !ok || ip != MustParse("fe80::1") {
		t.Errorf("ip6.arpa decoded to %v, %v", ip, ok)
	}

	if _, ok := ReverseDNSAddress(DNSName("example.com")); ok {
		t.Error("forward name decoded as reverse")
	}
}
