package domain

import (
	"errors"
	"testing"
)

func newTestSystem(t *testing.T) (*System, *Host, *Host, *Service, *Connection) {
	t.Helper()
	s := NewSystem("IoT")
	dev, err := s.AddHost("Device", MustParse("1:0:0:0:0:1|hw"))
	if err != nil {
		t.Fatalf("AddHost: %v", err)
	}
	backend, err := s.AddHost("Backend", MustParse("192.168.0.2"))
	if err != nil {
		t.Fatalf("AddHost: %v", err)
	}
	svc, err := s.AddPortService(backend.ID, ProtocolUDP, 1234)
	if err != nil {
		t.Fatalf("AddPortService: %v", err)
	}
	conn, err := s.AddConnection(dev.ID, svc.ID)
	if err != nil {
		t.Fatalf("AddConnection: %v", err)
	}
	s.Seal()
	return s, dev, backend, svc, conn
}

func TestSystemDeclaredModel(t *testing.T) {
	s, dev, backend, svc, conn := newTestSystem(t)

	t.Run("names and parents", func(t *testing.T) {
		if svc.Name != "UDP:1234" {
			t.Errorf("service name = %q", svc.Name)
		}
		if s.ParentHost(svc.ID) != backend.ID {
			t.Error("service parent should be backend")
		}
		if s.ParentHost(conn.ID) != dev.ID {
			t.Error("connection belongs to the source host")
		}
		if s.LongName(conn.ID) != "Device => Backend UDP:1234" {
			t.Errorf("connection long name = %q", s.LongName(conn.ID))
		}
	})

	t.Run("duplicate address rejected", func(t *testing.T) {
		_, err := s.AddHost("Other", MustParse("192.168.0.2"))
		if !errors.Is(err, ErrDuplicateAddress) {
			t.Errorf("error = %v, want ErrDuplicateAddress", err)
		}
	})

	t.Run("duplicate connection rejected", func(t *testing.T) {
		if _, err := s.AddConnection(dev.ID, svc.ID); !errors.Is(err, ErrDuplicateEntity) {
			t.Errorf("error = %v, want ErrDuplicateEntity", err)
		}
	})

	t.Run("connection lookup in both directions", func(t *testing.T) {
		c, reversed := s.ConnectionBetween(svc.ID, dev.ID)
		if c != conn || !reversed {
			t.Errorf("ConnectionBetween reversed = %v, %v", c, reversed)
		}
	})

	t.Run("originals", func(t *testing.T) {
		if !s.IsOriginal(dev.ID) || !s.IsOriginal(conn.ID) {
			t.Error("declared entities should be original")
		}
	})
}

func TestSystemIsExternal(t *testing.T) {
	s := NewSystem("IoT")
	tests := []struct {
		addr string
		want bool
	}{
		{"192.168.0.5", false},
		{"10.0.0.9", true},
		{"8.8.8.8", true},
		{"224.0.0.251", false},
		{"255.255.255.255", false},
		{"127.0.0.1", false},
		{"fe80::1", false},
		{"1:0:0:0:0:1|hw", false},
	}
	for _, tt := range tests {
		if got := s.IsExternal(MustParse(tt.addr)); got != tt.want {
			t.Errorf("IsExternal(%s) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestGetEndpoint(t *testing.T) {
	s, _, backend, svc, _ := newTestSystem(t)

	t.Run("declared service by wildcard endpoint", func(t *testing.T) {
		e, err := s.GetEndpoint(MustParse("192.168.0.2/udp:1234"))
		if err != nil {
			t.Fatal(err)
		}
		if e.EntityID() != svc.ID {
			t.Errorf("resolved to %s", s.LongName(e.EntityID()))
		}
	})

	t.Run("unknown port creates placeholder service", func(t *testing.T) {
		e, err := s.GetEndpoint(MustParse("192.168.0.2/tcp:2234"))
		if err != nil {
			t.Fatal(err)
		}
		got, ok := e.(*Service)
		if !ok || got.Status != StatusPlaceholder || got.Parent != backend.ID || got.Name != "TCP:2234" {
			t.Errorf("unexpected entity %+v", e)
		}
		again, _ := s.GetEndpoint(MustParse("192.168.0.2/tcp:2234"))
		if again.EntityID() != got.ID {
			t.Error("placeholder service duplicated")
		}
	})

	t.Run("placeholder host types", func(t *testing.T) {
		tests := []struct {
			addr string
			want HostType
		}{
			{"10.1.2.3", HostTypeRemote},
			{"192.168.0.77", HostTypeGeneric},
			{"255.255.255.255", HostTypeAdministrative},
		}
		for _, tt := range tests {
			e, err := s.GetEndpoint(MustParse(tt.addr))
			if err != nil {
				t.Fatal(err)
			}
			h := e.(*Host)
			if h.HostType != tt.want || h.ExternalActivity != ActivityUnlimited || h.Status != StatusPlaceholder {
				t.Errorf("%s: type=%s activity=%s status=%s", tt.addr, h.HostType, h.ExternalActivity, h.Status)
			}
		}
	})

	t.Run("wildcard cannot be resolved", func(t *testing.T) {
		if _, err := s.GetEndpoint(AnyHost); !errors.Is(err, ErrMalformedAddress) {
			t.Errorf("error = %v", err)
		}
	})
}

func TestMatchServiceAmbiguous(t *testing.T) {
	s := NewSystem("IoT")
	h, _ := s.AddHost("Server", MustParse("192.168.0.3"))
	if _, err := s.AddService(h.ID, "web", AnyEndpoint(ProtocolTCP, 80)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddService(h.ID, "web-alt", MustParse("192.168.0.3/tcp:80")); err != nil {
		t.Fatal(err)
	}
	_, err := s.MatchService(h.ID, MustParse("192.168.0.3/tcp:80"))
	if !errors.Is(err, ErrAmbiguousMatch) {
		t.Errorf("error = %v, want ErrAmbiguousMatch", err)
	}
}

func TestSetSeenNow(t *testing.T) {
	s, _, backend, svc, _ := newTestSystem(t)

	if !s.SetSeenNow(svc.ID) {
		t.Fatal("first observation should change")
	}
	if svc.ExpectedVerdict() != VerdictPass || backend.ExpectedVerdict() != VerdictPass {
		t.Error("service and its host should pass")
	}
	if s.SetSeenNow(svc.ID) {
		t.Error("repeated observation must not report a change")
	}

	e, _ := s.GetEndpoint(MustParse("192.168.0.9"))
	if s.SetSeenNow(e.EntityID()) {
		t.Error("placeholder is not subject to the rule")
	}
	s.ResolvePlaceholder(e.EntityID(), StatusUnexpected)
	if !s.SetSeenNow(e.EntityID()) || e.Core().ExpectedVerdict() != VerdictFail {
		t.Error("unexpected entity should fail")
	}
	if s.ExpectedVerdict() != VerdictUndefined {
		t.Error("hosts must not propagate to the system")
	}
}

func TestLearnAddressPair(t *testing.T) {
	s, dev, backend, _, _ := newTestSystem(t)

	if !s.LearnAddressPair(dev.ID, MustParse("1:0:0:0:0:1|hw"), MustParse("192.168.0.1")) {
		t.Fatal("expected IP to be learned")
	}
	if id, ok := s.FindHost(MustParse("192.168.0.1")); !ok || id != dev.ID {
		t.Error("learned IP should resolve to the device")
	}
	if s.LearnAddressPair(dev.ID, MustParse("1:0:0:0:0:1|hw"), MustParse("192.168.0.1")) {
		t.Error("learning twice should not change")
	}
	if s.LearnAddressPair(dev.ID, MustParse("1:0:0:0:0:1|hw"), MustParse("192.168.0.2")) {
		t.Error("an address owned by another host must not be learned")
	}
	if s.LearnAddressPair(backend.ID, MustParse("1:0:0:0:0:2|hw"), MustParse("8.8.8.8")) {
		t.Error("external IPs are not learned")
	}
}

func TestLearnNamedAddress(t *testing.T) {
	s, _, backend, _, _ := newTestSystem(t)

	t.Run("name for declared address", func(t *testing.T) {
		h, changed, err := s.LearnNamedAddress(DNSName("backend.example.com"), MustParse("192.168.0.2"))
		if err != nil || h != backend || !changed {
			t.Fatalf("got %v, %v, %v", h, changed, err)
		}
		if id, _ := s.FindHost(DNSName("backend.example.com")); id != backend.ID {
			t.Error("name should be bound to backend")
		}
	})

	t.Run("new name creates placeholder", func(t *testing.T) {
		h, changed, err := s.LearnNamedAddress(DNSName("cloud.example.com"), MustParse("52.1.2.3"))
		if err != nil || !changed || h.Status != StatusPlaceholder {
			t.Fatalf("got %+v, %v, %v", h, changed, err)
		}
		if !h.HasAddress(MustParse("52.1.2.3")) {
			t.Error("resolved address should be bound")
		}
	})

	t.Run("placeholder name moves to declared host", func(t *testing.T) {
		ph, _, _ := s.LearnNamedAddress(DNSName("alias.example.com"), Address{})
		h, changed, err := s.LearnNamedAddress(DNSName("alias.example.com"), MustParse("192.168.0.2"))
		if err != nil || h != backend || !changed {
			t.Fatalf("got %v, %v, %v", h, changed, err)
		}
		if ph.HasAddress(DNSName("alias.example.com")) {
			t.Error("name should have left the placeholder")
		}
	})

	t.Run("reverse name", func(t *testing.T) {
		h, _, err := s.LearnNamedAddress(DNSName("2.0.168.192.in-addr.arpa"), Address{})
		if err != nil || h != backend {
			t.Errorf("got %v, %v", h, err)
		}
	})
}

func TestVerdictAggregation(t *testing.T) {
	s, dev, backend, svc, conn := newTestSystem(t)

	cache := NewVerdictCache()
	if v := s.Verdict(s.ID, cache); v != VerdictUndefined {
		t.Errorf("fresh system verdict = %q", v)
	}

	s.SetSeenNow(conn.ID)
	s.SetSeenNow(dev.ID)
	cache = NewVerdictCache()
	if v := s.Verdict(dev.ID, cache); v != VerdictPass {
		t.Errorf("device verdict = %q", v)
	}
	if v := s.Verdict(backend.ID, cache); v != VerdictUndefined {
		t.Errorf("backend verdict = %q", v)
	}

	svc.SetExpectedVerdict(VerdictFail, "closed")
	cache = NewVerdictCache()
	if v := s.Verdict(s.ID, cache); v != VerdictFail {
		t.Errorf("system verdict = %q", v)
	}

	backend.Properties.Set(NewPropertyKey("review"), VerdictValue(VerdictIgnore, "accepted"))
	cache = NewVerdictCache()
	if v := s.Verdict(backend.ID, cache); v != VerdictIgnore {
		t.Errorf("ignored backend verdict = %q", v)
	}
	if v := s.Verdict(s.ID, cache); v != VerdictPass {
		t.Errorf("system verdict with ignored backend = %q", v)
	}
}

func TestSystemReset(t *testing.T) {
	s, dev, _, _, conn := newTestSystem(t)
	model := NewPropertyKey("check", "sbom").Persistent()
	dev.Properties.Set(model, VerdictValue(VerdictPass, "sbom checked"))
	s.SetSeenNow(conn.ID)

	e, _ := s.GetEndpoint(MustParse("10.0.0.9"))
	s.ResolvePlaceholder(e.EntityID(), StatusUnexpected)
	s.SetSeenNow(e.EntityID())

	s.Reset()

	if conn.ExpectedVerdict() != VerdictUndefined {
		t.Error("reset should clear observations")
	}
	if v, _ := dev.Properties.Get(model); v.Verdict != VerdictIncon {
		t.Errorf("model property after reset = %q", v.Verdict)
	}
	if e.Core().Status != StatusPlaceholder || e.Core().Properties.Len() != 0 {
		t.Error("evidence entities revert to placeholders")
	}
	if id, ok := s.FindHost(MustParse("10.0.0.9")); !ok || id != e.EntityID() {
		t.Error("placeholder identity should survive reset")
	}
}

func TestVerdictSkipsIrrelevantConnections(t *testing.T) {
	s, _, _, _, _ := newTestSystem(t)

	a, err := s.GetEndpoint(MustParse("52.1.2.3"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.GetEndpoint(MustParse("52.9.9.9"))
	if err != nil {
		t.Fatal(err)
	}
	s.ResolvePlaceholder(a.EntityID(), StatusExternal)
	s.ResolvePlaceholder(b.EntityID(), StatusExternal)
	c := s.NewConnection(a.EntityID(), b.EntityID())
	s.ResolvePlaceholder(c.ID, StatusExternal)
	c.SetExpectedVerdict(VerdictFail, "reply from restricted host")

	if s.IsRelevant(c.ID) {
		t.Fatal("connection between external hosts should not be relevant")
	}
	if v := s.Verdict(a.EntityID(), NewVerdictCache()); v != VerdictUndefined {
		t.Errorf("external host verdict = %q, want undefined", v)
	}
	for _, id := range s.Children(a.EntityID()) {
		if id == c.ID {
			t.Error("irrelevant connection listed as a child")
		}
	}
}
