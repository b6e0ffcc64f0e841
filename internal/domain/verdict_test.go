package domain

import "testing"

var allVerdicts = []Verdict{
	VerdictUndefined, VerdictIncon, VerdictPass, VerdictFail, VerdictExternal, VerdictIgnore,
}

func TestResolveCommutative(t *testing.T) {
	for _, a := range allVerdicts {
		for _, b := range allVerdicts {
			if Resolve(a, b) != Resolve(b, a) {
				t.Errorf("Resolve(%q, %q) = %q but Resolve(%q, %q) = %q",
					a, b, Resolve(a, b), b, a, Resolve(b, a))
			}
		}
	}
}

func TestResolveAssociative(t *testing.T) {
	for _, a := range allVerdicts {
		for _, b := range allVerdicts {
			for _, c := range allVerdicts {
				if Resolve(Resolve(a, b), c) != Resolve(a, Resolve(b, c)) {
					t.Errorf("not associative for %q %q %q", a, b, c)
				}
			}
		}
	}
}

func TestResolveIdentity(t *testing.T) {
	for _, v := range allVerdicts {
		if got := Resolve(VerdictUndefined, v); got != v {
			t.Errorf("Resolve(Undefined, %q) = %q", v, got)
		}
	}
}

func TestResolvePrecedence(t *testing.T) {
	tests := []struct {
		a, b, want Verdict
	}{
		{VerdictFail, VerdictPass, VerdictFail},
		{VerdictFail, VerdictExternal, VerdictFail},
		{VerdictExternal, VerdictPass, VerdictExternal},
		{VerdictPass, VerdictIncon, VerdictPass},
		{VerdictIncon, VerdictIgnore, VerdictIncon},
		{VerdictIgnore, VerdictUndefined, VerdictIgnore},
	}
	for _, tt := range tests {
		if got := Resolve(tt.a, tt.b); got != tt.want {
			t.Errorf("Resolve(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
	}
	if got := ResolveAll(VerdictIncon, VerdictPass, VerdictFail, VerdictIgnore); got != VerdictFail {
		t.Errorf("ResolveAll = %q, want fail", got)
	}
}

func TestParseExternalActivity(t *testing.T) {
	tests := []struct {
		input string
		want  ExternalActivity
	}{
		{"", ActivityBanned},
		{"banned", ActivityBanned},
		{"Passive", ActivityPassive},
		{"open", ActivityOpen},
		{"UNLIMITED", ActivityUnlimited},
	}
	for _, tt := range tests {
		got, err := ParseExternalActivity(tt.input)
		if err != nil || got != tt.want {
			t.Errorf("ParseExternalActivity(%q) = %v, %v; want %v", tt.input, got, err, tt.want)
		}
	}
	if _, err := ParseExternalActivity("sometimes"); err == nil {
		t.Error("expected error for unknown activity")
	}
	if !(ActivityBanned < ActivityPassive && ActivityPassive < ActivityOpen && ActivityOpen < ActivityUnlimited) {
		t.Error("activities must be ordered")
	}
}

func TestProperties(t *testing.T) {
	var p Properties
	model := NewPropertyKey("check", "firmware").Persistent()
	other := NewPropertyKey("http", "redirect")

	if !p.Set(model, VerdictValue(VerdictPass, "declared")) {
		t.Fatal("first set should change")
	}
	if p.Set(model, VerdictValue(VerdictPass, "declared")) {
		t.Error("identical set should not change")
	}
	p.Set(other, PropertyValue{Value: "https"})

	keys := p.All()
	if len(keys) != 2 || keys[0].Key.String() != "check:firmware" || keys[1].Key.String() != "http:redirect" {
		t.Errorf("unexpected order: %v", keys)
	}

	p.reset()
	if p.Has(other) {
		t.Error("reset should drop evidence properties")
	}
	v, ok := p.Get(model)
	if !ok || v.Verdict != VerdictIncon || v.Explanation != "declared" {
		t.Errorf("model property after reset = %+v, %v", v, ok)
	}
}
