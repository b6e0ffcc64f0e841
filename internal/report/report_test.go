package report

import (
	"bytes"
	"strings"
	"testing"

	"netconform/internal/domain"
	"netconform/internal/service"
)

func sampleReport() *service.Report {
	return &service.Report{
		System:  "Smart Lock",
		Verdict: domain.VerdictFail,
		Counts:  map[string]int{"pass": 2, "fail": 1, "undefined": 1},
		Entities: []*service.EntityReport{
			{
				ID: 1, Kind: "host", Name: "Lock", Status: domain.StatusExpected, Verdict: domain.VerdictPass,
				Addresses: []string{"1:0:0:0:0:1|hw"},
				Properties: []service.PropertyReport{
					{Key: "check:sbom", Verdict: domain.VerdictPass, Explanation: "reviewed"},
				},
				Children: []*service.EntityReport{
					{ID: 3, Kind: "service", Name: "UDP:1234", Status: domain.StatusExpected, Verdict: domain.VerdictPass},
				},
			},
			{
				ID: 2, Kind: "host", Name: "192.168.0.9", Status: domain.StatusUnexpected, Verdict: domain.VerdictFail,
				Properties: []service.PropertyReport{
					{Key: "ssh:host-key", Value: "ssh-ed25519 SHA256:abc"},
				},
			},
		},
	}
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, sampleReport(), Options{}); err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	want := []string{
		"Smart Lock [fail]",
		"4 entities fail=1 pass=2 undefined=1",
		"",
		"├─ Lock [pass] host expected #1 1:0:0:0:0:1|hw",
		"│  └─ UDP:1234 [pass] service expected #3",
		"└─ 192.168.0.9 [fail] host unexpected #2",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(want), buf.String())
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestRenderProperties(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, sampleReport(), Options{Properties: true}); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	out := buf.String()
	for _, s := range []string{
		"│  · check:sbom [pass] reviewed",
		"   · ssh:host-key ssh-ed25519 SHA256:abc",
	} {
		if !strings.Contains(out, s) {
			t.Errorf("output missing %q:\n%s", s, out)
		}
	}
}

func TestRenderColor(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, sampleReport(), Options{Color: true}); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(buf.String(), "Lock") {
		t.Errorf("colored output lost entity names:\n%s", buf.String())
	}
}

func TestSummary(t *testing.T) {
	rep := &service.Report{Counts: map[string]int{}}
	if got := Summary(rep); got != "0 entities" {
		t.Errorf("Summary() = %q", got)
	}
}

func TestIdentities(t *testing.T) {
	ids := []service.Identity{
		{ID: 1, Kind: "system", Name: "Smart Lock", Key: "system"},
		{ID: 2, Kind: "host", Name: "Backend", Key: "host:Backend"},
	}
	var buf bytes.Buffer
	if err := Identities(&buf, ids, Options{}); err != nil {
		t.Fatalf("Identities() error = %v", err)
	}
	out := buf.String()
	for _, s := range []string{"ID", "KIND", "Backend", "host:Backend", "Smart Lock"} {
		if !strings.Contains(out, s) {
			t.Errorf("output missing %q:\n%s", s, out)
		}
	}
}
