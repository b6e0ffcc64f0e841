package adapter

import (
	"context"
	"errors"
	"testing"

	"netconform/internal/domain"
	"netconform/internal/evidence"
)

type stubCollector struct {
	name     string
	events   []evidence.Event
	err      error
	followed []evidence.Event
}

func (s *stubCollector) Name() string { return s.name }

func (s *stubCollector) Collect(context.Context) ([]evidence.Event, error) {
	return s.events, s.err
}

type stubFollower struct {
	stubCollector
}

func (s *stubFollower) Follow(events []evidence.Event) { s.followed = events }

func scan(endpoint string) evidence.Event {
	return &evidence.ServiceScan{Endpoint: domain.MustParse(endpoint)}
}

func TestRegistryRun(t *testing.T) {
	var submitted []evidence.Event
	reg := NewRegistry(func(_ context.Context, events []evidence.Event) (int, error) {
		submitted = append(submitted, events...)
		return len(events), nil
	})

	first := &stubCollector{name: "first", events: []evidence.Event{scan("192.168.0.2/tcp:22")}}
	broken := &stubCollector{name: "broken", err: errors.New("tool missing")}
	follower := &stubFollower{stubCollector{name: "follower", events: []evidence.Event{scan("192.168.0.2/tcp:80")}}}
	for _, c := range []Collector{first, broken, follower} {
		if err := reg.Register(c); err != nil {
			t.Fatal(err)
		}
	}

	n, err := reg.Run(t.Context())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n != 2 || len(submitted) != 2 {
		t.Errorf("submitted %d events (%d), want 2", n, len(submitted))
	}
	if len(follower.followed) != 1 {
		t.Errorf("follower saw %d events, want 1", len(follower.followed))
	}
}

func TestRegistryDuplicate(t *testing.T) {
	reg := NewRegistry(nil)
	if err := reg.Register(&stubCollector{name: "nmap"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(&stubCollector{name: "nmap"}); err == nil {
		t.Error("expected duplicate registration to fail")
	}
	if names := reg.Names(); len(names) != 1 || names[0] != "nmap" {
		t.Errorf("names = %v", names)
	}
}

func TestRegistrySubmitFailure(t *testing.T) {
	failure := errors.New("stopped")
	reg := NewRegistry(func(context.Context, []evidence.Event) (int, error) {
		return 0, failure
	})
	reg.Register(&stubCollector{name: "first", events: []evidence.Event{scan("192.168.0.2/tcp:22")}})

	if _, err := reg.Run(t.Context()); !errors.Is(err, failure) {
		t.Errorf("error = %v, want %v", err, failure)
	}
}
