package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"netconform/internal/evidence"
)

type collector struct {
	mu     sync.Mutex
	lines  []string
	source *evidence.Source
}

func (c *collector) submit(_ context.Context, data []byte, source *evidence.Source) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if string(data) == "reject" {
		return errors.New("rejected")
	}
	c.lines = append(c.lines, string(data))
	c.source = source
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

func appendFile(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(text); err != nil {
		t.Fatal(err)
	}
}

func TestReadNew(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	appendFile(t, path, "one\n# comment\n\ntwo\n")

	c := &collector{}
	tail := NewTailer(path, "pcap", c.submit)

	n, err := tail.ReadNew(t.Context())
	if err != nil {
		t.Fatalf("ReadNew() error = %v", err)
	}
	if n != 2 {
		t.Errorf("submitted %d lines, want 2", n)
	}
	if c.source == nil || c.source.Name != path || c.source.Label != "pcap" {
		t.Errorf("source = %+v", c.source)
	}

	t.Run("nothing new", func(t *testing.T) {
		if n, _ := tail.ReadNew(t.Context()); n != 0 {
			t.Errorf("submitted %d lines, want 0", n)
		}
	})

	t.Run("partial line is held back", func(t *testing.T) {
		appendFile(t, path, "thr")
		if n, _ := tail.ReadNew(t.Context()); n != 0 {
			t.Errorf("submitted %d lines, want 0", n)
		}
		appendFile(t, path, "ee\n")
		if n, _ := tail.ReadNew(t.Context()); n != 1 {
			t.Errorf("submitted %d lines, want 1", n)
		}
		if got := c.lines[len(c.lines)-1]; got != "three" {
			t.Errorf("last line = %q", got)
		}
	})

	t.Run("rejected line is skipped", func(t *testing.T) {
		appendFile(t, path, "reject\nfour\n")
		if n, _ := tail.ReadNew(t.Context()); n != 1 {
			t.Errorf("submitted %d lines, want 1", n)
		}
	})

	t.Run("truncation restarts", func(t *testing.T) {
		if err := os.WriteFile(path, []byte("five\n"), 0644); err != nil {
			t.Fatal(err)
		}
		if n, _ := tail.ReadNew(t.Context()); n != 1 {
			t.Errorf("submitted %d lines, want 1", n)
		}
		if tail.Offset() != int64(len("five\n")) {
			t.Errorf("offset = %d", tail.Offset())
		}
	})
}

func TestReadNewMissingFile(t *testing.T) {
	tail := NewTailer(filepath.Join(t.TempDir(), "missing.jsonl"), "", (&collector{}).submit)
	if _, err := tail.ReadNew(t.Context()); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	appendFile(t, path, "one\n")

	c := &collector{}
	tail := NewTailer(path, "", c.submit).WithDebounce(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- tail.Watch(ctx) }()

	waitFor(t, func() bool { return c.count() == 1 })
	appendFile(t, path, "two\n")
	waitFor(t, func() bool { return c.count() == 2 })

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Watch() error = %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
