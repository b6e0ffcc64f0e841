package hub

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"netconform/internal/service"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubDeliversBusEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New()
	go h.Run(ctx)
	bus := service.NewEventBus()
	h.Forward(ctx, bus)

	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	bus.Publish(service.Event{Type: service.EventHostChanged, Payload: service.EntitySummary{ID: 7, Name: "Backend"}})

	reader := bufio.NewReader(resp.Body)
	var event, data string
	for data == "" {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			data = line
		}
	}
	if event != string(service.EventHostChanged) {
		t.Errorf("event = %q", event)
	}
	if !strings.Contains(data, `"name":"Backend"`) {
		t.Errorf("data = %q", data)
	}
}

func TestHubRejectsNonFlusher(t *testing.T) {
	h := New()
	w := nonFlusher{header: http.Header{}}
	h.ServeHTTP(&w, httptest.NewRequest(http.MethodGet, "/events", nil))
	if w.status != http.StatusInternalServerError {
		t.Errorf("status = %d", w.status)
	}
}

type nonFlusher struct {
	header http.Header
	status int
}

func (w *nonFlusher) Header() http.Header         { return w.header }
func (w *nonFlusher) Write(b []byte) (int, error) { return len(b), nil }
func (w *nonFlusher) WriteHeader(status int)      { w.status = status }
