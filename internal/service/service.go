package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"netconform/internal/codec"
	"netconform/internal/domain"
	"netconform/internal/evidence"
	"netconform/internal/inspector"
	"netconform/internal/loader"
	"netconform/internal/repository"
)

// ErrStopped is returned by calls made after Stop
var ErrStopped = errors.New("reconciler stopped")

// requestQueue bounds callers waiting for the loop
const requestQueue = 64

// Reconciler serializes all model access onto one goroutine
type Reconciler struct {
	model     *loader.Model
	db        repository.EntityDatabase
	registry  *repository.Registry
	inspector *inspector.Inspector
	codec     *codec.JSONCodec
	bus       *EventBus
	metrics   *Metrics

	requests  chan func()
	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// Option configures a Reconciler
type Option func(*reconcilerOptions)

type reconcilerOptions struct {
	bus       *EventBus
	metrics   *Metrics
	listeners []inspector.Listener
}

// WithEventBus publishes model changes on bus
func WithEventBus(bus *EventBus) Option {
	return func(o *reconcilerOptions) { o.bus = bus }
}

// WithMetrics records loop metrics in m
func WithMetrics(m *Metrics) Option {
	return func(o *reconcilerOptions) { o.metrics = m }
}

// WithListeners adds inspector listeners notified after the event bus
func WithListeners(l ...inspector.Listener) Option {
	return func(o *reconcilerOptions) { o.listeners = append(o.listeners, l...) }
}

// NewReconciler creates a reconciler for a loaded model. Start must be
// called before any other method.
func NewReconciler(model *loader.Model, db repository.EntityDatabase, opts ...Option) *Reconciler {
	o := reconcilerOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.bus == nil {
		o.bus = NewEventBus()
	}
	if o.metrics == nil {
		o.metrics = NewMetrics()
	}

	registry := repository.NewRegistry(model.System, db)
	listeners := append([]inspector.Listener{&busListener{registry: registry, bus: o.bus, metrics: o.metrics}}, o.listeners...)

	return &Reconciler{
		model:     model,
		db:        db,
		registry:  registry,
		inspector: inspector.New(model.System, listeners...),
		codec:     codec.NewJSONCodec(registry),
		bus:       o.bus,
		metrics:   o.metrics,
		requests:  make(chan func(), requestQueue),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// EventBus returns the bus model changes are published on
func (r *Reconciler) EventBus() *EventBus {
	return r.bus
}

// Metrics returns the loop metrics
func (r *Reconciler) Metrics() *Metrics {
	return r.metrics
}

// Start runs the loop and applies the declared model. Model events from an
// earlier load are purged from the log and written again.
func (r *Reconciler) Start(ctx context.Context) error {
	r.startOnce.Do(func() {
		go r.loop()
	})
	return r.do(ctx, func() error {
		if err := r.registry.Sync(ctx); err != nil {
			return fmt.Errorf("failed to identify model entities: %w", err)
		}
		if err := r.db.PurgeModelEvents(ctx); err != nil {
			return fmt.Errorf("failed to purge model events: %w", err)
		}
		for _, ev := range r.model.Events {
			if _, err := r.apply(ctx, ev, true); err != nil {
				return fmt.Errorf("failed to apply model: %w", err)
			}
		}
		slog.Info("Reconciler: model loaded", "system", r.model.System.Name,
			"entities", len(r.model.System.Entities()), "model_events", len(r.model.Events))
		return nil
	})
}

// Stop ends the loop. Pending requests fail with ErrStopped.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
	r.startOnce.Do(func() {
		close(r.done)
	})
	<-r.done
}

func (r *Reconciler) loop() {
	defer close(r.done)
	for {
		select {
		case fn := <-r.requests:
			fn()
		case <-r.stop:
			return
		}
	}
}

// do runs fn on the loop and waits for it. A request already queued still
// runs when ctx is cancelled; only the wait is abandoned.
func (r *Reconciler) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case r.requests <- func() { errc <- fn() }:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrStopped
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrStopped
	}
}

// apply consumes one event, logs it and notifies listeners
func (r *Reconciler) apply(ctx context.Context, ev evidence.Event, persist bool) (inspector.Result, error) {
	res, err := r.inspector.Consume(ev)
	if err != nil {
		r.metrics.failure("inspect")
		return res, err
	}
	r.metrics.event(string(ev.Kind()), evidence.Label(ev))

	var logErr error
	if persist {
		if logErr = r.persist(ctx, ev); logErr != nil {
			r.metrics.failure("persist")
			slog.Error("Reconciler: failed to log event", "kind", ev.Kind(), "error", logErr)
		}
	}
	r.inspector.Dispatch(res.Changes)
	return res, logErr
}

func (r *Reconciler) persist(ctx context.Context, ev evidence.Event) error {
	data, err := r.codec.Encode(ctx, ev)
	if err != nil {
		return err
	}
	return r.db.PutEvent(ctx, repository.Record{
		Label: evidence.Label(ev),
		Model: evidence.IsModel(ev),
		Kind:  string(ev.Kind()),
		Data:  data,
	})
}

// SubmitResult describes the effect of one event
type SubmitResult struct {
	// Entity is the durable ID of the primary entity, 0 when dropped
	Entity  int  `json:"entity"`
	Reply   bool `json:"reply,omitempty"`
	Changes int  `json:"changes"`
}

func (r *Reconciler) submitResult(ctx context.Context, res inspector.Result) (SubmitResult, error) {
	out := SubmitResult{Reply: res.Reply, Changes: res.Changes.Len()}
	if res.Entity == domain.NoID {
		return out, nil
	}
	id, err := r.registry.ID(ctx, res.Entity)
	if err != nil {
		return out, err
	}
	out.Entity = id
	return out, nil
}

// Submit processes one event and appends it to the log
func (r *Reconciler) Submit(ctx context.Context, ev evidence.Event) (SubmitResult, error) {
	var out SubmitResult
	err := r.do(ctx, func() error {
		res, err := r.apply(ctx, ev, true)
		if err != nil {
			return err
		}
		out, err = r.submitResult(ctx, res)
		return err
	})
	return out, err
}

// SubmitEncoded decodes one JSON event on the loop, so that entity
// references resolve against the current graph, then submits it
func (r *Reconciler) SubmitEncoded(ctx context.Context, data []byte, source *evidence.Source) (SubmitResult, error) {
	var out SubmitResult
	err := r.do(ctx, func() error {
		ev, err := r.codec.Decode(ctx, data, source)
		if err != nil {
			return err
		}
		res, err := r.apply(ctx, ev, true)
		if err != nil {
			return err
		}
		out, err = r.submitResult(ctx, res)
		return err
	})
	return out, err
}

// SubmitAll processes events in order, stopping at the first failure. It
// returns the number of events consumed.
func (r *Reconciler) SubmitAll(ctx context.Context, events []evidence.Event) (int, error) {
	n := 0
	err := r.do(ctx, func() error {
		for _, ev := range events {
			if _, err := r.apply(ctx, ev, true); err != nil {
				return fmt.Errorf("event %d (%s): %w", n+1, ev.Kind(), err)
			}
			n++
		}
		return nil
	})
	return n, err
}

// Import drains a reader on the loop. Reading and consuming interleave so
// references to entities created by earlier events of the same file resolve.
func (r *Reconciler) Import(ctx context.Context, reader codec.EventReader) (int, error) {
	n := 0
	err := r.do(ctx, func() error {
		for {
			ev, err := reader.Next(ctx)
			if err == io.EOF {
				return nil
			}
			if err != nil {
				r.metrics.failure("decode")
				return err
			}
			if _, err := r.apply(ctx, ev, true); err != nil {
				return fmt.Errorf("event %d (%s): %w", n+1, ev.Kind(), err)
			}
			n++
		}
	})
	return n, err
}

// NewLinesReader reads JSON Lines evidence with this reconciler's codec
func (r *Reconciler) NewLinesReader(in io.Reader, source *evidence.Source) *codec.LinesReader {
	return codec.NewLinesReader(r.codec, in, source)
}

// NewLinesWriter writes JSON Lines evidence that NewLinesReader reads back
func (r *Reconciler) NewLinesWriter(out io.Writer) *codec.LinesWriter {
	return codec.NewLinesWriter(r.codec, out)
}

// ParseYAML decodes a hand written YAML evidence file. Entity references
// must name entities that already exist, since the whole file is decoded
// before any event is consumed.
func (r *Reconciler) ParseYAML(ctx context.Context, in io.Reader, source *evidence.Source) ([]evidence.Event, error) {
	return codec.NewYAMLCodec(r.codec).Parse(ctx, in, source)
}

// Reset returns the graph to the declared model and sets the source label
// filter for the next replay
func (r *Reconciler) Reset(ctx context.Context, filter map[string]bool) error {
	return r.do(ctx, func() error {
		return r.reset(ctx, filter)
	})
}

func (r *Reconciler) reset(ctx context.Context, filter map[string]bool) error {
	r.inspector.Reset()
	if err := r.db.Reset(ctx, filter); err != nil {
		return fmt.Errorf("failed to reset event log: %w", err)
	}
	r.bus.Publish(Event{Type: EventReset, Payload: filter})
	slog.Info("Reconciler: reset", "filter", filter)
	return nil
}

// Replay consumes the pending events of the log without logging them again.
// Stored events the inspector rejects are skipped.
func (r *Reconciler) Replay(ctx context.Context) (int, error) {
	var n int
	err := r.do(ctx, func() error {
		var err error
		n, err = r.replay(ctx)
		return err
	})
	return n, err
}

func (r *Reconciler) replay(ctx context.Context) (int, error) {
	n, skipped := 0, 0
	for {
		rec, ok, err := r.db.NextPending(ctx)
		if err != nil {
			return n, fmt.Errorf("failed to read event log: %w", err)
		}
		if !ok {
			break
		}
		ev, err := r.codec.Decode(ctx, rec.Data, nil)
		if err != nil {
			r.metrics.failure("decode")
			return n, fmt.Errorf("event %d: %w", rec.Seq, err)
		}
		if _, err := r.apply(ctx, ev, false); err != nil {
			skipped++
			slog.Warn("Reconciler: skipping logged event", "seq", rec.Seq, "kind", rec.Kind, "error", err)
			continue
		}
		n++
	}
	r.bus.Publish(Event{Type: EventReplayed, Payload: map[string]int{"events": n, "skipped": skipped}})
	slog.Info("Reconciler: replay complete", "events", n, "skipped", skipped)
	return n, nil
}

// Rebuild resets and replays as one request, so no submitted event
// interleaves
func (r *Reconciler) Rebuild(ctx context.Context, filter map[string]bool) (int, error) {
	var n int
	err := r.do(ctx, func() error {
		if err := r.reset(ctx, filter); err != nil {
			return err
		}
		var err error
		n, err = r.replay(ctx)
		return err
	})
	return n, err
}

// Report aggregates verdicts over the whole graph
func (r *Reconciler) Report(ctx context.Context) (*Report, error) {
	var rep *Report
	err := r.do(ctx, func() error {
		var err error
		if rep, err = buildReport(ctx, r.registry); err != nil {
			return err
		}
		r.metrics.verdicts(rep.Counts)
		return nil
	})
	return rep, err
}

// Entity describes the entity with a durable ID
func (r *Reconciler) Entity(ctx context.Context, durable int) (*EntityReport, error) {
	var er *EntityReport
	err := r.do(ctx, func() error {
		e, err := r.registry.Entity(ctx, durable)
		if err != nil {
			return err
		}
		er, err = describe(ctx, r.registry, e, domain.NewVerdictCache())
		return err
	})
	return er, err
}

// Identity is the durable identity of one entity
type Identity struct {
	ID   int    `json:"id"`
	Kind string `json:"kind"`
	Name string `json:"name"`
	Key  string `json:"key"`
}

// Identities lists the durable IDs of every entity in arena order
func (r *Reconciler) Identities(ctx context.Context) ([]Identity, error) {
	var out []Identity
	err := r.do(ctx, func() error {
		if err := r.registry.Sync(ctx); err != nil {
			return err
		}
		s := r.registry.System()
		for _, e := range s.Entities() {
			id, err := r.registry.ID(ctx, e.EntityID())
			if err != nil {
				return err
			}
			key, err := r.registry.KeyOf(ctx, e.EntityID())
			if err != nil {
				return err
			}
			out = append(out, Identity{
				ID:   id,
				Kind: e.Kind().String(),
				Name: s.LongName(e.EntityID()),
				Key:  key.String(),
			})
		}
		return nil
	})
	return out, err
}

// Labels returns the source labels of the log with their enabled state
func (r *Reconciler) Labels(ctx context.Context) (map[string]bool, error) {
	return r.db.Labels(ctx)
}
