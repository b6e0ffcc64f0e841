// Package service runs the reconciliation engine for the rest of the
// application.
//
// # Reconciler
//
// The Reconciler owns the Inspector, the entity Registry and the
// EntityDatabase. Every call that touches the model is funnelled through a
// single goroutine, so evidence from concurrent sources (file imports, the
// watcher, the HTTP API) reaches the inspector as one ordered stream.
//
// Per event the loop consumes it, appends it to the event log unless it is
// being replayed, dispatches the change set to the listeners, publishes the
// changes on the EventBus and updates the metrics.
//
// # Event System
//
// EventBus carries host_changed, connection_changed, reset and replayed
// events to the SSE hub. Payloads identify entities by durable ID.
package service
