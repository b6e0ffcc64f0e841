// Package repository defines the entity database of netconform.
//
// The entity database gives every entity a durable integer ID derived from
// its structural key, so the same declared model loaded against the same
// store gets the same IDs on every run:
//
//   - Host: its long name
//   - Service: name and durable ID of the parent
//   - Connection: durable IDs of source and target
//   - Component: name and durable ID of the owner
//
// It also keeps the log of encoded evidence events. Each event carries the
// label of its evidence source; Reset selects which labels take part in a
// replay and NextPending walks the log in arrival order. Events of the
// declared model are flagged and purged whenever the model is loaded again.
//
// Two implementations exist: memory, used for one-shot checks and tests,
// and sqldb, backed by SQLite or MySQL.
//
// Registry binds a System arena to an EntityDatabase and translates between
// process local arena IDs and durable IDs.
package repository
