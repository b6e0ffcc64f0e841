// Package domain defines the core types of the netconform security topology model.
//
// # Addresses
//
// Address is a comparable value covering hardware (MAC), IP and DNS name
// addresses, optionally extended with a protocol and port to form an
// endpoint. Wildcards ("*") match any value of their kind.
//
// # Entities
//
// A System owns an arena of entities addressed by ID: Hosts, Services,
// Connections and Components. Each entity carries a Status (expected,
// unexpected, placeholder, external) and a set of Properties. Entities
// declared by the model are original. Entities learned from evidence are
// appended behind them and fall back to placeholders on Reset, keeping
// their IDs stable across replays.
//
// # Verdicts
//
// Resolve folds verdicts with fail ranking highest and undefined as the
// identity. The verdict of an entity is resolved from its own properties
// and those of its children, cached per round in a VerdictCache.
//
// The package has no dependencies beyond the standard library.
package domain
