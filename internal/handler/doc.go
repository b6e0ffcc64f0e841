// Package handler implements the HTTP API of netconform.
//
// # Routes
//
//	GET  /api/report          verdict report of the whole model
//	GET  /api/entities/{id}   one entity by durable ID
//	GET  /api/identities      durable IDs of every entity
//	GET  /api/sources         source labels of the event log
//	POST /api/events          submit one JSON event
//	POST /api/import          submit a JSON Lines body
//	POST /api/reset           reset, and by default replay the event log
//	GET  /metrics             Prometheus metrics
//
// The SSE stream at /events is served by the hub package.
//
// # Response Format
//
// Success responses return JSON data. Error responses return JSON with an
// {error, details} structure; lookup misses map to 404, malformed evidence
// to 400 and model inconsistencies to 409.
package handler
