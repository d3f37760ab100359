// Package server exposes the engine over an HTTP control API.
//
// Host integrations push presence and client state changes here; the
// server applies them to the presence registry and enqueues the matching
// engine event. Group toggles are persisted through the settings store
// before the new snapshot is published.
//
// Routes:
//
//	POST /v1/presence
//	PUT  /v1/entities/{id}/audio
//	PUT  /v1/entities/{id}/relationship
//	PUT  /v1/entities/{id}/roles
//	POST /v1/reevaluate[?kind=]
//	PUT  /v1/groups/{kind}/{name}
//	GET  /v1/state
//	GET  /v1/ws
//	GET  /metrics
//	GET  /healthz
//
// Mutating routes return 202 once the event is queued. With ?wait=true
// the response carries the notifications the event produced.
package server
