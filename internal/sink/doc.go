// Package sink provides notify.Sink implementations: structured logging,
// canonical JSON lines, a websocket broadcast hub for status overlays, a
// NATS publisher, and a fan-out.
package sink
