// Package engine is the host event loop of the membership engine.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// The membership context is not reentrant, so every inbound event (room
// presence, relationship, audio, roles, manual re-check, settings update,
// state query) is queued and handled by one goroutine running Engine.Run.
// Each event runs exactly one evaluation pass to completion before the
// next event is taken.
//
// Event Processing Flow:
//  1. Producers (HTTP handlers, config watcher, CLI) call Enqueue or one of
//     the typed helpers from any goroutine
//  2. Run dequeues events in FIFO order
//  3. processEvent routes the event to membership.Host
//  4. The pass commits the cache, then hands notifications to the notifier
//
// A failing event is logged with its context and processing continues.
// Nothing is retried: a retried pass would emit duplicate notifications.
package engine
