// Package presence defines the collaborators the engine reads presence,
// relationship, audio and role data from, and provides Registry, an
// in-memory implementation used by the CLI, the HTTP host and tests.
//
// The engine only ever reads through the interfaces. All reads are
// synchronous snapshots; none of them block on I/O.
package presence
