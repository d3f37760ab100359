package ir

import "slices"

// Delta carries the entities that joined or left the room since the last
// evaluation. A nil *Delta means the pass has no delta context.
type Delta struct {
	Joined []EntityID `json:"joined,omitempty"`
	Left   []EntityID `json:"left,omitempty"`
}

// HasJoined reports whether id is in the joined set. Safe on a nil Delta.
func (d *Delta) HasJoined(id EntityID) bool {
	return d != nil && slices.Contains(d.Joined, id)
}

// Empty reports whether the delta carries no entities.
func (d *Delta) Empty() bool {
	return d == nil || (len(d.Joined) == 0 && len(d.Left) == 0)
}

// Predicate is a boolean test over one entity in a room context.
// Predicates are total: missing data yields false, never a panic.
type Predicate func(id EntityID, room RoomContext, delta *Delta) bool
