package presence

import "github.com/roach88/rollcall/internal/ir"

// RoomSource supplies the current presence set.
type RoomSource interface {
	// PresentEntities lists the entities in roomID, excluding the local
	// participant, in a stable order.
	PresentEntities(roomID string) []ir.EntityID

	// SpaceOf returns the space that scopes role lookups for roomID.
	SpaceOf(roomID string) string

	// SelfID identifies the local participant.
	SelfID() ir.EntityID

	// SelfRoom returns the room the local participant is in.
	SelfRoom() (string, bool)
}

// StageSource is implemented by room sources that know stage rooms.
// Group checks are suspended while the local participant is in one.
type StageSource interface {
	IsStage(roomID string) bool
}

// SelfAudioSource reports the local participant's own audio state.
type SelfAudioSource interface {
	SelfAudio() (muted, deafened bool)
}

// RelationshipSource answers relationship questions about an entity.
type RelationshipSource interface {
	IsFriend(id ir.EntityID) bool
	IsBlockedOrIgnored(id ir.EntityID) bool
}

// AudioSource reports the local audio state for an entity.
type AudioSource interface {
	IsLocallyMuted(id ir.EntityID) bool
	LocalVolume(id ir.EntityID) float64
}

// RoleSource resolves the roles an entity holds in a space.
// ok is false when the entity cannot be resolved (transient cache miss or
// not a member); callers treat that as "holds no roles".
type RoleSource interface {
	RolesFor(id ir.EntityID, spaceID string) (roles []string, ok bool)
}

// Sources bundles the read-side collaborators.
type Sources struct {
	Rooms         RoomSource
	Relationships RelationshipSource
	Audio         AudioSource
	Roles         RoleSource
	SelfAudio     SelfAudioSource
}

// FromRegistry returns Sources that all read from r.
func FromRegistry(r *Registry) Sources {
	return Sources{Rooms: r, Relationships: r, Audio: r, Roles: r, SelfAudio: r}
}

// StreamFromRegistry is FromRegistry with the viewers of the local
// participant's stream as the room.
func StreamFromRegistry(r *Registry) Sources {
	s := FromRegistry(r)
	s.Rooms = r.Viewers()
	return s
}
