package presence

import (
	"slices"
	"sync"

	"github.com/roach88/rollcall/internal/ir"
)

// DefaultVolume is the local volume of an entity nobody adjusted.
const DefaultVolume = 100.0

// Registry is a mutex-protected in-memory model of the host client state.
//
// Mutators may be called from any goroutine. Move and Leave return the
// presence event the change implies, ready to hand to the engine.
type Registry struct {
	mu sync.RWMutex

	self     ir.EntityID
	rooms    map[string][]ir.EntityID // members in arrival order, self included
	location map[ir.EntityID]string
	spaces   map[string]string

	muted   map[ir.EntityID]bool
	volume  map[ir.EntityID]float64
	friends map[ir.EntityID]bool
	blocked map[ir.EntityID]bool
	roles   map[ir.EntityID]map[string][]string

	stages       map[string]bool
	streams      map[ir.EntityID]*stream // by owner
	selfMuted    bool
	selfDeafened bool
}

type stream struct {
	id      string
	viewers []ir.EntityID
}

// NewRegistry creates an empty registry for the local participant self.
func NewRegistry(self ir.EntityID) *Registry {
	return &Registry{
		self:     self,
		rooms:    make(map[string][]ir.EntityID),
		location: make(map[ir.EntityID]string),
		spaces:   make(map[string]string),
		muted:    make(map[ir.EntityID]bool),
		volume:   make(map[ir.EntityID]float64),
		friends:  make(map[ir.EntityID]bool),
		blocked:  make(map[ir.EntityID]bool),
		roles:    make(map[ir.EntityID]map[string][]string),
		stages:   make(map[string]bool),
		streams:  make(map[ir.EntityID]*stream),
	}
}

// SetStage marks roomID as a stage room, where group checks are suspended.
func (r *Registry) SetStage(roomID string, stage bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stage {
		r.stages[roomID] = true
	} else {
		delete(r.stages, roomID)
	}
}

// SetSpace records the space a room belongs to.
func (r *Registry) SetSpace(roomID, spaceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spaces[roomID] = spaceID
}

// Move puts id in roomID, removing it from its previous room.
// An empty roomID removes the entity from every room.
func (r *Registry) Move(id ir.EntityID, roomID string) ir.PresenceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.location[id]
	ev := ir.PresenceEvent{EntityID: id, NewRoomID: roomID, OldRoomID: old}
	if old == roomID {
		return ev
	}

	if old != "" {
		r.rooms[old] = slices.DeleteFunc(r.rooms[old], func(e ir.EntityID) bool { return e == id })
		if len(r.rooms[old]) == 0 {
			delete(r.rooms, old)
		}
	}

	if roomID == "" {
		delete(r.location, id)
		return ev
	}

	r.location[id] = roomID
	r.rooms[roomID] = append(r.rooms[roomID], id)
	return ev
}

// Leave removes id from every room.
func (r *Registry) Leave(id ir.EntityID) ir.PresenceEvent {
	return r.Move(id, "")
}

// StartStream records that owner went live with streamID. A stream the
// owner already had is replaced and its viewers are dropped.
func (r *Registry) StartStream(owner ir.EntityID, streamID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[owner] = &stream{id: streamID}
}

// StopStream ends the stream of owner.
func (r *Registry) StopStream(owner ir.EntityID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.streams, owner)
}

// SetViewers replaces the viewers of the stream of owner. It reports false
// when owner is not streaming.
func (r *Registry) SetViewers(owner ir.EntityID, viewers []ir.EntityID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.streams[owner]
	if !ok {
		return false
	}
	st.viewers = slices.Clone(viewers)
	return true
}

// Stream returns the id of the stream owner is live with.
func (r *Registry) Stream(owner ir.EntityID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.streams[owner]
	if !ok {
		return "", false
	}
	return st.id, true
}

// SetSelfAudio records the local participant's own mute and deafen state.
func (r *Registry) SetSelfAudio(muted, deafened bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selfMuted = muted
	r.selfDeafened = deafened
}

// SetMuted sets the local mute flag for id.
func (r *Registry) SetMuted(id ir.EntityID, muted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.muted[id] = muted
}

// SetVolume sets the local volume for id.
func (r *Registry) SetVolume(id ir.EntityID, volume float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.volume[id] = volume
}

// SetFriend sets the friend relationship for id.
func (r *Registry) SetFriend(id ir.EntityID, friend bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.friends[id] = friend
}

// SetBlocked sets the blocked-or-ignored relationship for id.
func (r *Registry) SetBlocked(id ir.EntityID, blocked bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocked[id] = blocked
}

// SetRoles replaces the roles id holds in spaceID.
// A nil roles slice still marks the entity as a resolvable member.
func (r *Registry) SetRoles(id ir.EntityID, spaceID string, roles []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.roles[id] == nil {
		r.roles[id] = make(map[string][]string)
	}
	r.roles[id][spaceID] = slices.Clone(roles)
}

// Grant adds roleID to the roles id holds in spaceID.
func (r *Registry) Grant(id ir.EntityID, spaceID, roleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.roles[id] == nil {
		r.roles[id] = make(map[string][]string)
	}
	if !slices.Contains(r.roles[id][spaceID], roleID) {
		r.roles[id][spaceID] = append(r.roles[id][spaceID], roleID)
	}
}

// Revoke removes roleID from the roles id holds in spaceID.
func (r *Registry) Revoke(id ir.EntityID, spaceID, roleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if roles, ok := r.roles[id][spaceID]; ok {
		r.roles[id][spaceID] = slices.DeleteFunc(roles, func(x string) bool { return x == roleID })
	}
}

// PresentEntities implements RoomSource.
func (r *Registry) PresentEntities(roomID string) []ir.EntityID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ir.EntityID, 0, len(r.rooms[roomID]))
	for _, id := range r.rooms[roomID] {
		if id != r.self {
			out = append(out, id)
		}
	}
	return out
}

// SpaceOf implements RoomSource.
func (r *Registry) SpaceOf(roomID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.spaces[roomID]
}

// SelfID implements RoomSource.
func (r *Registry) SelfID() ir.EntityID {
	return r.self
}

// SelfRoom implements RoomSource.
func (r *Registry) SelfRoom() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.location[r.self]
	return room, ok
}

// IsStage implements StageSource.
func (r *Registry) IsStage(roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stages[roomID]
}

// SelfAudio implements SelfAudioSource.
func (r *Registry) SelfAudio() (muted, deafened bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selfMuted, r.selfDeafened
}

// Viewers returns the viewer room source over r.
func (r *Registry) Viewers() StreamViewers {
	return StreamViewers{r: r}
}

// IsFriend implements RelationshipSource.
func (r *Registry) IsFriend(id ir.EntityID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.friends[id]
}

// IsBlockedOrIgnored implements RelationshipSource.
func (r *Registry) IsBlockedOrIgnored(id ir.EntityID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.blocked[id]
}

// IsLocallyMuted implements AudioSource.
func (r *Registry) IsLocallyMuted(id ir.EntityID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.muted[id]
}

// LocalVolume implements AudioSource.
func (r *Registry) LocalVolume(id ir.EntityID) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.volume[id]; ok {
		return v
	}
	return DefaultVolume
}

// RolesFor implements RoleSource.
func (r *Registry) RolesFor(id ir.EntityID, spaceID string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roles, ok := r.roles[id][spaceID]
	if !ok {
		return nil, false
	}
	return slices.Clone(roles), true
}

// StreamViewers presents the viewers of the local participant's stream as
// a room whose id is the stream id. Role lookups use the space of the
// voice room the participant streams from.
type StreamViewers struct {
	r *Registry
}

// PresentEntities implements RoomSource.
func (v StreamViewers) PresentEntities(streamID string) []ir.EntityID {
	v.r.mu.RLock()
	defer v.r.mu.RUnlock()

	st := v.r.streams[v.r.self]
	if st == nil || st.id != streamID {
		return []ir.EntityID{}
	}
	out := make([]ir.EntityID, 0, len(st.viewers))
	for _, id := range st.viewers {
		if id != v.r.self {
			out = append(out, id)
		}
	}
	return out
}

// SpaceOf implements RoomSource.
func (v StreamViewers) SpaceOf(streamID string) string {
	v.r.mu.RLock()
	defer v.r.mu.RUnlock()

	st := v.r.streams[v.r.self]
	if st == nil || st.id != streamID {
		return ""
	}
	return v.r.spaces[v.r.location[v.r.self]]
}

// SelfID implements RoomSource.
func (v StreamViewers) SelfID() ir.EntityID {
	return v.r.self
}

// SelfRoom implements RoomSource. The room is the local participant's
// stream, ok is false while it is not streaming.
func (v StreamViewers) SelfRoom() (string, bool) {
	v.r.mu.RLock()
	defer v.r.mu.RUnlock()
	if st := v.r.streams[v.r.self]; st != nil {
		return st.id, true
	}
	return "", false
}
