package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rollcall/internal/ir"
)

func TestRegistry_MoveReportsTransition(t *testing.T) {
	r := NewRegistry("me")

	ev := r.Move("A", "r1")
	assert.Equal(t, ir.PresenceEvent{EntityID: "A", NewRoomID: "r1"}, ev)

	ev = r.Move("A", "r2")
	assert.Equal(t, ir.PresenceEvent{EntityID: "A", NewRoomID: "r2", OldRoomID: "r1"}, ev)
	assert.Empty(t, r.PresentEntities("r1"))
	assert.Equal(t, []ir.EntityID{"A"}, r.PresentEntities("r2"))

	ev = r.Leave("A")
	assert.Equal(t, ir.PresenceEvent{EntityID: "A", OldRoomID: "r2"}, ev)
	assert.Empty(t, r.PresentEntities("r2"))
}

func TestRegistry_MoveToSameRoomIsNoop(t *testing.T) {
	r := NewRegistry("me")
	r.Move("A", "r1")

	ev := r.Move("A", "r1")
	assert.False(t, ev.Moved())
	assert.Equal(t, []ir.EntityID{"A"}, r.PresentEntities("r1"))
}

func TestRegistry_PresentEntitiesExcludesSelfInArrivalOrder(t *testing.T) {
	r := NewRegistry("me")
	r.Move("B", "r1")
	r.Move("me", "r1")
	r.Move("A", "r1")

	assert.Equal(t, []ir.EntityID{"B", "A"}, r.PresentEntities("r1"))

	room, ok := r.SelfRoom()
	require.True(t, ok)
	assert.Equal(t, "r1", room)

	r.Leave("me")
	_, ok = r.SelfRoom()
	assert.False(t, ok)
}

func TestRegistry_AudioDefaults(t *testing.T) {
	r := NewRegistry("me")
	assert.False(t, r.IsLocallyMuted("A"))
	assert.Equal(t, DefaultVolume, r.LocalVolume("A"))

	r.SetMuted("A", true)
	r.SetVolume("A", 0)
	assert.True(t, r.IsLocallyMuted("A"))
	assert.Equal(t, 0.0, r.LocalVolume("A"))
}

func TestRegistry_Relationships(t *testing.T) {
	r := NewRegistry("me")
	r.SetFriend("A", true)
	r.SetBlocked("B", true)

	assert.True(t, r.IsFriend("A"))
	assert.False(t, r.IsFriend("B"))
	assert.True(t, r.IsBlockedOrIgnored("B"))
}

func TestRegistry_Roles(t *testing.T) {
	r := NewRegistry("me")

	_, ok := r.RolesFor("A", "g1")
	assert.False(t, ok, "unknown member is unresolvable")

	r.Grant("A", "g1", "vip")
	r.Grant("A", "g1", "vip")
	r.Grant("A", "g1", "mod")
	roles, ok := r.RolesFor("A", "g1")
	require.True(t, ok)
	assert.Equal(t, []string{"vip", "mod"}, roles)

	r.Revoke("A", "g1", "vip")
	roles, _ = r.RolesFor("A", "g1")
	assert.Equal(t, []string{"mod"}, roles)

	r.SetRoles("B", "g1", nil)
	roles, ok = r.RolesFor("B", "g1")
	assert.True(t, ok)
	assert.Empty(t, roles)
}

func TestRegistry_SpaceOf(t *testing.T) {
	r := NewRegistry("me")
	r.SetSpace("r1", "g1")
	assert.Equal(t, "g1", r.SpaceOf("r1"))
	assert.Equal(t, "", r.SpaceOf("r2"))
}

func TestRegistry_Stage(t *testing.T) {
	r := NewRegistry("me")
	var src StageSource = r

	assert.False(t, src.IsStage("stage"))
	r.SetStage("stage", true)
	assert.True(t, src.IsStage("stage"))
	r.SetStage("stage", false)
	assert.False(t, src.IsStage("stage"))
}

func TestRegistry_SelfAudio(t *testing.T) {
	r := NewRegistry("me")
	muted, deafened := r.SelfAudio()
	assert.False(t, muted)
	assert.False(t, deafened)

	r.SetSelfAudio(true, true)
	muted, deafened = r.SelfAudio()
	assert.True(t, muted)
	assert.True(t, deafened)
}

func TestStreamViewers(t *testing.T) {
	r := NewRegistry("me")
	r.SetSpace("R", "S")
	r.Move("me", "R")
	var v RoomSource = r.Viewers()

	_, live := v.SelfRoom()
	assert.False(t, live)
	assert.False(t, r.SetViewers("me", []ir.EntityID{"A"}), "no stream to attach viewers to")

	r.StartStream("me", "st-1")
	room, live := v.SelfRoom()
	require.True(t, live)
	assert.Equal(t, "st-1", room)
	assert.Empty(t, v.PresentEntities("st-1"))

	require.True(t, r.SetViewers("me", []ir.EntityID{"B", "me", "A"}))
	assert.Equal(t, []ir.EntityID{"B", "A"}, v.PresentEntities("st-1"))
	assert.Empty(t, v.PresentEntities("st-2"))
	assert.Equal(t, "S", v.SpaceOf("st-1"))
	assert.Equal(t, ir.EntityID("me"), v.SelfID())

	// Other participants' streams are not the local stream.
	r.StartStream("X", "st-x")
	r.SetViewers("X", []ir.EntityID{"C"})
	assert.Empty(t, v.PresentEntities("st-x"))

	r.StartStream("me", "st-2")
	assert.Empty(t, v.PresentEntities("st-2"), "a new stream starts without viewers")

	r.StopStream("me")
	_, live = v.SelfRoom()
	assert.False(t, live)
	assert.Empty(t, v.PresentEntities("st-2"))
}

func TestRegistry_Stream(t *testing.T) {
	r := NewRegistry("self")
	_, ok := r.Stream("self")
	assert.False(t, ok)

	r.StartStream("self", "live")
	id, ok := r.Stream("self")
	assert.True(t, ok)
	assert.Equal(t, "live", id)

	r.StopStream("self")
	_, ok = r.Stream("self")
	assert.False(t, ok)
}
