package membership

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rollcall/internal/catalog"
	"github.com/roach88/rollcall/internal/ir"
	"github.com/roach88/rollcall/internal/presence"
	"github.com/roach88/rollcall/internal/strategy"
)

func setupHost(t *testing.T, s *ir.Settings) (*Host, *fixture) {
	t.Helper()
	f := setupFixture(t, s)
	return NewHost(f.mc), f
}

func TestHost_SelfEntersRoom(t *testing.T) {
	h, f := setupHost(t, &ir.Settings{Checks: only(ir.KindSome)})
	f.reg.Leave("self")
	f.reg.Move("A", "R")

	ev := f.reg.Move("self", "R")
	assert.Equal(t, []string{"some-enter"}, messages(h.OnRoomPresenceChanged(ctx, ev)))
	assert.Same(t, f.mc, h.Context())
}

func TestHost_SelfLeavesDisposes(t *testing.T) {
	h, f := setupHost(t, &ir.Settings{Checks: only(ir.KindSome)})
	f.reg.Move("A", "R")
	h.ForceReevaluate(ctx, "")

	ev := f.reg.Leave("self")
	assert.Equal(t, []string{"some-leave"}, messages(h.OnRoomPresenceChanged(ctx, ev)))
	assert.Empty(t, f.mc.Snapshot().Entries)
}

func TestHost_OtherEntityDelta(t *testing.T) {
	h, f := setupHost(t, &ir.Settings{Checks: only(ir.KindSome)})

	join := f.reg.Move("A", "R")
	assert.Equal(t, []string{"some-enter", "some-user-enter"}, messages(h.OnRoomPresenceChanged(ctx, join)))

	leave := f.reg.Leave("A")
	assert.Equal(t, []string{"some-leave", "some-user-leave"}, messages(h.OnRoomPresenceChanged(ctx, leave)))
}

func TestHost_BatchedEvents(t *testing.T) {
	h, f := setupHost(t, &ir.Settings{Checks: only(ir.KindSome)})
	f.reg.Move("B", "R")
	h.ForceReevaluate(ctx, "")

	a := f.reg.Move("A", "R")
	b := f.reg.Move("B", "OTHER")
	ns := h.OnRoomPresenceChanged(ctx, a, b)
	require.Len(t, ns, 2)
	assert.Equal(t, "some-user-enter", ns[0].Message)
	assert.Equal(t, []ir.EntityID{"A"}, ns[0].Entities)
	assert.Equal(t, "some-user-leave", ns[1].Message)
	assert.Equal(t, []ir.EntityID{"B"}, ns[1].Entities)
}

func TestHost_IgnoresUnrelatedEvents(t *testing.T) {
	h, f := setupHost(t, &ir.Settings{Checks: only(ir.KindSome), Ignore: []ir.EntityID{"bot"}})

	assert.Empty(t, h.OnRoomPresenceChanged(ctx, f.reg.Move("X", "ELSEWHERE")), "other room")
	assert.Empty(t, h.OnRoomPresenceChanged(ctx, f.reg.Move("bot", "R")), "ignored entity")
	assert.Empty(t, h.OnRoomPresenceChanged(ctx, ir.PresenceEvent{EntityID: "A", NewRoomID: "R", OldRoomID: "R"}), "no move")
	assert.Empty(t, h.OnRoomPresenceChanged(ctx), "empty batch")
}

func TestHost_NoSelfRoomIsNoop(t *testing.T) {
	h, f := setupHost(t, nil)
	f.reg.Leave("self")
	f.reg.Move("A", "R")

	assert.Empty(t, h.OnRoomPresenceChanged(ctx, ir.PresenceEvent{EntityID: "A", NewRoomID: "R"}))
	assert.Empty(t, h.OnRelationshipChanged(ctx))
	assert.Empty(t, h.ForceReevaluate(ctx, ""))
	assert.Empty(t, f.mc.Session(), "nothing evaluated")
}

func TestHost_RelationshipChanged(t *testing.T) {
	h, f := setupHost(t, &ir.Settings{Checks: only(ir.KindFriends, ir.KindBlocked, ir.KindMuted)})
	f.reg.Move("A", "R")
	h.ForceReevaluate(ctx, "")

	f.reg.SetFriend("A", true)
	f.reg.SetBlocked("A", true)
	f.reg.SetMuted("A", true)
	assert.Equal(t, []string{"friends-enter", "blocked-enter"}, messages(h.OnRelationshipChanged(ctx)),
		"audio is not part of a relationship pass")
	assert.Equal(t, []string{"muted-enter"}, messages(h.OnAudioStateChanged(ctx)))
}

func TestHost_RolesChanged(t *testing.T) {
	s := &ir.Settings{
		Checks: only(ir.KindRoleGroups),
		RoleGroups: []ir.RoleGroup{{
			NamedGroup: ir.NamedGroup{Name: "mods", Enabled: true},
			Roles:      []ir.RoleRef{{SpaceID: "S", RoleID: "mod"}},
		}},
	}
	h, f := setupHost(t, s)
	f.reg.Move("A", "R")
	h.ForceReevaluate(ctx, "")

	f.reg.Grant("A", "S", "mod")
	assert.Equal(t, []string{"mods-enter"}, messages(h.OnRolesChanged(ctx)))
}

func TestHost_SettingsChanged(t *testing.T) {
	h, f := setupHost(t, &ir.Settings{Checks: only(ir.KindPatterns)})
	f.reg.Move("A", "R")
	h.ForceReevaluate(ctx, "")

	next := &ir.Settings{
		Checks: only(ir.KindPatterns),
		Patterns: []ir.Pattern{{
			NamedGroup: ir.NamedGroup{Name: "anyone", Enabled: true},
			Expression: "present",
		}},
	}
	assert.Equal(t, []string{"anyone-enter"}, messages(h.OnSettingsChanged(ctx, next)))
	assert.Equal(t, []string{"anyone-leave"}, messages(h.OnSettingsChanged(ctx, &ir.Settings{Checks: only(ir.KindPatterns)})))
}

func TestHost_ForceReevaluateSingleKind(t *testing.T) {
	h, f := setupHost(t, nil)
	f.reg.Move("A", "R")
	f.reg.SetMuted("A", true)

	assert.Equal(t, []string{"muted-enter"}, messages(h.ForceReevaluate(ctx, ir.KindMuted)))
}

func setupStreamHost(t *testing.T, s *ir.Settings) (*Host, *fixture, *Context) {
	t.Helper()
	f := setupFixture(t, s)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cat := catalog.New(presence.StreamFromRegistry(f.reg), s, catalog.WithLogger(logger))
	sc := New(cat, f.rec,
		WithLogger(logger),
		WithStrategies(strategy.StreamDefault()),
		WithFeed(ir.FeedStream),
		WithClock(f.mc.clock),
		WithSessionGenerator(NewFixedGenerator("st-1", "st-2")),
	)
	return NewHost(f.mc, WithStreamContext(sc)), f, sc
}

func vipStreamSettings() *ir.Settings {
	return &ir.Settings{
		Checks: only(ir.KindSome, ir.KindRoleGroups),
		RoleGroups: []ir.RoleGroup{{
			NamedGroup: ir.NamedGroup{Name: "vip", Enabled: true},
			Roles:      []ir.RoleRef{{SpaceID: "S", RoleID: "vip"}},
		}},
	}
}

func TestHost_StreamLifecycle(t *testing.T) {
	h, f, sc := setupStreamHost(t, vipStreamSettings())
	assert.Same(t, sc, h.StreamContext())

	f.reg.StartStream("self", "live")
	assert.Equal(t, []string{"stream-start"}, messages(h.OnStreamChanged(ctx)))

	f.reg.SetViewers("self", []ir.EntityID{"A"})
	ns := h.OnStreamChanged(ctx)
	assert.Equal(t, []string{"some-stream-enter", "some-stream-user-enter"}, messages(ns))
	require.NotEmpty(t, ns)
	assert.Equal(t, ir.FeedStream, ns[0].Feed)
	assert.Equal(t, "st-1", ns[0].Session)

	f.reg.Grant("A", "S", "vip")
	assert.Equal(t, []string{"vip-stream-enter"}, messages(h.OnRolesChanged(ctx)),
		"the empty voice room stays silent")

	f.reg.SetViewers("self", nil)
	assert.Equal(t, []string{
		"vip-stream-leave", "vip-stream-user-leave",
		"some-stream-leave", "some-stream-user-leave",
	}, messages(h.OnStreamChanged(ctx)))

	f.reg.SetViewers("self", []ir.EntityID{"A"})
	h.OnStreamChanged(ctx)

	f.reg.StopStream("self")
	assert.Equal(t, []string{"stream-stop", "vip-stream-leave", "some-stream-leave"}, messages(h.OnStreamChanged(ctx)))
	assert.Empty(t, sc.Snapshot().Entries)
	assert.Empty(t, h.OnStreamChanged(ctx), "already stopped")
}

func TestHost_StreamViewerChangesWithoutMovesAreSilent(t *testing.T) {
	h, f, _ := setupStreamHost(t, &ir.Settings{Checks: only(ir.KindSome), Ignore: []ir.EntityID{"bot"}})
	f.reg.StartStream("self", "live")
	f.reg.SetViewers("self", []ir.EntityID{"A"})
	h.OnStreamChanged(ctx)

	assert.Empty(t, h.OnStreamChanged(ctx), "same viewers")

	f.reg.SetViewers("self", []ir.EntityID{"A", "bot"})
	assert.Empty(t, h.OnStreamChanged(ctx), "ignored viewer")
}

func TestHost_StreamRestartIsStopThenStart(t *testing.T) {
	h, f, _ := setupStreamHost(t, &ir.Settings{Checks: only(ir.KindSome)})
	f.reg.StartStream("self", "one")
	f.reg.SetViewers("self", []ir.EntityID{"A"})
	h.OnStreamChanged(ctx)

	f.reg.StartStream("self", "two")
	f.reg.SetViewers("self", []ir.EntityID{"B"})
	assert.Equal(t, []string{
		"stream-stop", "some-stream-leave",
		"stream-start", "some-stream-enter", "some-stream-user-enter",
	}, messages(h.OnStreamChanged(ctx)))
}

func TestHost_OtherStreamsAndNoStreamContext(t *testing.T) {
	h, f, _ := setupStreamHost(t, &ir.Settings{Checks: only(ir.KindSome)})
	f.reg.StartStream("X", "theirs")
	f.reg.SetViewers("X", []ir.EntityID{"A"})
	assert.Empty(t, h.OnStreamChanged(ctx))

	plain, g := setupHost(t, nil)
	g.reg.StartStream("self", "live")
	assert.Empty(t, plain.OnStreamChanged(ctx))
	assert.Nil(t, plain.StreamContext())
}

func TestHost_StreamPassesShareTheClock(t *testing.T) {
	h, f, _ := setupStreamHost(t, &ir.Settings{Checks: only(ir.KindSome)})
	f.reg.Move("A", "R")
	voice := h.ForceReevaluate(ctx, "")

	f.reg.StartStream("self", "live")
	f.reg.SetViewers("self", []ir.EntityID{"B"})
	stream := h.OnStreamChanged(ctx)

	require.NotEmpty(t, voice)
	require.Len(t, stream, 3)
	assert.Less(t, voice[0].Pass, stream[0].Pass)
	assert.Less(t, stream[0].Pass, stream[1].Pass, "the signal and the viewer pass are separate passes")
}

func TestHost_SelfAudioSignals(t *testing.T) {
	h, f := setupHost(t, nil)

	f.reg.SetSelfAudio(true, false)
	assert.Equal(t, []string{"self-mute"}, messages(h.OnSelfAudioChanged(ctx)))

	f.reg.SetSelfAudio(true, true)
	assert.Equal(t, []string{"self-deafen"}, messages(h.OnSelfAudioChanged(ctx)))

	f.reg.SetSelfAudio(false, false)
	ns := h.OnSelfAudioChanged(ctx)
	assert.Equal(t, []string{"self-unmute", "self-undeafen"}, messages(ns))
	assert.Equal(t, ns[0].Pass, ns[1].Pass)
	assert.Equal(t, ir.KindLocal, ns[0].Kind)

	assert.Empty(t, h.OnSelfAudioChanged(ctx), "no change")
	assert.Equal(t, []string{"self-mute", "self-deafen", "self-unmute", "self-undeafen"}, f.rec.Messages())
	assert.Empty(t, f.mc.Snapshot().Entries, "signals are not cached")
}

func TestHost_StageRoomSuspendsChecks(t *testing.T) {
	h, f := setupHost(t, &ir.Settings{Checks: only(ir.KindSome)})
	f.reg.Move("A", "R")
	h.ForceReevaluate(ctx, "")
	f.reg.SetStage("STAGE", true)
	f.reg.Move("B", "STAGE")

	assert.Equal(t, []string{"some-leave"}, messages(h.OnRoomPresenceChanged(ctx, f.reg.Move("self", "STAGE"))))
	assert.Empty(t, h.OnRoomPresenceChanged(ctx, f.reg.Move("C", "STAGE")))
	assert.Empty(t, h.ForceReevaluate(ctx, ""))
	assert.Empty(t, f.mc.Session())

	assert.Equal(t, []string{"some-enter"}, messages(h.OnRoomPresenceChanged(ctx, f.reg.Move("self", "R"))))
}

func TestHost_SnapshotAttachesStream(t *testing.T) {
	h, f, _ := setupStreamHost(t, &ir.Settings{Checks: only(ir.KindSome)})
	assert.Nil(t, h.Snapshot().Stream)

	f.reg.StartStream("self", "live")
	f.reg.SetViewers("self", []ir.EntityID{"A"})
	h.OnStreamChanged(ctx)

	st := h.Snapshot()
	require.NotNil(t, st.Stream)
	assert.Equal(t, "live", st.Stream.RoomID)
	assert.Equal(t, []Entry{{Kind: ir.KindSome, Satisfied: true}}, st.Stream.Entries)
}

func TestHost_StageFlagOnCurrentRoom(t *testing.T) {
	h, f := setupHost(t, &ir.Settings{Checks: only(ir.KindSome)})
	f.reg.Move("A", "R")
	h.ForceReevaluate(ctx, "")

	f.reg.SetStage("R", true)
	assert.Equal(t, []string{"some-leave"}, messages(h.OnStageChanged(ctx)))
	assert.Empty(t, h.OnStageChanged(ctx), "already disposed")

	f.reg.SetStage("R", false)
	assert.Equal(t, []string{"some-enter"}, messages(h.OnStageChanged(ctx)))

	f.reg.Leave("self")
	assert.Empty(t, h.OnStageChanged(ctx))
}
