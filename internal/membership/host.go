package membership

import (
	"context"
	"slices"

	"github.com/roach88/rollcall/internal/ir"
	"github.com/roach88/rollcall/internal/presence"
)

// Kinds re-checked by each host event.
var (
	relationshipKinds = []ir.CheckKind{ir.KindFriends, ir.KindBlocked, ir.KindPatterns}
	audioKinds        = []ir.CheckKind{ir.KindMuted, ir.KindPatterns}
	roleKinds         = []ir.CheckKind{ir.KindRoleGroups, ir.KindPatterns}
)

// Host adapts presence-source events to Context operations. Like Context
// it must be driven from one goroutine.
//
// The voice room context is always present. A stream context, when
// configured, tracks the viewers of the local participant's stream; its
// catalog reads a viewer room source such as presence.StreamViewers.
type Host struct {
	membership *Context
	stream     *Context

	// Last observed state of the local participant.
	streamID     string
	viewers      []ir.EntityID
	selfMuted    bool
	selfDeafened bool
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithStreamContext tracks stream viewers through c.
func WithStreamContext(c *Context) HostOption {
	return func(h *Host) {
		h.stream = c
	}
}

// NewHost creates a host over c.
func NewHost(c *Context, opts ...HostOption) *Host {
	h := &Host{membership: c}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Context returns the voice room context.
func (h *Host) Context() *Context {
	return h.membership
}

// StreamContext returns the stream viewer context, nil when none is
// configured.
func (h *Host) StreamContext() *Context {
	return h.stream
}

// Snapshot returns the voice room cache, with the stream viewer cache
// attached while live.
func (h *Host) Snapshot() State {
	st := h.membership.Snapshot()
	if h.stream != nil && h.streamID != "" {
		viewers := h.stream.Snapshot()
		st.Stream = &viewers
	}
	return st
}

// OnRoomPresenceChanged handles a batch of room transitions. The presence
// source must already reflect them.
//
// A transition of the local participant re-evaluates its new room in full,
// or disposes the cache when it left every room or entered a stage room;
// other transitions in the same batch are then covered by that pass.
// Otherwise the transitions into and out of the local participant's room
// form one delta pass. Ignored entities and transitions that do not
// change rooms are dropped.
func (h *Host) OnRoomPresenceChanged(ctx context.Context, events ...ir.PresenceEvent) []ir.Notification {
	cat := h.membership.catalog
	rooms := cat.Sources().Rooms
	if rooms == nil {
		return nil
	}
	self := rooms.SelfID()

	var out []ir.Notification
	selfMoved := false
	for _, ev := range events {
		if ev.EntityID != self || !ev.Moved() {
			continue
		}
		selfMoved = true
		active := ev.NewRoomID != "" && !isStage(rooms, ev.NewRoomID)
		out = append(out, h.membership.OnSelfRoomChange(ctx, ev.NewRoomID, active)...)
	}
	if selfMoved {
		return out
	}

	room, ok := h.activeRoom()
	if !ok {
		return nil
	}

	settings := cat.Settings()
	var joined, left []ir.EntityID
	for _, ev := range events {
		if ev.EntityID == self || !ev.Moved() || settings.Ignored(ev.EntityID) {
			continue
		}
		if ev.NewRoomID == room {
			joined = append(joined, ev.EntityID)
		}
		if ev.OldRoomID == room {
			left = append(left, ev.EntityID)
		}
	}
	if len(joined) == 0 && len(left) == 0 {
		return nil
	}
	return h.membership.EvaluateDelta(ctx, room, joined, left)
}

// OnStreamChanged reconciles the local participant's stream with the
// stream context. Going live signals stream-start and reports the
// initial viewers as joined; viewer changes form one delta pass; ending
// the stream signals stream-stop and disposes the viewer cache. A new
// stream id while live is a stop followed by a start.
func (h *Host) OnStreamChanged(ctx context.Context) []ir.Notification {
	if h.stream == nil {
		return nil
	}
	viewers := h.stream.catalog.Sources().Rooms
	if viewers == nil {
		return nil
	}
	id, live := viewers.SelfRoom()
	if !live {
		id = ""
	}

	var out []ir.Notification
	if h.streamID != "" && h.streamID != id {
		out = append(out, h.membership.Signal(ctx, ir.NewSignal(ir.SignalStream, false))...)
		out = append(out, h.stream.DisposeAll(ctx)...)
		h.streamID = ""
		h.viewers = nil
	}
	if id == "" {
		return out
	}
	if h.streamID == "" {
		h.streamID = id
		out = append(out, h.membership.Signal(ctx, ir.NewSignal(ir.SignalStream, true))...)
	}

	current := slices.Clone(viewers.PresentEntities(id))
	settings := h.stream.catalog.Settings()
	var joined, left []ir.EntityID
	for _, v := range current {
		if !slices.Contains(h.viewers, v) && !settings.Ignored(v) {
			joined = append(joined, v)
		}
	}
	for _, v := range h.viewers {
		if !slices.Contains(current, v) && !settings.Ignored(v) {
			left = append(left, v)
		}
	}
	h.viewers = current
	if len(joined) == 0 && len(left) == 0 {
		return out
	}
	return append(out, h.stream.EvaluateDelta(ctx, id, joined, left)...)
}

// OnSelfAudioChanged signals changes of the local participant's own mute
// and deafen state since the last call, mute first. Both start off.
func (h *Host) OnSelfAudioChanged(ctx context.Context) []ir.Notification {
	src := h.membership.catalog.Sources().SelfAudio
	if src == nil {
		return nil
	}
	muted, deafened := src.SelfAudio()

	var signals []ir.Notification
	if muted != h.selfMuted {
		signals = append(signals, ir.NewSignal(ir.SignalMute, muted))
	}
	if deafened != h.selfDeafened {
		signals = append(signals, ir.NewSignal(ir.SignalDeafen, deafened))
	}
	h.selfMuted, h.selfDeafened = muted, deafened
	return h.membership.Signal(ctx, signals...)
}

// OnStageChanged re-reads the stage flag of the local participant's room.
// A room that became a stage disposes the cache; one that stopped being a
// stage is evaluated in full.
func (h *Host) OnStageChanged(ctx context.Context) []ir.Notification {
	rooms := h.membership.catalog.Sources().Rooms
	if rooms == nil {
		return nil
	}
	room, ok := rooms.SelfRoom()
	if !ok || room == "" {
		return nil
	}
	return h.membership.OnSelfRoomChange(ctx, room, !isStage(rooms, room))
}

// OnRelationshipChanged re-checks relationship-based groups.
func (h *Host) OnRelationshipChanged(ctx context.Context) []ir.Notification {
	return h.evaluate(ctx, relationshipKinds...)
}

// OnAudioStateChanged re-checks mute-based groups.
func (h *Host) OnAudioStateChanged(ctx context.Context) []ir.Notification {
	return h.evaluate(ctx, audioKinds...)
}

// OnRolesChanged re-checks role-based groups.
func (h *Host) OnRolesChanged(ctx context.Context) []ir.Notification {
	return h.evaluate(ctx, roleKinds...)
}

// OnSettingsChanged publishes s to the catalogs and re-checks everything.
// Groups that were disabled or removed leave if they were satisfied.
func (h *Host) OnSettingsChanged(ctx context.Context, s *ir.Settings) []ir.Notification {
	h.membership.catalog.Update(s)
	if h.stream != nil {
		h.stream.catalog.Update(s)
	}
	return h.evaluate(ctx)
}

// ForceReevaluate re-checks kind, or every kind when kind is empty.
func (h *Host) ForceReevaluate(ctx context.Context, kind ir.CheckKind) []ir.Notification {
	if kind == "" {
		return h.evaluate(ctx)
	}
	return h.evaluate(ctx, kind)
}

// evaluate runs a manual pass in the local participant's current room,
// then over the stream viewers while live. Without a room, or in a stage
// room, the voice context has nothing to evaluate.
func (h *Host) evaluate(ctx context.Context, kinds ...ir.CheckKind) []ir.Notification {
	var out []ir.Notification
	if room, ok := h.activeRoom(); ok {
		out = h.membership.Evaluate(ctx, room, kinds...)
	}
	if h.stream != nil && h.streamID != "" && h.stream.Handles(kinds...) {
		out = append(out, h.stream.Evaluate(ctx, h.streamID, kinds...)...)
	}
	return out
}

// activeRoom returns the local participant's room unless it is in none or
// in a stage room.
func (h *Host) activeRoom() (string, bool) {
	rooms := h.membership.catalog.Sources().Rooms
	if rooms == nil {
		return "", false
	}
	room, ok := rooms.SelfRoom()
	if !ok || room == "" || isStage(rooms, room) {
		return "", false
	}
	return room, true
}

func isStage(rooms presence.RoomSource, roomID string) bool {
	s, ok := rooms.(presence.StageSource)
	return ok && s.IsStage(roomID)
}
