package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/rollcall/internal/engine"
	"github.com/roach88/rollcall/internal/ir"
)

// SubmitResponse is the body of a 202 or, with ?wait=true, a 200.
type SubmitResponse struct {
	Queued        bool              `json:"queued"`
	Notifications []ir.Notification `json:"notifications,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     ir.EngineVersion,
		"queue_depth": s.engine.QueueLen(),
	})
}

// submit enqueues ev and writes the response.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, ev engine.Event) {
	done, ok := s.enqueue(r, ev)
	s.respond(w, r, done, ok)
}

// enqueue hands ev to the engine. done is non-nil when the request asked
// to wait for the pass.
func (s *Server) enqueue(r *http.Request, ev engine.Event) (done chan []ir.Notification, ok bool) {
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		done = make(chan []ir.Notification, 1)
		ev.Done = done
	}
	return done, s.engine.Enqueue(ev)
}

// respond writes 202 for a queued event, or waits on done and writes 200.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, done chan []ir.Notification, ok bool) {
	if !ok {
		unavailable(w)
		return
	}
	if done == nil {
		writeJSON(w, http.StatusAccepted, SubmitResponse{Queued: true})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.wait)
	defer cancel()
	select {
	case ns := <-done:
		writeJSON(w, http.StatusOK, SubmitResponse{Queued: true, Notifications: ns})
	case <-ctx.Done():
		writeError(w, http.StatusGatewayTimeout, CodeUnavailable, "timed out waiting for the engine")
	}
}

func (s *Server) presence(w http.ResponseWriter, r *http.Request) {
	var req PresenceRequest
	if !decode(w, r, &req) {
		return
	}

	events := make([]ir.PresenceEvent, 0, len(req.Events))
	for _, e := range req.Events {
		id := ir.EntityID(e.EntityID)
		if e.SpaceID != "" {
			s.registry.SetSpace(e.NewRoomID, e.SpaceID)
		}
		ev := s.registry.Move(id, e.NewRoomID)
		if e.OldRoomID != "" && e.OldRoomID != ev.OldRoomID {
			s.logger.Debug("presence old room disagrees with registry",
				"entity_id", e.EntityID,
				"reported", e.OldRoomID,
				"registry", ev.OldRoomID,
			)
		}
		if ev.Moved() {
			events = append(events, ev)
		}
	}
	if len(events) == 0 {
		writeJSON(w, http.StatusOK, SubmitResponse{})
		return
	}
	s.submit(w, r, engine.Event{Type: engine.EventTypePresence, Presence: events})
}

func (s *Server) audio(w http.ResponseWriter, r *http.Request) {
	var req AudioRequest
	if !decode(w, r, &req) {
		return
	}
	id := ir.EntityID(chi.URLParam(r, "id"))
	if req.Muted != nil {
		s.registry.SetMuted(id, *req.Muted)
	}
	if req.Volume != nil {
		s.registry.SetVolume(id, *req.Volume)
	}
	s.submit(w, r, engine.Event{Type: engine.EventTypeAudio})
}

func (s *Server) relationship(w http.ResponseWriter, r *http.Request) {
	var req RelationshipRequest
	if !decode(w, r, &req) {
		return
	}
	id := ir.EntityID(chi.URLParam(r, "id"))
	if req.Friend != nil {
		s.registry.SetFriend(id, *req.Friend)
	}
	if req.Blocked != nil {
		s.registry.SetBlocked(id, *req.Blocked)
	}
	s.submit(w, r, engine.Event{Type: engine.EventTypeRelationship})
}

func (s *Server) roles(w http.ResponseWriter, r *http.Request) {
	var req RolesRequest
	if !decode(w, r, &req) {
		return
	}
	s.registry.SetRoles(ir.EntityID(chi.URLParam(r, "id")), req.SpaceID, req.Roles)
	s.submit(w, r, engine.Event{Type: engine.EventTypeRoles})
}

func (s *Server) streamChanged(w http.ResponseWriter, r *http.Request) {
	var req StreamRequest
	if !decode(w, r, &req) {
		return
	}
	owner := ir.EntityID(chi.URLParam(r, "owner"))
	if req.StreamID == "" {
		s.registry.StopStream(owner)
	} else if id, ok := s.registry.Stream(owner); !ok || id != req.StreamID {
		s.registry.StartStream(owner, req.StreamID)
	}
	if req.Viewers != nil {
		viewers := make([]ir.EntityID, len(req.Viewers))
		for i, v := range req.Viewers {
			viewers[i] = ir.EntityID(v)
		}
		s.registry.SetViewers(owner, viewers)
	}
	s.submit(w, r, engine.Event{Type: engine.EventTypeStream})
}

func (s *Server) room(w http.ResponseWriter, r *http.Request) {
	var req RoomRequest
	if !decode(w, r, &req) {
		return
	}
	s.registry.SetStage(chi.URLParam(r, "id"), *req.Stage)
	s.submit(w, r, engine.Event{Type: engine.EventTypeStage})
}

func (s *Server) selfAudio(w http.ResponseWriter, r *http.Request) {
	var req SelfAudioRequest
	if !decode(w, r, &req) {
		return
	}
	muted, deafened := s.registry.SelfAudio()
	if req.Muted != nil {
		muted = *req.Muted
	}
	if req.Deafened != nil {
		deafened = *req.Deafened
	}
	s.registry.SetSelfAudio(muted, deafened)
	s.submit(w, r, engine.Event{Type: engine.EventTypeSelfAudio})
}

func (s *Server) reevaluate(w http.ResponseWriter, r *http.Request) {
	kind, err := parseKind(r.URL.Query().Get("kind"), true)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	s.submit(w, r, engine.Event{Type: engine.EventTypeReevaluate, Kind: kind})
}

// toggle handles PUT /v1/groups/{kind}/{name}. For role-groups and
// patterns name selects the group; for every other kind name must repeat
// the kind and the whole check is switched.
//
// The settings lock covers the store write and the enqueue, so settings
// events reach the engine in the order they were applied. Waiting for the
// pass happens after the lock is released.
func (s *Server) toggle(w http.ResponseWriter, r *http.Request) {
	kind, err := parseKind(chi.URLParam(r, "kind"), false)
	if err != nil {
		notFound(w, err.Error())
		return
	}
	name := chi.URLParam(r, "name")

	var req ToggleRequest
	if !decode(w, r, &req) {
		return
	}
	enabled := *req.Enabled

	s.mu.Lock()
	next, fail := s.toggled(r.Context(), kind, name, enabled)
	if fail != nil {
		s.mu.Unlock()
		fail(w)
		return
	}
	s.settings = next
	done, ok := s.enqueue(r, engine.Event{Type: engine.EventTypeSettings, Settings: next.Clone()})
	s.mu.Unlock()

	s.logger.Info("group toggled", "kind", kind, "name", name, "enabled", enabled)
	s.respond(w, r, done, ok)
}

// toggled returns the settings with the toggle applied and persisted.
// On failure it returns the error response instead. Called with s.mu held.
func (s *Server) toggled(ctx context.Context, kind ir.CheckKind, name string, enabled bool) (*ir.Settings, func(http.ResponseWriter)) {
	next := s.settings.Clone()
	if kind.MultiSource() {
		if !next.SetEnabled(kind, name, enabled) {
			return nil, func(w http.ResponseWriter) {
				notFound(w, fmt.Sprintf("no %s group named %q", kind, name))
			}
		}
		if s.store != nil {
			if _, err := s.store.SetGroupEnabled(ctx, kind, name, enabled); err != nil {
				s.logger.Error("persist toggle failed", "kind", kind, "name", name, "error", err)
				return nil, func(w http.ResponseWriter) { internalError(w, "failed to persist toggle") }
			}
		}
		return next, nil
	}

	if name != string(kind) {
		return nil, func(w http.ResponseWriter) {
			notFound(w, fmt.Sprintf("%s has no named groups; use /v1/groups/%s/%s", kind, kind, kind))
		}
	}
	if next.Checks == nil {
		next.Checks = make(map[ir.CheckKind]bool)
	}
	next.Checks[kind] = enabled
	if s.store != nil {
		if err := s.store.SetCheckEnabled(ctx, kind, enabled); err != nil {
			s.logger.Error("persist toggle failed", "kind", kind, "error", err)
			return nil, func(w http.ResponseWriter) { internalError(w, "failed to persist toggle") }
		}
	}
	return next, nil
}

func (s *Server) state(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Snapshot(r.Context())
	if err != nil {
		if engine.IsStopped(err) {
			unavailable(w)
			return
		}
		internalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}
