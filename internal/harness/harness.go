package harness

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/rollcall/internal/config"
	"github.com/roach88/rollcall/internal/ir"
	"github.com/roach88/rollcall/internal/testutil"
)

// Harness drives one scenario through a deterministic world.
type Harness struct {
	scenario *Scenario
	world    *testutil.World
	settings *ir.Settings
	logger   *slog.Logger
}

// Option configures Run.
type Option func(*Harness)

// WithLogger sets the logger passed to the world.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Load settings (inline CUE or settings_dir)
//  2. Build the world and place the initial participants
//  3. Execute steps, comparing messages and cache state after each
//
// An error is returned only when the scenario cannot run at all.
// Mismatches are reported through the result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	settings, err := loadSettings(scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	h := &Harness{
		scenario: scenario,
		settings: settings,
		logger:   testutil.DiscardLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}

	worldOpts := []testutil.WorldOption{testutil.WithLogger(h.logger)}
	if scenario.Self != "" {
		worldOpts = append(worldOpts, testutil.WithSelf(ir.EntityID(scenario.Self)))
	}
	if len(scenario.Sessions) > 0 {
		worldOpts = append(worldOpts, testutil.WithSessions(scenario.Sessions...))
	}
	h.world = testutil.NewWorld(settings, worldOpts...)
	h.setup()

	ctx := context.Background()
	result := NewResult()
	for i := range scenario.Steps {
		step := &scenario.Steps[i]
		ns := h.execute(ctx, step)
		action := step.Action()
		result.AddTrace(i, action, ns)

		got := messages(ns)
		if !slices.Equal(got, step.Expect) {
			result.AddError(fmt.Sprintf("step %d (%s): expected %v, got %v", i, action, orNone(step.Expect), orNone(got)))
		}
		for _, msg := range h.checkState(step.State) {
			result.AddError(fmt.Sprintf("step %d (%s): %s", i, action, msg))
		}
	}
	return result, nil
}

func loadSettings(s *Scenario) (*ir.Settings, error) {
	switch {
	case s.Settings != "":
		return config.CompileString(s.Settings)
	case s.SettingsDir != "":
		res, err := config.LoadDir(s.SettingsDir)
		if err != nil {
			return nil, err
		}
		return res.Settings, nil
	}
	return &ir.Settings{}, nil
}

// setup places the initial world. The local participant stays outside.
func (h *Harness) setup() {
	reg := h.world.Registry
	in := h.scenario.Initial
	if h.scenario.Space != "" {
		reg.SetSpace(h.scenario.Room, h.scenario.Space)
	}
	for _, id := range in.Present {
		reg.Move(ir.EntityID(id), h.scenario.Room)
	}
	for _, id := range in.Muted {
		reg.SetMuted(ir.EntityID(id), true)
	}
	for _, id := range in.Friends {
		reg.SetFriend(ir.EntityID(id), true)
	}
	for _, id := range in.Blocked {
		reg.SetBlocked(ir.EntityID(id), true)
	}
	for id, v := range in.Volume {
		reg.SetVolume(ir.EntityID(id), v)
	}
	for id, roles := range in.Roles {
		reg.SetRoles(ir.EntityID(id), h.scenario.Space, roles)
	}
}

// execute applies one step to the registry and runs the matching host
// callback.
func (h *Harness) execute(ctx context.Context, st *Step) []ir.Notification {
	reg := h.world.Registry
	host := h.world.Host

	switch {
	case st.Join != "":
		return host.OnRoomPresenceChanged(ctx, reg.Move(ir.EntityID(st.Join), h.currentRoom()))
	case st.Leave != "":
		return host.OnRoomPresenceChanged(ctx, reg.Leave(ir.EntityID(st.Leave)))
	case st.Move != nil:
		return host.OnRoomPresenceChanged(ctx, reg.Move(ir.EntityID(st.Move.Entity), st.Move.Room))
	case st.Self != nil:
		return host.OnRoomPresenceChanged(ctx, reg.Move(reg.SelfID(), *st.Self))
	case st.Mute != nil:
		reg.SetMuted(ir.EntityID(st.Mute.Entity), st.Mute.On())
		return host.OnAudioStateChanged(ctx)
	case st.Volume != nil:
		reg.SetVolume(ir.EntityID(st.Volume.Entity), st.Volume.Volume)
		return host.OnAudioStateChanged(ctx)
	case st.Friend != nil:
		reg.SetFriend(ir.EntityID(st.Friend.Entity), st.Friend.On())
		return host.OnRelationshipChanged(ctx)
	case st.Block != nil:
		reg.SetBlocked(ir.EntityID(st.Block.Entity), st.Block.On())
		return host.OnRelationshipChanged(ctx)
	case st.Grant != nil:
		reg.Grant(ir.EntityID(st.Grant.Entity), h.space(st.Grant), st.Grant.Role)
		return host.OnRolesChanged(ctx)
	case st.Revoke != nil:
		reg.Revoke(ir.EntityID(st.Revoke.Entity), h.space(st.Revoke), st.Revoke.Role)
		return host.OnRolesChanged(ctx)
	case st.Toggle != nil:
		h.settings = toggled(h.settings, st.Toggle)
		return host.OnSettingsChanged(ctx, h.settings)
	case st.Reevaluate != "":
		kind := ir.CheckKind(st.Reevaluate)
		if st.Reevaluate == ReevaluateAll {
			kind = ""
		}
		return host.ForceReevaluate(ctx, kind)
	case st.Stream != nil:
		self := reg.SelfID()
		if st.Stream.ID == "" {
			reg.StopStream(self)
			return host.OnStreamChanged(ctx)
		}
		if id, ok := reg.Stream(self); !ok || id != st.Stream.ID {
			reg.StartStream(self, st.Stream.ID)
		}
		viewers := make([]ir.EntityID, len(st.Stream.Viewers))
		for i, v := range st.Stream.Viewers {
			viewers[i] = ir.EntityID(v)
		}
		reg.SetViewers(self, viewers)
		return host.OnStreamChanged(ctx)
	case st.SelfAudio != nil:
		reg.SetSelfAudio(st.SelfAudio.Muted, st.SelfAudio.Deafened)
		return host.OnSelfAudioChanged(ctx)
	case st.Stage != nil:
		reg.SetStage(st.Stage.Room, st.Stage.On())
		return host.OnStageChanged(ctx)
	}
	return nil
}

// currentRoom is where join steps go: the local participant's room, or
// the scenario room before it entered one.
func (h *Harness) currentRoom() string {
	if room, ok := h.world.Registry.SelfRoom(); ok {
		return room
	}
	return h.scenario.Room
}

func (h *Harness) space(r *RoleStep) string {
	if r.Space != "" {
		return r.Space
	}
	return h.scenario.Space
}

func toggled(s *ir.Settings, t *ToggleStep) *ir.Settings {
	next := s.Clone()
	kind := ir.CheckKind(t.Kind)
	if kind.MultiSource() {
		next.SetEnabled(kind, t.Name, t.Enabled)
		return next
	}
	if next.Checks == nil {
		next.Checks = make(map[ir.CheckKind]bool)
	}
	next.Checks[kind] = t.Enabled
	return next
}

func (h *Harness) checkState(want map[string]bool) []string {
	keys := make([]string, 0, len(want))
	for k := range want {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var errs []string
	for _, k := range keys {
		key, _ := parseStateKey(k)
		got, known := h.world.Context.Satisfied(key)
		switch {
		case !known:
			errs = append(errs, fmt.Sprintf("state %s: not cached", k))
		case got != want[k]:
			errs = append(errs, fmt.Sprintf("state %s: expected %t, got %t", k, want[k], got))
		}
	}
	return errs
}

func messages(ns []ir.Notification) []string {
	var out []string
	for _, n := range ns {
		out = append(out, n.Message)
	}
	return out
}

func orNone(msgs []string) any {
	if len(msgs) == 0 {
		return "(none)"
	}
	return msgs
}
