package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rollcall/internal/ir"
)

// Scenario is one membership test.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Self is the local participant. Defaults to testutil.DefaultSelf.
	Self string `yaml:"self,omitempty"`

	// Room holds the initial participants. Space scopes role lookups in it.
	Room  string `yaml:"room"`
	Space string `yaml:"space,omitempty"`

	// Settings is inline CUE. SettingsDir is a settings directory relative
	// to the scenario file. At most one may be set; neither means defaults.
	Settings    string `yaml:"settings,omitempty"`
	SettingsDir string `yaml:"settings_dir,omitempty"`

	// Sessions are the session tokens handed out in order.
	Sessions []string `yaml:"sessions,omitempty"`

	Initial Initial `yaml:"initial,omitempty"`
	Steps   []Step  `yaml:"steps"`
}

// Initial is the world before the first step. The local participant is in
// no room until a self step moves it.
type Initial struct {
	Present []string            `yaml:"present,omitempty"`
	Muted   []string            `yaml:"muted,omitempty"`
	Friends []string            `yaml:"friends,omitempty"`
	Blocked []string            `yaml:"blocked,omitempty"`
	Volume  map[string]float64  `yaml:"volume,omitempty"`
	Roles   map[string][]string `yaml:"roles,omitempty"`
}

// Step is one change to the world. Exactly one action field is set.
type Step struct {
	Join       string      `yaml:"join,omitempty"`
	Leave      string      `yaml:"leave,omitempty"`
	Move       *MoveStep   `yaml:"move,omitempty"`
	Self       *string     `yaml:"self,omitempty"`
	Mute       *FlagStep   `yaml:"mute,omitempty"`
	Volume     *VolumeStep `yaml:"volume,omitempty"`
	Friend     *FlagStep   `yaml:"friend,omitempty"`
	Block      *FlagStep   `yaml:"block,omitempty"`
	Grant      *RoleStep   `yaml:"grant,omitempty"`
	Revoke     *RoleStep   `yaml:"revoke,omitempty"`
	Toggle     *ToggleStep `yaml:"toggle,omitempty"`
	Reevaluate string      `yaml:"reevaluate,omitempty"`
	Stream     *StreamStep `yaml:"stream,omitempty"`
	SelfAudio  *AudioStep  `yaml:"self_audio,omitempty"`
	Stage      *StageStep  `yaml:"stage,omitempty"`

	// Expect lists the control messages of the step in order. Missing
	// means the step must be silent.
	Expect []string `yaml:"expect,omitempty"`

	// State asserts cache values after the step, keyed "kind" or
	// "kind/source".
	State map[string]bool `yaml:"state,omitempty"`
}

// MoveStep moves an entity to a room. An empty room leaves.
type MoveStep struct {
	Entity string `yaml:"entity"`
	Room   string `yaml:"room"`
}

// FlagStep sets a boolean client flag for an entity.
type FlagStep struct {
	Entity string `yaml:"entity"`
	Value  *bool  `yaml:"value,omitempty"`
}

// On returns the flag value, true when unset.
func (f *FlagStep) On() bool {
	return f.Value == nil || *f.Value
}

// VolumeStep sets the local volume of an entity.
type VolumeStep struct {
	Entity string  `yaml:"entity"`
	Volume float64 `yaml:"volume"`
}

// RoleStep grants or revokes one role.
type RoleStep struct {
	Entity string `yaml:"entity"`
	Role   string `yaml:"role"`
	Space  string `yaml:"space,omitempty"`
}

// ToggleStep enables or disables a group, or a whole check for
// single-source kinds.
type ToggleStep struct {
	Kind    string `yaml:"kind"`
	Name    string `yaml:"name,omitempty"`
	Enabled bool   `yaml:"enabled"`
}

// StreamStep sets the local participant's stream. An empty ID ends it.
// A new ID replaces the running stream.
type StreamStep struct {
	ID      string   `yaml:"id,omitempty"`
	Viewers []string `yaml:"viewers,omitempty"`
}

// AudioStep sets the local participant's own mute and deafen state.
type AudioStep struct {
	Muted    bool `yaml:"muted"`
	Deafened bool `yaml:"deafened"`
}

// StageStep flags a room as a stage, or clears the flag.
type StageStep struct {
	Room  string `yaml:"room"`
	Value *bool  `yaml:"value,omitempty"`
}

// On returns the flag value, true when unset.
func (s *StageStep) On() bool {
	return s.Value == nil || *s.Value
}

// ReevaluateAll is the reevaluate value that re-checks every kind.
const ReevaluateAll = "all"

// Action names the step's action for traces and errors.
func (s *Step) Action() string {
	switch {
	case s.Join != "":
		return "join " + s.Join
	case s.Leave != "":
		return "leave " + s.Leave
	case s.Move != nil:
		room := s.Move.Room
		if room == "" {
			room = "-"
		}
		return fmt.Sprintf("move %s %s", s.Move.Entity, room)
	case s.Self != nil:
		room := *s.Self
		if room == "" {
			room = "-"
		}
		return "self " + room
	case s.Mute != nil:
		return fmt.Sprintf("mute %s %t", s.Mute.Entity, s.Mute.On())
	case s.Volume != nil:
		return fmt.Sprintf("volume %s %g", s.Volume.Entity, s.Volume.Volume)
	case s.Friend != nil:
		return fmt.Sprintf("friend %s %t", s.Friend.Entity, s.Friend.On())
	case s.Block != nil:
		return fmt.Sprintf("block %s %t", s.Block.Entity, s.Block.On())
	case s.Grant != nil:
		return fmt.Sprintf("grant %s %s", s.Grant.Entity, s.Grant.Role)
	case s.Revoke != nil:
		return fmt.Sprintf("revoke %s %s", s.Revoke.Entity, s.Revoke.Role)
	case s.Toggle != nil:
		name := s.Toggle.Kind
		if s.Toggle.Name != "" {
			name += "/" + s.Toggle.Name
		}
		return fmt.Sprintf("toggle %s %t", name, s.Toggle.Enabled)
	case s.Reevaluate != "":
		return "reevaluate " + s.Reevaluate
	case s.Stream != nil:
		if s.Stream.ID == "" {
			return "stream -"
		}
		viewers := strings.Join(s.Stream.Viewers, ",")
		if viewers == "" {
			viewers = "-"
		}
		return fmt.Sprintf("stream %s %s", s.Stream.ID, viewers)
	case s.SelfAudio != nil:
		return fmt.Sprintf("self_audio muted=%t deafened=%t", s.SelfAudio.Muted, s.SelfAudio.Deafened)
	case s.Stage != nil:
		return fmt.Sprintf("stage %s %t", s.Stage.Room, s.Stage.On())
	}
	return ""
}

func (s *Step) actionCount() int {
	n := 0
	for _, set := range []bool{
		s.Join != "", s.Leave != "", s.Move != nil, s.Self != nil,
		s.Mute != nil, s.Volume != nil, s.Friend != nil, s.Block != nil,
		s.Grant != nil, s.Revoke != nil, s.Toggle != nil, s.Reevaluate != "",
		s.Stream != nil, s.SelfAudio != nil, s.Stage != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// SettingsDir is resolved relative to the file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if scenario.SettingsDir != "" && !filepath.IsAbs(scenario.SettingsDir) {
		scenario.SettingsDir = filepath.Join(filepath.Dir(path), scenario.SettingsDir)
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Room == "" {
		return fmt.Errorf("room is required")
	}
	if s.Settings != "" && s.SettingsDir != "" {
		return fmt.Errorf("settings and settings_dir are mutually exclusive")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, st *Step) error {
	if n := st.actionCount(); n != 1 {
		return fmt.Errorf("steps[%d]: exactly one action is required, found %d", i, n)
	}
	if err := validateAction(i, st); err != nil {
		return err
	}
	for key := range st.State {
		if _, err := parseStateKey(key); err != nil {
			return fmt.Errorf("steps[%d].state: %w", i, err)
		}
	}
	return nil
}

func validateAction(i int, st *Step) error {
	entity := func(field, id string) error {
		if id == "" {
			return fmt.Errorf("steps[%d].%s: entity is required", i, field)
		}
		return nil
	}

	switch {
	case st.Move != nil:
		return entity("move", st.Move.Entity)
	case st.Mute != nil:
		return entity("mute", st.Mute.Entity)
	case st.Volume != nil:
		if st.Volume.Volume < 0 {
			return fmt.Errorf("steps[%d].volume: volume must be non-negative", i)
		}
		return entity("volume", st.Volume.Entity)
	case st.Friend != nil:
		return entity("friend", st.Friend.Entity)
	case st.Block != nil:
		return entity("block", st.Block.Entity)
	case st.Grant != nil:
		if st.Grant.Role == "" {
			return fmt.Errorf("steps[%d].grant: role is required", i)
		}
		return entity("grant", st.Grant.Entity)
	case st.Revoke != nil:
		if st.Revoke.Role == "" {
			return fmt.Errorf("steps[%d].revoke: role is required", i)
		}
		return entity("revoke", st.Revoke.Entity)
	case st.Toggle != nil:
		k, ok := ir.ParseCheckKind(st.Toggle.Kind)
		if !ok {
			return fmt.Errorf("steps[%d].toggle: unknown kind %q", i, st.Toggle.Kind)
		}
		if k.MultiSource() && st.Toggle.Name == "" {
			return fmt.Errorf("steps[%d].toggle: name is required for %s", i, k)
		}
	case st.Reevaluate != "":
		if st.Reevaluate == ReevaluateAll {
			return nil
		}
		if _, ok := ir.ParseCheckKind(st.Reevaluate); !ok {
			return fmt.Errorf("steps[%d].reevaluate: unknown kind %q", i, st.Reevaluate)
		}
	case st.Stream != nil:
		if st.Stream.ID == "" && len(st.Stream.Viewers) > 0 {
			return fmt.Errorf("steps[%d].stream: viewers need a stream id", i)
		}
	case st.Stage != nil:
		if st.Stage.Room == "" {
			return fmt.Errorf("steps[%d].stage: room is required", i)
		}
	}
	return nil
}

// parseStateKey parses "kind" or "kind/source".
func parseStateKey(key string) (ir.CacheKey, error) {
	kind, source, _ := strings.Cut(key, "/")
	k, ok := ir.ParseCheckKind(kind)
	if !ok {
		return ir.CacheKey{}, fmt.Errorf("unknown kind in state key %q", key)
	}
	if k.MultiSource() != (source != "") {
		return ir.CacheKey{}, fmt.Errorf("state key %q: use kind/source for role-groups and patterns, kind alone otherwise", key)
	}
	return ir.CacheKey{Kind: k, Source: source}, nil
}
