package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/rollcall/internal/ir"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSettings returns settings exercising every table.
func createTestSettings() *ir.Settings {
	return &ir.Settings{
		Checks: map[ir.CheckKind]bool{ir.KindBlocked: false, ir.KindMuted: true},
		RoleGroups: []ir.RoleGroup{
			{
				NamedGroup: ir.NamedGroup{Name: "vip", Enabled: true},
				Roles: []ir.RoleRef{
					{SpaceID: "guild-1", RoleID: "r-vip"},
					{SpaceID: "guild-2", RoleID: "r-gold"},
				},
				Include: []ir.EntityID{"user-7"},
			},
			{
				NamedGroup: ir.NamedGroup{Name: "mods", Enabled: false},
				Roles:      []ir.RoleRef{{SpaceID: "guild-1", RoleID: "r-mod"}},
				Exclude:    []ir.EntityID{"user-3", "user-4"},
			},
		},
		Patterns: []ir.Pattern{
			{NamedGroup: ir.NamedGroup{Name: "zeta", Enabled: true}, Expression: "vip -muted"},
			{NamedGroup: ir.NamedGroup{Name: "alpha", Enabled: true}, Expression: "join:present"},
		},
		Blacklist: []ir.EntityID{"user-13"},
		Ignore:    []ir.EntityID{"bot-2", "bot-1"},
	}
}
