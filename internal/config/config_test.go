package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rollcall/internal/ir"
)

const sampleSettings = `package settings

checks: {
	blocked: false
}

role_group: vip: {
	roles: [{space_id: "guild-1", role_id: "r-vip"}]
	include: ["user-7"]
}

role_group: mods: {
	roles: [{space_id: "guild-1", role_id: "r-mod"}]
	exclude: ["user-3"]
	enabled: false
}

pattern: "loud-vip": expression: "vip -muted"
pattern: newcomer:   "join:present -friend"

blacklist: ["user-13"]
ignore: ["bot-1"]
`

func writeDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func TestLoadDir(t *testing.T) {
	dir := writeDir(t, map[string]string{"settings.cue": sampleSettings})

	res, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, res.FileCount)

	s := res.Settings
	assert.Equal(t, map[ir.CheckKind]bool{ir.KindBlocked: false}, s.Checks)
	assert.False(t, s.CheckEnabled(ir.KindBlocked))
	assert.True(t, s.CheckEnabled(ir.KindMuted))

	require.Len(t, s.RoleGroups, 2)
	assert.Equal(t, "vip", s.RoleGroups[0].Name)
	assert.True(t, s.RoleGroups[0].Enabled)
	assert.Equal(t, []ir.RoleRef{{SpaceID: "guild-1", RoleID: "r-vip"}}, s.RoleGroups[0].Roles)
	assert.Equal(t, []ir.EntityID{"user-7"}, s.RoleGroups[0].Include)
	assert.Equal(t, "mods", s.RoleGroups[1].Name)
	assert.False(t, s.RoleGroups[1].Enabled)
	assert.Equal(t, []ir.EntityID{"user-3"}, s.RoleGroups[1].Exclude)

	require.Len(t, s.Patterns, 2)
	assert.Equal(t, ir.Pattern{NamedGroup: ir.NamedGroup{Name: "loud-vip", Enabled: true}, Expression: "vip -muted"}, s.Patterns[0])
	assert.Equal(t, ir.Pattern{NamedGroup: ir.NamedGroup{Name: "newcomer", Enabled: true}, Expression: "join:present -friend"}, s.Patterns[1])

	assert.Equal(t, []ir.EntityID{"user-13"}, s.Blacklist)
	assert.Equal(t, []ir.EntityID{"bot-1"}, s.Ignore)

	assert.Empty(t, res.Validate())
}

func TestLoadDir_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
		code  string
	}{
		{
			name:  "missing directory",
			setup: func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope") },
			code:  ErrCodeNotFound,
		},
		{
			name: "not a directory",
			setup: func(t *testing.T) string {
				p := filepath.Join(t.TempDir(), "file.cue")
				require.NoError(t, os.WriteFile(p, []byte("x: 1"), 0644))
				return p
			},
			code: ErrCodeNotFound,
		},
		{
			name:  "no cue files",
			setup: func(t *testing.T) string { return writeDir(t, map[string]string{"README.md": "hi"}) },
			code:  ErrCodeNoFiles,
		},
		{
			name:  "conflicting values",
			setup: func(t *testing.T) string { return writeDir(t, map[string]string{"a.cue": "package settings\n\nblacklist: [\n"}) },
			code:  ErrCodeLoadFailed,
		},
		{
			name:  "check is not a bool",
			setup: func(t *testing.T) string { return writeDir(t, map[string]string{"a.cue": "package settings\n\nchecks: muted: \"yes\"\n"}) },
			code:  ErrCodeCompile,
		},
		{
			name:  "pattern without expression",
			setup: func(t *testing.T) string { return writeDir(t, map[string]string{"a.cue": "package settings\n\npattern: p: enabled: true\n"}) },
			code:  ErrCodeCompile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadDir(tt.setup(t))
			require.Error(t, err)
			var le *LoadError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, tt.code, le.Code, le.Error())
		})
	}
}

func TestLoadDir_CompileErrorHasPosition(t *testing.T) {
	dir := writeDir(t, map[string]string{"a.cue": "package settings\n\nchecks: {\n\tmuted: 3\n}\n"})

	_, err := LoadDir(dir)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeCompile, le.Code)
	assert.Contains(t, le.Message, "checks.muted")
	require.True(t, le.Pos.IsValid())
	assert.Equal(t, 4, le.Pos.Line())
}

func TestCompileString(t *testing.T) {
	s, err := CompileString(`pattern: quiet: "muted -blocked"`)
	require.NoError(t, err)
	require.Len(t, s.Patterns, 1)
	assert.Equal(t, "muted -blocked", s.Patterns[0].Expression)
	assert.Nil(t, s.RoleGroups)

	_, err = CompileString(`role_group: g: roles: "r-1"`)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "role_group.g.roles", ce.Field)
}

func TestFindCUEFiles_SkipsSubdirectories(t *testing.T) {
	dir := writeDir(t, map[string]string{"a.cue": "", "b.txt": ""})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.cue"), 0755))

	files, err := FindCUEFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.cue")}, files)
}

func codes(errs []ir.ValidationError) []string {
	var out []string
	for _, e := range errs {
		out = append(out, e.Code)
	}
	return out
}

func TestValidate(t *testing.T) {
	group := func(name string, enabled bool, roles ...ir.RoleRef) ir.RoleGroup {
		return ir.RoleGroup{NamedGroup: ir.NamedGroup{Name: name, Enabled: enabled}, Roles: roles}
	}
	pat := func(name, expr string) ir.Pattern {
		return ir.Pattern{NamedGroup: ir.NamedGroup{Name: name, Enabled: true}, Expression: expr}
	}

	tests := []struct {
		name     string
		settings *ir.Settings
		codes    []string
		warnings int
	}{
		{
			name:     "nil settings",
			settings: nil,
		},
		{
			name: "clean",
			settings: &ir.Settings{
				RoleGroups: []ir.RoleGroup{group("vip", true, ir.RoleRef{SpaceID: "s", RoleID: "r"})},
				Patterns:   []ir.Pattern{pat("p", "vip -muted join:present")},
			},
		},
		{
			name:     "invalid name",
			settings: &ir.Settings{RoleGroups: []ir.RoleGroup{group("bad name", true)}},
			codes:    []string{ir.ErrInvalidName},
		},
		{
			name: "duplicate enabled names",
			settings: &ir.Settings{RoleGroups: []ir.RoleGroup{
				group("vip", true), group("vip", true),
			}},
			codes: []string{ir.ErrDuplicateName},
		},
		{
			name: "disabled duplicate is fine",
			settings: &ir.Settings{RoleGroups: []ir.RoleGroup{
				group("vip", true), group("vip", false),
			}},
		},
		{
			name:     "shadowed by builtin",
			settings: &ir.Settings{RoleGroups: []ir.RoleGroup{group("muted", true)}},
			codes:    []string{ir.ErrDuplicateName},
			warnings: 1,
		},
		{
			name:     "malformed term",
			settings: &ir.Settings{Patterns: []ir.Pattern{pat("p", "--muted")}},
			codes:    []string{ir.ErrInvalidPattern},
		},
		{
			name:     "unknown prefix",
			settings: &ir.Settings{Patterns: []ir.Pattern{pat("p", "leave:present")}},
			codes:    []string{ir.ErrInvalidPattern},
			warnings: 1,
		},
		{
			name: "pattern references pattern",
			settings: &ir.Settings{Patterns: []ir.Pattern{
				pat("a", "muted"), pat("b", "a"),
			}},
			codes:    []string{ir.ErrUnknownReference},
			warnings: 1,
		},
		{
			name: "reference to disabled group",
			settings: &ir.Settings{
				RoleGroups: []ir.RoleGroup{group("vip", false)},
				Patterns:   []ir.Pattern{pat("p", "vip")},
			},
		},
		{
			name:     "reference to missing group",
			settings: &ir.Settings{Patterns: []ir.Pattern{pat("p", "vip")}},
			codes:    []string{ir.ErrUnknownReference},
			warnings: 1,
		},
		{
			name:     "empty role ref",
			settings: &ir.Settings{RoleGroups: []ir.RoleGroup{group("vip", true, ir.RoleRef{SpaceID: "s"})}},
			codes:    []string{ir.ErrInvalidRoleRef},
		},
		{
			name:     "unknown check",
			settings: &ir.Settings{Checks: map[ir.CheckKind]bool{"loudness": true, ir.KindMuted: false}},
			codes:    []string{ir.ErrUnknownCheck},
		},
		{
			name:     "empty entity id",
			settings: &ir.Settings{Blacklist: []ir.EntityID{"a", ""}, Ignore: []ir.EntityID{""}},
			codes:    []string{ir.ErrInvalidEntity, ir.ErrInvalidEntity},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(tt.settings)
			assert.Equal(t, tt.codes, codes(errs))
			warnings := 0
			for _, e := range errs {
				if e.Warning {
					warnings++
				}
			}
			assert.Equal(t, tt.warnings, warnings)
			assert.Equal(t, len(tt.codes) > tt.warnings, HasErrors(errs))
		})
	}
}

func TestResultValidate_AttachesLines(t *testing.T) {
	dir := writeDir(t, map[string]string{"settings.cue": "package settings\n\npattern: ok: \"muted\"\n\npattern: bad: \"--muted\"\n"})

	res, err := LoadDir(dir)
	require.NoError(t, err)

	errs := res.Validate()
	require.Len(t, errs, 1)
	assert.Equal(t, "pattern.bad.expression", errs[0].Field)
	assert.Equal(t, 5, errs[0].Line)
}

func TestProcessFromEnv(t *testing.T) {
	t.Setenv(EnvAddr, ":9999")
	t.Setenv(EnvSelf, "me")

	p := ProcessFromEnv()
	assert.Equal(t, ":9999", p.Addr)
	assert.Equal(t, "me", p.Self)
	assert.Equal(t, "rollcall.db", p.DB)
}

func TestLoadEnvFile(t *testing.T) {
	require.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(EnvNATSURL+"=nats://example:4222\n"), 0644))
	t.Setenv(EnvNATSURL, "")
	os.Unsetenv(EnvNATSURL)

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "nats://example:4222", ProcessFromEnv().NATSURL)
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := writeDir(t, map[string]string{"settings.cue": "package settings\n\nblacklist: [\"a\"]\n"})

	reloads := make(chan *Result, 4)
	w, err := NewWatcher(dir, func(r *Result, err error) {
		if err == nil {
			reloads <- r
		}
	}, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.cue"), []byte("package settings\n\nblacklist: [\"b\"]\n"), 0644))

	select {
	case r := <-reloads:
		assert.Equal(t, []ir.EntityID{"b"}, r.Settings.Blacklist)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
