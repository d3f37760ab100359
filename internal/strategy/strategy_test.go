package strategy

import (
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rollcall/internal/catalog"
	"github.com/roach88/rollcall/internal/ir"
	"github.com/roach88/rollcall/internal/presence"
)

var room = ir.RoomContext{RoomID: "R", SpaceID: "S"}

func setupEnv(t *testing.T, s *ir.Settings) (Env, *presence.Registry) {
	t.Helper()
	reg := presence.NewRegistry("self")
	reg.SetSpace("R", "S")
	c := catalog.New(presence.FromRegistry(reg), s,
		catalog.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return Env{Catalog: c, Room: room}, reg
}

func ids(s ...string) []ir.EntityID {
	out := make([]ir.EntityID, 0, len(s))
	for _, v := range s {
		out = append(out, ir.EntityID(v))
	}
	return out
}

func byKey(results []ir.GroupUpdateResult) map[ir.CacheKey]ir.GroupUpdateResult {
	m := make(map[ir.CacheKey]ir.GroupUpdateResult, len(results))
	for _, r := range results {
		m[r.Key()] = r
	}
	return m
}

func TestDefaultRegistrationOrder(t *testing.T) {
	assert.Equal(t, ir.AllKinds, Default().Kinds())
}

func TestRegisterReplaceKeepsPosition(t *testing.T) {
	table := Default()
	called := false
	table.Register(ir.KindMuted, func(Env, []ir.EntityID, *ir.Delta) []ir.GroupUpdateResult {
		called = true
		return nil
	})
	assert.Equal(t, ir.AllKinds, table.Kinds())

	env, _ := setupEnv(t, nil)
	table.Process(env, ids("A"), nil)
	assert.True(t, called)
}

func TestProcessSingleSourceOrder(t *testing.T) {
	env, reg := setupEnv(t, nil)
	reg.SetMuted("A", true)

	results := Default().Process(env, ids("A", "B"), nil)

	var kinds []ir.CheckKind
	for _, r := range results {
		kinds = append(kinds, r.Kind)
	}
	assert.Equal(t, []ir.CheckKind{ir.KindSome, ir.KindMuted, ir.KindFriends, ir.KindBlocked, ir.KindBlacklist}, kinds,
		"no role groups or patterns configured")

	got := byKey(results)
	assert.True(t, got[ir.CacheKey{Kind: ir.KindSome}].IsSatisfied)
	assert.Equal(t, ids("A"), got[ir.CacheKey{Kind: ir.KindMuted}].SatisfyingIDs)
	assert.False(t, got[ir.CacheKey{Kind: ir.KindFriends}].IsSatisfied)
	assert.Empty(t, got[ir.CacheKey{Kind: ir.KindFriends}].SatisfyingIDs)
}

func TestProcessNoDeltaLeavesDeltaNil(t *testing.T) {
	env, _ := setupEnv(t, nil)
	for _, r := range Default().Process(env, ids("A"), nil) {
		assert.Nil(t, r.DeltaJoined, "kind %s", r.Kind)
		assert.Nil(t, r.DeltaLeft, "kind %s", r.Kind)
	}
}

func TestProcessDelta(t *testing.T) {
	env, reg := setupEnv(t, nil)
	reg.SetFriend("A", true)
	reg.SetFriend("L", true)

	delta := &ir.Delta{Joined: ids("A", "B"), Left: ids("L", "M")}
	got := byKey(Default().Process(env, ids("A", "B", "C"), delta))

	some := got[ir.CacheKey{Kind: ir.KindSome}]
	assert.Equal(t, ids("A", "B"), some.DeltaJoined)
	assert.Equal(t, ids("L", "M"), some.DeltaLeft)

	friends := got[ir.CacheKey{Kind: ir.KindFriends}]
	assert.Equal(t, ids("A"), friends.SatisfyingIDs)
	assert.Equal(t, ids("A"), friends.DeltaJoined)
	assert.Equal(t, ids("L"), friends.DeltaLeft, "departed entities are re-tested")

	muted := got[ir.CacheKey{Kind: ir.KindMuted}]
	assert.NotNil(t, muted.DeltaJoined)
	assert.Empty(t, muted.DeltaJoined)
	assert.Empty(t, muted.DeltaLeft)
}

func TestProcessSelectedKinds(t *testing.T) {
	env, _ := setupEnv(t, nil)
	results := Default().Process(env, ids("A"), nil, ir.KindBlocked, ir.KindSome)
	require.Len(t, results, 2)
	assert.Equal(t, ir.KindSome, results[0].Kind, "registration order wins over argument order")
	assert.Equal(t, ir.KindBlocked, results[1].Kind)
}

func TestProcessSkipsDisabledChecks(t *testing.T) {
	env, _ := setupEnv(t, &ir.Settings{Checks: map[ir.CheckKind]bool{ir.KindMuted: false, ir.KindSome: true}})
	for _, r := range Default().Process(env, ids("A"), nil) {
		assert.NotEqual(t, ir.KindMuted, r.Kind)
	}
}

func TestProcessIgnoreList(t *testing.T) {
	env, _ := setupEnv(t, &ir.Settings{Ignore: ids("bot")})

	results := Default().Process(env, ids("bot"), &ir.Delta{Joined: ids("bot")}, ir.KindSome)
	require.Len(t, results, 1)
	assert.False(t, results[0].IsSatisfied)
	assert.Empty(t, results[0].SatisfyingIDs)
	assert.Empty(t, results[0].DeltaJoined)
}

func TestBlacklist(t *testing.T) {
	env, _ := setupEnv(t, &ir.Settings{Blacklist: ids("troll")})
	results := Default().Process(env, ids("A", "troll"), nil, ir.KindBlacklist)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsSatisfied)
	assert.Equal(t, ids("troll"), results[0].SatisfyingIDs)
}

func TestRoleGroupsOneResultPerEnabledGroup(t *testing.T) {
	s := &ir.Settings{
		RoleGroups: []ir.RoleGroup{
			{NamedGroup: ir.NamedGroup{Name: "vip", Enabled: true}, Roles: []ir.RoleRef{{SpaceID: "S", RoleID: "r1"}}},
			{NamedGroup: ir.NamedGroup{Name: "off", Enabled: false}, Include: ids("A")},
			{NamedGroup: ir.NamedGroup{Name: "staff", Enabled: true}, Include: ids("B")},
		},
	}
	env, reg := setupEnv(t, s)
	reg.Grant("A", "S", "r1")

	results := Default().Process(env, ids("A", "B"), nil, ir.KindRoleGroups)
	want := []ir.GroupUpdateResult{
		{Kind: ir.KindRoleGroups, Source: "vip", IsSatisfied: true, SatisfyingIDs: ids("A")},
		{Kind: ir.KindRoleGroups, Source: "staff", IsSatisfied: true, SatisfyingIDs: ids("B")},
	}
	if diff := cmp.Diff(want, results); diff != "" {
		t.Errorf("RoleGroups mismatch (-want +got):\n%s", diff)
	}
}

func TestPatternsUseDeltaForJoinPrefix(t *testing.T) {
	s := &ir.Settings{
		Patterns: []ir.Pattern{
			{NamedGroup: ir.NamedGroup{Name: "new-friend", Enabled: true}, Expression: "join:friend"},
			{NamedGroup: ir.NamedGroup{Name: "loud-friend", Enabled: true}, Expression: "friend -muted"},
		},
	}
	env, reg := setupEnv(t, s)
	reg.SetFriend("A", true)
	reg.SetFriend("B", true)
	reg.SetMuted("B", true)

	got := byKey(Default().Process(env, ids("A", "B"), &ir.Delta{Joined: ids("B")}, ir.KindPatterns))

	newFriend := got[ir.CacheKey{Kind: ir.KindPatterns, Source: "new-friend"}]
	assert.Equal(t, ids("B"), newFriend.SatisfyingIDs)
	assert.Equal(t, ids("B"), newFriend.DeltaJoined)

	loud := got[ir.CacheKey{Kind: ir.KindPatterns, Source: "loud-friend"}]
	assert.Equal(t, ids("A"), loud.SatisfyingIDs)
	assert.Empty(t, loud.DeltaJoined)
}

func TestEvaluateEmptyPresence(t *testing.T) {
	r := Evaluate(ir.KindSome, "", nil, nil, func(ir.EntityID) bool { return true })
	assert.False(t, r.IsSatisfied)
	assert.NotNil(t, r.SatisfyingIDs)
	assert.Empty(t, r.SatisfyingIDs)
}
