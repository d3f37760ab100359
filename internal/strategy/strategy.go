package strategy

import (
	"slices"

	"github.com/roach88/rollcall/internal/catalog"
	"github.com/roach88/rollcall/internal/ir"
)

// Env is the read-only environment of one pass.
type Env struct {
	Catalog *catalog.Catalog
	Room    ir.RoomContext
}

// Func evaluates one check kind. delta is nil when the pass carries no
// delta context.
type Func func(env Env, present []ir.EntityID, delta *ir.Delta) []ir.GroupUpdateResult

// Table maps check kinds to strategies and remembers registration order.
type Table struct {
	order []ir.CheckKind
	funcs map[ir.CheckKind]Func
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{funcs: make(map[ir.CheckKind]Func)}
}

// Default returns a table with every built-in strategy in ir.AllKinds order.
func Default() *Table {
	t := NewTable()
	t.Register(ir.KindRoleGroups, RoleGroups)
	t.Register(ir.KindSome, Some)
	t.Register(ir.KindMuted, Muted)
	t.Register(ir.KindFriends, Friends)
	t.Register(ir.KindBlocked, Blocked)
	t.Register(ir.KindBlacklist, Blacklist)
	t.Register(ir.KindPatterns, Patterns)
	return t
}

// StreamKinds are the checks run over stream viewers.
var StreamKinds = []ir.CheckKind{ir.KindRoleGroups, ir.KindSome, ir.KindMuted, ir.KindBlacklist}

// StreamDefault returns the table for stream viewers: role groups,
// presence, local mute and the black list. Relationship and pattern
// checks only run over the voice room.
func StreamDefault() *Table {
	t := NewTable()
	t.Register(ir.KindRoleGroups, RoleGroups)
	t.Register(ir.KindSome, Some)
	t.Register(ir.KindMuted, Muted)
	t.Register(ir.KindBlacklist, Blacklist)
	return t
}

// Register adds or replaces the strategy for kind. A new kind is appended
// to the registration order; a replaced kind keeps its position.
func (t *Table) Register(kind ir.CheckKind, fn Func) {
	if _, ok := t.funcs[kind]; !ok {
		t.order = append(t.order, kind)
	}
	t.funcs[kind] = fn
}

// Kinds returns the registered kinds in registration order.
func (t *Table) Kinds() []ir.CheckKind {
	return slices.Clone(t.order)
}

// Has reports whether kind is registered.
func (t *Table) Has(kind ir.CheckKind) bool {
	_, ok := t.funcs[kind]
	return ok
}

// Process runs the strategies and concatenates their results.
//
// With no kinds every registered strategy runs; otherwise only the named
// ones, still in registration order. Checks disabled in the settings are
// skipped. Ignored entities are removed from present and from the delta
// before any strategy sees them.
func (t *Table) Process(env Env, present []ir.EntityID, delta *ir.Delta, kinds ...ir.CheckKind) []ir.GroupUpdateResult {
	settings := env.Catalog.Settings()
	present = withoutIgnored(settings, present)
	if delta != nil {
		delta = &ir.Delta{
			Joined: withoutIgnored(settings, delta.Joined),
			Left:   withoutIgnored(settings, delta.Left),
		}
	}

	var results []ir.GroupUpdateResult
	for _, kind := range t.order {
		if len(kinds) > 0 && !slices.Contains(kinds, kind) {
			continue
		}
		if !settings.CheckEnabled(kind) {
			continue
		}
		results = append(results, t.funcs[kind](env, present, delta)...)
	}
	return results
}

func withoutIgnored(s *ir.Settings, ids []ir.EntityID) []ir.EntityID {
	out := make([]ir.EntityID, 0, len(ids))
	for _, id := range ids {
		if !s.Ignored(id) {
			out = append(out, id)
		}
	}
	return out
}

// Evaluate builds the result for one source from a per-entity test.
//
// SatisfyingIDs lists present entities passing test, in presence order.
// With a delta, DeltaJoined is joined ∩ satisfying and DeltaLeft lists the
// departed entities that still pass test; both are non-nil.
func Evaluate(kind ir.CheckKind, source string, present []ir.EntityID, delta *ir.Delta, test func(ir.EntityID) bool) ir.GroupUpdateResult {
	r := ir.GroupUpdateResult{
		Kind:          kind,
		Source:        source,
		SatisfyingIDs: []ir.EntityID{},
	}
	for _, id := range present {
		if test(id) {
			r.SatisfyingIDs = append(r.SatisfyingIDs, id)
		}
	}
	r.IsSatisfied = len(r.SatisfyingIDs) > 0

	if delta == nil {
		return r
	}
	r.DeltaJoined = []ir.EntityID{}
	r.DeltaLeft = []ir.EntityID{}
	for _, id := range delta.Joined {
		if slices.Contains(r.SatisfyingIDs, id) {
			r.DeltaJoined = append(r.DeltaJoined, id)
		}
	}
	for _, id := range delta.Left {
		if test(id) {
			r.DeltaLeft = append(r.DeltaLeft, id)
		}
	}
	return r
}
