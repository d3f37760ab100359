// Package catalog resolves group names to predicates.
//
// The catalog holds the current settings snapshot and the presence
// sources. Every Resolve call reads the snapshot that is current at that
// moment, so an Update is visible to the next evaluation pass without any
// invalidation step.
package catalog

import (
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/roach88/rollcall/internal/ir"
	"github.com/roach88/rollcall/internal/pattern"
	"github.com/roach88/rollcall/internal/presence"
)

// Built-in predicate names.
const (
	Muted       = "muted"
	Friend      = "friend"
	Blocked     = "blocked"
	Present     = "present"
	Blacklisted = "blacklisted"
)

// Builtins lists the built-in predicate names in resolution order.
var Builtins = []string{Muted, Friend, Blocked, Present, Blacklisted}

// IsBuiltin reports whether name is a built-in predicate.
func IsBuiltin(name string) bool {
	return slices.Contains(Builtins, name)
}

// Catalog resolves names against built-ins and the current settings.
// Safe for concurrent use.
type Catalog struct {
	sources  presence.Sources
	settings atomic.Pointer[ir.Settings]
	logger   *slog.Logger
	eval     *pattern.Evaluator
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger used for evaluation diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Catalog) {
		c.logger = logger
	}
}

// New creates a catalog over sources with an initial settings snapshot.
// A nil settings value is treated as empty settings.
func New(sources presence.Sources, settings *ir.Settings, opts ...Option) *Catalog {
	c := &Catalog{
		sources: sources,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if settings == nil {
		settings = &ir.Settings{}
	}
	c.settings.Store(settings)
	c.eval = pattern.NewEvaluator(pattern.ResolverFunc(c.resolveTerm), c.logger)
	return c
}

// Update publishes a new settings snapshot. The caller must not mutate s
// afterwards.
func (c *Catalog) Update(s *ir.Settings) {
	if s == nil {
		s = &ir.Settings{}
	}
	c.settings.Store(s)
	c.logger.Debug("catalog settings updated",
		"role_groups", len(s.RoleGroups),
		"patterns", len(s.Patterns),
	)
}

// Settings returns the current snapshot. Treat it as read-only.
func (c *Catalog) Settings() *ir.Settings {
	return c.settings.Load()
}

// Sources returns the presence sources the catalog reads.
func (c *Catalog) Sources() presence.Sources {
	return c.sources
}

// Evaluator returns the pattern evaluator bound to this catalog.
func (c *Catalog) Evaluator() *pattern.Evaluator {
	return c.eval
}

// Resolve returns the predicate named name: a built-in, then an enabled
// role group, then an enabled pattern.
func (c *Catalog) Resolve(name string) (ir.Predicate, bool) {
	if p, ok := c.resolveTerm(name); ok {
		return p, true
	}
	for _, pt := range c.Settings().EnabledPatterns() {
		if pt.Name == name {
			expr := pattern.Compile(pt.Expression)
			return func(id ir.EntityID, room ir.RoomContext, delta *ir.Delta) bool {
				return c.eval.Match(expr, id, room, delta)
			}, true
		}
	}
	return nil, false
}

// resolveTerm resolves a pattern term base: built-ins and role groups only.
// Patterns cannot reference other patterns, which keeps evaluation acyclic.
func (c *Catalog) resolveTerm(name string) (ir.Predicate, bool) {
	if p, ok := c.builtin(name); ok {
		return p, true
	}
	if g, ok := c.Settings().RoleGroup(name); ok {
		return func(id ir.EntityID, room ir.RoomContext, _ *ir.Delta) bool {
			return c.InRoleGroup(g, id, room)
		}, true
	}
	return nil, false
}

func (c *Catalog) builtin(name string) (ir.Predicate, bool) {
	switch name {
	case Muted:
		return func(id ir.EntityID, _ ir.RoomContext, _ *ir.Delta) bool { return c.IsMuted(id) }, true
	case Friend:
		return func(id ir.EntityID, _ ir.RoomContext, _ *ir.Delta) bool { return c.IsFriend(id) }, true
	case Blocked:
		return func(id ir.EntityID, _ ir.RoomContext, _ *ir.Delta) bool { return c.IsBlocked(id) }, true
	case Present:
		return func(ir.EntityID, ir.RoomContext, *ir.Delta) bool { return true }, true
	case Blacklisted:
		return func(id ir.EntityID, _ ir.RoomContext, _ *ir.Delta) bool { return c.Settings().Blacklisted(id) }, true
	}
	return nil, false
}

// IsMuted reports whether id is locally muted or at zero volume.
func (c *Catalog) IsMuted(id ir.EntityID) bool {
	a := c.sources.Audio
	if a == nil {
		return false
	}
	return a.IsLocallyMuted(id) || a.LocalVolume(id) == 0
}

// IsFriend reports whether id is a friend of the local participant.
func (c *Catalog) IsFriend(id ir.EntityID) bool {
	r := c.sources.Relationships
	return r != nil && r.IsFriend(id)
}

// IsBlocked reports whether id is blocked or ignored.
func (c *Catalog) IsBlocked(id ir.EntityID) bool {
	r := c.sources.Relationships
	return r != nil && r.IsBlockedOrIgnored(id)
}

// InRoleGroup reports whether id satisfies g in room.
// Exclusion beats inclusion, which beats role membership. Roles are
// matched only against refs of the room's space; an unresolvable member
// holds no roles.
func (c *Catalog) InRoleGroup(g *ir.RoleGroup, id ir.EntityID, room ir.RoomContext) bool {
	if g.Excludes(id) {
		return false
	}
	if g.Includes(id) {
		return true
	}

	wanted := g.RoleIDs(room.SpaceID)
	if len(wanted) == 0 || c.sources.Roles == nil {
		return false
	}
	held, ok := c.sources.Roles.RolesFor(id, room.SpaceID)
	if !ok {
		return false
	}
	for _, r := range wanted {
		if slices.Contains(held, r) {
			return true
		}
	}
	return false
}

// MatchPattern reports whether id satisfies p.
func (c *Catalog) MatchPattern(p ir.Pattern, id ir.EntityID, room ir.RoomContext, delta *ir.Delta) bool {
	return c.eval.MatchString(p.Expression, id, room, delta)
}
