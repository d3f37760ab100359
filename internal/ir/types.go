package ir

import "slices"

// EntityID identifies a present participant. Unique within a room.
type EntityID string

// RoomContext scopes an evaluation pass.
// RoomID scopes presence membership, SpaceID scopes role lookups.
type RoomContext struct {
	RoomID  string `json:"room_id" yaml:"room_id"`
	SpaceID string `json:"space_id,omitempty" yaml:"space_id,omitempty"`
}

// CheckKind names a group check strategy.
type CheckKind string

const (
	KindSome       CheckKind = "some"
	KindMuted      CheckKind = "muted"
	KindFriends    CheckKind = "friends"
	KindBlocked    CheckKind = "blocked"
	KindBlacklist  CheckKind = "blacklist"
	KindRoleGroups CheckKind = "role-groups"
	KindPatterns   CheckKind = "patterns"
)

// AllKinds lists every check kind in default registration order.
var AllKinds = []CheckKind{
	KindRoleGroups,
	KindSome,
	KindMuted,
	KindFriends,
	KindBlocked,
	KindBlacklist,
	KindPatterns,
}

// MultiSource reports whether the kind yields one result per named group.
func (k CheckKind) MultiSource() bool {
	return k == KindRoleGroups || k == KindPatterns
}

// Token returns the message token for single-source kinds.
// Multi-source kinds have no token: their messages use the group name.
func (k CheckKind) Token() string {
	if k.MultiSource() {
		return ""
	}
	return string(k)
}

// ParseCheckKind returns the kind named s.
func ParseCheckKind(s string) (CheckKind, bool) {
	for _, k := range AllKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// NamedGroup is the base of every user-configured group.
type NamedGroup struct {
	Name    string `json:"name" yaml:"name"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// RoleRef points at a role inside a space.
type RoleRef struct {
	SpaceID string `json:"space_id" yaml:"space_id"`
	RoleID  string `json:"role_id" yaml:"role_id"`
}

// RoleGroup is satisfied by an entity that is included explicitly, or that
// holds any referenced role of the current space, unless it is excluded.
type RoleGroup struct {
	NamedGroup `yaml:",inline"`
	Roles      []RoleRef  `json:"roles" yaml:"roles"`
	Include    []EntityID `json:"include,omitempty" yaml:"include,omitempty"`
	Exclude    []EntityID `json:"exclude,omitempty" yaml:"exclude,omitempty"`
}

// Includes reports whether id is on the include list.
func (g *RoleGroup) Includes(id EntityID) bool {
	return slices.Contains(g.Include, id)
}

// Excludes reports whether id is on the exclude list.
func (g *RoleGroup) Excludes(id EntityID) bool {
	return slices.Contains(g.Exclude, id)
}

// RoleIDs returns the role ids referenced for spaceID, in declaration order.
func (g *RoleGroup) RoleIDs(spaceID string) []string {
	var ids []string
	for _, r := range g.Roles {
		if r.SpaceID == spaceID {
			ids = append(ids, r.RoleID)
		}
	}
	return ids
}

// Pattern is a conjunction of terms over the predicate catalog.
// See package pattern for the expression language.
type Pattern struct {
	NamedGroup `yaml:",inline"`
	Expression string `json:"expression" yaml:"expression"`
}

// Settings is a snapshot of all user configuration the engine reads.
// Settings values are treated as immutable once published to a catalog.
type Settings struct {
	// Checks enables or disables whole strategies. A kind missing from the
	// map is enabled.
	Checks map[CheckKind]bool `json:"checks,omitempty" yaml:"checks,omitempty"`

	// RoleGroups and Patterns are kept in declaration order.
	RoleGroups []RoleGroup `json:"role_groups,omitempty" yaml:"role_groups,omitempty"`
	Patterns   []Pattern   `json:"patterns,omitempty" yaml:"patterns,omitempty"`

	// Blacklist feeds the blacklist check.
	Blacklist []EntityID `json:"blacklist,omitempty" yaml:"blacklist,omitempty"`

	// Ignore lists entities skipped by every check and every delta.
	Ignore []EntityID `json:"ignore,omitempty" yaml:"ignore,omitempty"`
}

// CheckEnabled reports whether the strategy for k should run.
func (s *Settings) CheckEnabled(k CheckKind) bool {
	if s == nil {
		return true
	}
	v, ok := s.Checks[k]
	return !ok || v
}

// RoleGroup returns the role group named name, preferring an enabled one
// when several share the name. Disabled groups still resolve; Enabled only
// gates the role-groups strategy.
func (s *Settings) RoleGroup(name string) (*RoleGroup, bool) {
	if s == nil {
		return nil, false
	}
	var found *RoleGroup
	for i := range s.RoleGroups {
		g := &s.RoleGroups[i]
		if g.Name != name {
			continue
		}
		if g.Enabled {
			return g, true
		}
		if found == nil {
			found = g
		}
	}
	return found, found != nil
}

// EnabledRoleGroups returns enabled role groups in declaration order.
func (s *Settings) EnabledRoleGroups() []RoleGroup {
	if s == nil {
		return nil
	}
	var out []RoleGroup
	for _, g := range s.RoleGroups {
		if g.Enabled {
			out = append(out, g)
		}
	}
	return out
}

// EnabledPatterns returns enabled patterns in declaration order.
func (s *Settings) EnabledPatterns() []Pattern {
	if s == nil {
		return nil
	}
	var out []Pattern
	for _, p := range s.Patterns {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// Blacklisted reports whether id is on the black list.
func (s *Settings) Blacklisted(id EntityID) bool {
	return s != nil && slices.Contains(s.Blacklist, id)
}

// Ignored reports whether id is on the ignore list.
func (s *Settings) Ignored(id EntityID) bool {
	return s != nil && slices.Contains(s.Ignore, id)
}

// Clone returns a deep copy of s.
func (s *Settings) Clone() *Settings {
	if s == nil {
		return &Settings{}
	}
	out := &Settings{
		Blacklist: slices.Clone(s.Blacklist),
		Ignore:    slices.Clone(s.Ignore),
		Patterns:  slices.Clone(s.Patterns),
	}
	if s.Checks != nil {
		out.Checks = make(map[CheckKind]bool, len(s.Checks))
		for k, v := range s.Checks {
			out.Checks[k] = v
		}
	}
	for _, g := range s.RoleGroups {
		g.Roles = slices.Clone(g.Roles)
		g.Include = slices.Clone(g.Include)
		g.Exclude = slices.Clone(g.Exclude)
		out.RoleGroups = append(out.RoleGroups, g)
	}
	return out
}

// SetEnabled flips the enabled flag of the named group of kind k.
// Only role-groups and patterns carry named groups. Returns false if no
// group matched.
func (s *Settings) SetEnabled(k CheckKind, name string, enabled bool) bool {
	found := false
	switch k {
	case KindRoleGroups:
		for i := range s.RoleGroups {
			if s.RoleGroups[i].Name == name {
				s.RoleGroups[i].Enabled = enabled
				found = true
			}
		}
	case KindPatterns:
		for i := range s.Patterns {
			if s.Patterns[i].Name == name {
				s.Patterns[i].Enabled = enabled
				found = true
			}
		}
	}
	return found
}

// GroupUpdateResult is the outcome of one strategy for one source.
//
// DeltaJoined and DeltaLeft are nil when the pass had no delta context,
// which means "no per-user notification for this pass". They are non-nil
// (possibly empty) when a delta was supplied.
type GroupUpdateResult struct {
	Kind          CheckKind  `json:"kind"`
	Source        string     `json:"source,omitempty"`
	IsSatisfied   bool       `json:"is_satisfied"`
	SatisfyingIDs []EntityID `json:"satisfying_ids"`
	DeltaJoined   []EntityID `json:"delta_joined,omitempty"`
	DeltaLeft     []EntityID `json:"delta_left,omitempty"`
}

// Key returns the cache key for r.
func (r GroupUpdateResult) Key() CacheKey {
	return CacheKey{Kind: r.Kind, Source: r.Source}
}

// CacheKey identifies a cached satisfaction value.
// Source is empty for single-source kinds.
type CacheKey struct {
	Kind   CheckKind `json:"kind"`
	Source string    `json:"source,omitempty"`
}

// PresenceEvent is one room transition reported by the presence source.
// An empty NewRoomID means the entity left every room; an empty OldRoomID
// means it was in no room before.
type PresenceEvent struct {
	EntityID  EntityID `json:"entity_id" yaml:"entity_id"`
	NewRoomID string   `json:"new_room_id,omitempty" yaml:"new_room_id,omitempty"`
	OldRoomID string   `json:"old_room_id,omitempty" yaml:"old_room_id,omitempty"`
}

// Moved reports whether the event changes the entity's room.
func (e PresenceEvent) Moved() bool {
	return e.NewRoomID != e.OldRoomID
}
