package strategy

import "github.com/roach88/rollcall/internal/ir"

// Some is satisfied while anyone is present.
func Some(_ Env, present []ir.EntityID, delta *ir.Delta) []ir.GroupUpdateResult {
	return []ir.GroupUpdateResult{
		Evaluate(ir.KindSome, "", present, delta, func(ir.EntityID) bool { return true }),
	}
}

// Muted is satisfied by a locally muted or zero-volume entity.
func Muted(env Env, present []ir.EntityID, delta *ir.Delta) []ir.GroupUpdateResult {
	return []ir.GroupUpdateResult{
		Evaluate(ir.KindMuted, "", present, delta, env.Catalog.IsMuted),
	}
}

// Friends is satisfied by a friend of the local participant.
func Friends(env Env, present []ir.EntityID, delta *ir.Delta) []ir.GroupUpdateResult {
	return []ir.GroupUpdateResult{
		Evaluate(ir.KindFriends, "", present, delta, env.Catalog.IsFriend),
	}
}

// Blocked is satisfied by a blocked or ignored entity.
func Blocked(env Env, present []ir.EntityID, delta *ir.Delta) []ir.GroupUpdateResult {
	return []ir.GroupUpdateResult{
		Evaluate(ir.KindBlocked, "", present, delta, env.Catalog.IsBlocked),
	}
}

// Blacklist is satisfied by an entity on the configured black list.
func Blacklist(env Env, present []ir.EntityID, delta *ir.Delta) []ir.GroupUpdateResult {
	s := env.Catalog.Settings()
	return []ir.GroupUpdateResult{
		Evaluate(ir.KindBlacklist, "", present, delta, s.Blacklisted),
	}
}

// RoleGroups yields one result per enabled role group.
func RoleGroups(env Env, present []ir.EntityID, delta *ir.Delta) []ir.GroupUpdateResult {
	groups := env.Catalog.Settings().EnabledRoleGroups()
	results := make([]ir.GroupUpdateResult, 0, len(groups))
	for i := range groups {
		g := &groups[i]
		results = append(results, Evaluate(ir.KindRoleGroups, g.Name, present, delta, func(id ir.EntityID) bool {
			return env.Catalog.InRoleGroup(g, id, env.Room)
		}))
	}
	return results
}

// Patterns yields one result per enabled pattern.
func Patterns(env Env, present []ir.EntityID, delta *ir.Delta) []ir.GroupUpdateResult {
	patterns := env.Catalog.Settings().EnabledPatterns()
	results := make([]ir.GroupUpdateResult, 0, len(patterns))
	for _, p := range patterns {
		results = append(results, Evaluate(ir.KindPatterns, p.Name, present, delta, func(id ir.EntityID) bool {
			return env.Catalog.MatchPattern(p, id, env.Room, delta)
		}))
	}
	return results
}
