package pattern

import (
	"log/slog"

	"github.com/roach88/rollcall/internal/ir"
)

// Resolver resolves term bases to predicates.
type Resolver interface {
	Resolve(name string) (ir.Predicate, bool)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(name string) (ir.Predicate, bool)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(name string) (ir.Predicate, bool) {
	return f(name)
}

// Evaluator matches compiled expressions against entities.
type Evaluator struct {
	resolver Resolver
	logger   *slog.Logger
}

// NewEvaluator creates an evaluator over r. A nil logger uses slog.Default.
func NewEvaluator(r Resolver, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{resolver: r, logger: logger}
}

// Match reports whether every term of e holds for id.
func (ev *Evaluator) Match(e Expression, id ir.EntityID, room ir.RoomContext, delta *ir.Delta) bool {
	for _, t := range e.Terms {
		if !ev.term(t, id, room, delta) {
			return false
		}
	}
	return true
}

// MatchString compiles and matches expr.
func (ev *Evaluator) MatchString(expr string, id ir.EntityID, room ir.RoomContext, delta *ir.Delta) bool {
	return ev.Match(Compile(expr), id, room, delta)
}

func (ev *Evaluator) term(t Term, id ir.EntityID, room ir.RoomContext, delta *ir.Delta) bool {
	for _, p := range t.Prefixes {
		if p == PrefixJoin && !delta.HasJoined(id) {
			return t.Negated
		}
	}

	// A base that is not a valid name can never resolve.
	if !ir.ValidName(t.Base) {
		ev.logger.Debug("malformed pattern term",
			"term", t.Raw,
			"entity_id", id,
		)
		return t.Negated
	}

	pred, ok := ev.resolver.Resolve(t.Base)
	if !ok {
		ev.logger.Debug("pattern references unknown group",
			"term", t.Raw,
			"group", t.Base,
		)
		return t.Negated
	}

	return pred(id, room, delta) != t.Negated
}
