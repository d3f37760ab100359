package pattern

import (
	"regexp"
	"strings"

	"github.com/roach88/rollcall/internal/ir"
)

// PrefixJoin restricts a term to entities that just joined.
const PrefixJoin = "join"

var prefixPattern = regexp.MustCompile(`^[a-z]+$`)

// Term is one compiled term of an expression.
type Term struct {
	Raw      string   `json:"raw"`
	Negated  bool     `json:"negated,omitempty"`
	Prefixes []string `json:"prefixes,omitempty"`
	Base     string   `json:"base"`

	// Malformed marks a term Validate reports. Evaluation ignores bad
	// prefixes and treats a bad base like an unknown group.
	Malformed bool `json:"malformed,omitempty"`
}

// Expression is a compiled pattern expression.
type Expression struct {
	Source string `json:"source"`
	Terms  []Term `json:"terms"`
}

// Compile splits expr into terms. Compile never fails: malformed terms are
// kept and marked so evaluation stays total. Use Validate to report them.
func Compile(expr string) Expression {
	fields := strings.Fields(expr)
	e := Expression{Source: expr, Terms: make([]Term, 0, len(fields))}
	for _, f := range fields {
		e.Terms = append(e.Terms, compileTerm(f))
	}
	return e
}

func compileTerm(raw string) Term {
	t := Term{Raw: raw}
	rest := raw
	if strings.HasPrefix(rest, "-") {
		t.Negated = true
		rest = rest[1:]
	}

	parts := strings.Split(rest, ":")
	t.Base = parts[len(parts)-1]
	if len(parts) > 1 {
		t.Prefixes = parts[:len(parts)-1]
	}

	if !ir.ValidName(t.Base) {
		t.Malformed = true
	}
	for _, p := range t.Prefixes {
		if !prefixPattern.MatchString(p) {
			t.Malformed = true
		}
	}
	return t
}

// References returns the distinct valid base names, in first-use order.
func (e Expression) References() []string {
	seen := make(map[string]bool, len(e.Terms))
	var refs []string
	for _, t := range e.Terms {
		if !ir.ValidName(t.Base) || seen[t.Base] {
			continue
		}
		seen[t.Base] = true
		refs = append(refs, t.Base)
	}
	return refs
}

// HasPrefix reports whether any term carries prefix p.
func (e Expression) HasPrefix(p string) bool {
	for _, t := range e.Terms {
		for _, tp := range t.Prefixes {
			if tp == p {
				return true
			}
		}
	}
	return false
}
