package pattern

import (
	"fmt"
	"strings"
)

// KnownPrefixes lists the prefixes evaluation understands.
var KnownPrefixes = []string{PrefixJoin}

// SyntaxError describes one malformed term.
type SyntaxError struct {
	Index   int    `json:"index"`
	Term    string `json:"term"`
	Message string `json:"message"`
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("term %d %q: %s", e.Index+1, e.Term, e.Message)
}

// Validate reports every malformed term and every unknown prefix in expr.
// A nil result means the expression is well formed. Evaluation tolerates
// unknown prefixes, so a caller may treat those findings as warnings.
func Validate(expr string) []*SyntaxError {
	var errs []*SyntaxError
	for i, t := range Compile(expr).Terms {
		if msg := termProblem(t); msg != "" {
			errs = append(errs, &SyntaxError{Index: i, Term: t.Raw, Message: msg})
		}
	}
	return errs
}

func termProblem(t Term) string {
	if t.Negated && strings.HasPrefix(t.Raw, "--") {
		return "only one leading '-' is allowed"
	}
	for _, p := range t.Prefixes {
		if p == "" {
			return "empty prefix"
		}
		if !prefixPattern.MatchString(p) {
			return fmt.Sprintf("prefix %q must be lowercase letters", p)
		}
	}
	if t.Base == "" {
		return "missing group name"
	}
	if t.Malformed {
		return fmt.Sprintf("%q is not a valid group name", t.Base)
	}
	for _, p := range t.Prefixes {
		if !isKnownPrefix(p) {
			return fmt.Sprintf("unknown prefix %q", p)
		}
	}
	return ""
}

func isKnownPrefix(p string) bool {
	for _, k := range KnownPrefixes {
		if k == p {
			return true
		}
	}
	return false
}

// IsUnknownPrefix reports whether err only flags an unknown prefix.
func IsUnknownPrefix(err *SyntaxError) bool {
	return err != nil && strings.HasPrefix(err.Message, "unknown prefix")
}
