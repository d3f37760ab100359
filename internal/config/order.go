package config

import (
	"slices"

	"github.com/roach88/rollcall/internal/ir"
)

// sortedCheckKinds returns the keys of checks in a stable order: known
// kinds in registration order, then unknown ones sorted.
func sortedCheckKinds(checks map[ir.CheckKind]bool) []ir.CheckKind {
	var known, unknown []ir.CheckKind
	for _, k := range ir.AllKinds {
		if _, ok := checks[k]; ok {
			known = append(known, k)
		}
	}
	for k := range checks {
		if !slices.Contains(ir.AllKinds, k) {
			unknown = append(unknown, k)
		}
	}
	slices.Sort(unknown)
	return append(known, unknown...)
}
