// Package strategy implements the group check strategies.
//
// A strategy is a pure function over the present entity set and an optional
// delta. Single-source strategies yield one result; role-groups and
// patterns yield one result per enabled group, with the group name as the
// result source. Strategies run in registration order and the results keep
// that order, which fixes the order of every notification emitted from a
// pass.
package strategy
