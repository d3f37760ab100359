// Package pattern implements the group rule language.
//
// An expression is a whitespace-separated conjunction of terms:
//
//	[-][prefix:]...base
//
// A leading "-" negates the term. Prefixes qualify when the term applies;
// "join" restricts it to entities in the delta-joined set. The base names a
// built-in predicate or a role group, resolved through a Resolver at
// evaluation time so configuration edits apply on the next pass.
//
// Evaluation order per term:
//  1. unmet join prefix: the term yields its negation flag
//  2. unknown or invalid base: the term yields its negation flag (fails closed)
//  3. otherwise: predicate XOR negated
//
// Other prefixes, including ones that are not lowercase words, are ignored
// by evaluation. Validate reports them.
//
// An empty expression matches every entity.
package pattern
