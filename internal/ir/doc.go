// Package ir provides the core types shared by every rollcall package.
//
// This package contains type definitions and small pure helpers only. All
// other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Entity, room and space ids are opaque strings
//   - All JSON and YAML tags use snake_case
//   - Slices that carry ids preserve the order they were produced in, so a
//     pass over the same input always produces the same output
package ir
