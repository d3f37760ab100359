package config

import (
	"fmt"

	"github.com/roach88/rollcall/internal/catalog"
	"github.com/roach88/rollcall/internal/ir"
	"github.com/roach88/rollcall/internal/pattern"
)

// Validate checks settings and returns every finding in field order.
// Findings with Warning set leave the settings usable: evaluation fails
// closed on them.
func Validate(s *ir.Settings) []ir.ValidationError {
	if s == nil {
		return nil
	}
	var errs []ir.ValidationError

	for _, k := range sortedCheckKinds(s.Checks) {
		if _, ok := ir.ParseCheckKind(string(k)); !ok {
			errs = append(errs, ir.ValidationError{
				Field:   "checks." + string(k),
				Message: fmt.Sprintf("unknown check %q", k),
				Code:    ir.ErrUnknownCheck,
			})
		}
	}

	seen := make(map[string]bool)
	for _, g := range s.RoleGroups {
		field := "role_group." + g.Name
		errs = append(errs, validateName(field, g.NamedGroup, seen)...)
		for i, r := range g.Roles {
			if r.SpaceID == "" || r.RoleID == "" {
				errs = append(errs, ir.ValidationError{
					Field:   fmt.Sprintf("%s.roles[%d]", field, i),
					Message: "role ref needs both space_id and role_id",
					Code:    ir.ErrInvalidRoleRef,
				})
			}
		}
		errs = append(errs, validateEntities(field+".include", g.Include)...)
		errs = append(errs, validateEntities(field+".exclude", g.Exclude)...)
	}

	seen = make(map[string]bool)
	for _, p := range s.Patterns {
		field := "pattern." + p.Name
		errs = append(errs, validateName(field, p.NamedGroup, seen)...)
		errs = append(errs, ValidateExpression(field+".expression", p.Expression, s)...)
	}

	errs = append(errs, validateEntities("blacklist", s.Blacklist)...)
	errs = append(errs, validateEntities("ignore", s.Ignore)...)
	return errs
}

func validateName(field string, g ir.NamedGroup, seen map[string]bool) []ir.ValidationError {
	var errs []ir.ValidationError
	if !ir.ValidName(g.Name) {
		errs = append(errs, ir.ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%q is not a valid group name", g.Name),
			Code:    ir.ErrInvalidName,
		})
	}
	if catalog.IsBuiltin(g.Name) {
		errs = append(errs, ir.ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%q is shadowed by the built-in predicate", g.Name),
			Code:    ir.ErrDuplicateName,
			Warning: true,
		})
	}
	if g.Enabled {
		if seen[g.Name] {
			errs = append(errs, ir.ValidationError{
				Field:   field,
				Message: fmt.Sprintf("another enabled group is named %q", g.Name),
				Code:    ir.ErrDuplicateName,
			})
		}
		seen[g.Name] = true
	}
	return errs
}

// ValidateExpression checks the syntax of expr and that every base it
// references resolves in s. Findings are reported against field.
func ValidateExpression(field, expr string, s *ir.Settings) []ir.ValidationError {
	var errs []ir.ValidationError
	for _, se := range pattern.Validate(expr) {
		errs = append(errs, ir.ValidationError{
			Field:   field,
			Message: se.Error(),
			Code:    ir.ErrInvalidPattern,
			Warning: pattern.IsUnknownPrefix(se),
		})
	}
	for _, ref := range pattern.Compile(expr).References() {
		if catalog.IsBuiltin(ref) {
			continue
		}
		if _, ok := s.RoleGroup(ref); ok {
			continue
		}
		errs = append(errs, ir.ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%q is not a built-in predicate or role group; the term fails closed", ref),
			Code:    ir.ErrUnknownReference,
			Warning: true,
		})
	}
	return errs
}

func validateEntities(field string, ids []ir.EntityID) []ir.ValidationError {
	var errs []ir.ValidationError
	for i, id := range ids {
		if id == "" {
			errs = append(errs, ir.ValidationError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Message: "entity id must not be empty",
				Code:    ir.ErrInvalidEntity,
			})
		}
	}
	return errs
}

// HasErrors reports whether any finding is not a warning.
func HasErrors(errs []ir.ValidationError) bool {
	for _, e := range errs {
		if !e.Warning {
			return true
		}
	}
	return false
}
