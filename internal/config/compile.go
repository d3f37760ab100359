package config

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/rollcall/internal/ir"
)

// CompileError is a settings compile failure with its CUE position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Positions maps a settings field path such as "role_group.vip" to where
// it is declared.
type Positions map[string]token.Pos

// Compile builds settings from a CUE value. Role groups and patterns are
// returned in declaration order.
func Compile(v cue.Value) (*ir.Settings, Positions, error) {
	if err := v.Err(); err != nil {
		return nil, nil, formatCUEError(err)
	}

	s := &ir.Settings{}
	pos := Positions{}

	checks := v.LookupPath(cue.ParsePath("checks"))
	if checks.Exists() {
		iter, err := checks.Fields()
		if err != nil {
			return nil, nil, formatCUEError(err)
		}
		s.Checks = make(map[ir.CheckKind]bool)
		for iter.Next() {
			on, err := iter.Value().Bool()
			if err != nil {
				return nil, nil, &CompileError{Field: "checks." + iter.Selector().Unquoted(), Message: "must be a bool", Pos: iter.Value().Pos()}
			}
			label := iter.Selector().Unquoted()
			s.Checks[ir.CheckKind(label)] = on
			pos["checks."+label] = iter.Value().Pos()
		}
	}

	groups := v.LookupPath(cue.ParsePath("role_group"))
	if groups.Exists() {
		iter, err := groups.Fields()
		if err != nil {
			return nil, nil, formatCUEError(err)
		}
		for iter.Next() {
			name := iter.Selector().Unquoted()
			g, err := compileRoleGroup(name, iter.Value())
			if err != nil {
				return nil, nil, err
			}
			s.RoleGroups = append(s.RoleGroups, g)
			pos["role_group."+name] = iter.Value().Pos()
		}
	}

	patterns := v.LookupPath(cue.ParsePath("pattern"))
	if patterns.Exists() {
		iter, err := patterns.Fields()
		if err != nil {
			return nil, nil, formatCUEError(err)
		}
		for iter.Next() {
			name := iter.Selector().Unquoted()
			p, err := compilePattern(name, iter.Value())
			if err != nil {
				return nil, nil, err
			}
			s.Patterns = append(s.Patterns, p)
			pos["pattern."+name] = iter.Value().Pos()
		}
	}

	var err error
	if s.Blacklist, err = entityList(v, "blacklist"); err != nil {
		return nil, nil, err
	}
	if s.Ignore, err = entityList(v, "ignore"); err != nil {
		return nil, nil, err
	}
	pos["blacklist"] = v.LookupPath(cue.ParsePath("blacklist")).Pos()
	pos["ignore"] = v.LookupPath(cue.ParsePath("ignore")).Pos()

	return s, pos, nil
}

func compileRoleGroup(name string, v cue.Value) (ir.RoleGroup, error) {
	g := ir.RoleGroup{NamedGroup: ir.NamedGroup{Name: name}}

	var err error
	if g.Enabled, err = enabled(v, "role_group."+name); err != nil {
		return g, err
	}

	roles := v.LookupPath(cue.ParsePath("roles"))
	if roles.Exists() {
		iter, err := roles.List()
		if err != nil {
			return g, &CompileError{Field: "role_group." + name + ".roles", Message: "must be a list", Pos: roles.Pos()}
		}
		for iter.Next() {
			var ref ir.RoleRef
			if err := iter.Value().Decode(&ref); err != nil {
				return g, &CompileError{
					Field:   "role_group." + name + ".roles",
					Message: "each role must be {space_id: string, role_id: string}",
					Pos:     iter.Value().Pos(),
				}
			}
			g.Roles = append(g.Roles, ref)
		}
	}

	if g.Include, err = entityList(v, "include"); err != nil {
		return g, prefixField(err, "role_group."+name)
	}
	if g.Exclude, err = entityList(v, "exclude"); err != nil {
		return g, prefixField(err, "role_group."+name)
	}
	return g, nil
}

func compilePattern(name string, v cue.Value) (ir.Pattern, error) {
	p := ir.Pattern{NamedGroup: ir.NamedGroup{Name: name}}

	var err error
	if p.Enabled, err = enabled(v, "pattern."+name); err != nil {
		return p, err
	}

	// A bare string is shorthand for {expression: "..."}.
	if s, err := v.String(); err == nil {
		p.Expression = s
		return p, nil
	}

	expr := v.LookupPath(cue.ParsePath("expression"))
	if !expr.Exists() {
		return p, &CompileError{Field: "pattern." + name, Message: "expression is required", Pos: v.Pos()}
	}
	if p.Expression, err = expr.String(); err != nil {
		return p, &CompileError{Field: "pattern." + name + ".expression", Message: "must be a string", Pos: expr.Pos()}
	}
	return p, nil
}

// enabled reads the optional enabled flag, default true.
func enabled(v cue.Value, field string) (bool, error) {
	if v.IncompleteKind() == cue.StringKind {
		return true, nil
	}
	ev := v.LookupPath(cue.ParsePath("enabled"))
	if !ev.Exists() {
		return true, nil
	}
	on, err := ev.Bool()
	if err != nil {
		return false, &CompileError{Field: field + ".enabled", Message: "must be a bool", Pos: ev.Pos()}
	}
	return on, nil
}

func entityList(v cue.Value, field string) ([]ir.EntityID, error) {
	lv := v.LookupPath(cue.ParsePath(field))
	if !lv.Exists() {
		return nil, nil
	}
	var ids []string
	if err := lv.Decode(&ids); err != nil {
		return nil, &CompileError{Field: field, Message: "must be a list of strings", Pos: lv.Pos()}
	}
	out := make([]ir.EntityID, 0, len(ids))
	for _, id := range ids {
		out = append(out, ir.EntityID(id))
	}
	return out, nil
}

func prefixField(err error, prefix string) error {
	if ce, ok := err.(*CompileError); ok {
		ce.Field = prefix + "." + ce.Field
	}
	return err
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
