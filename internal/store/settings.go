package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/roach88/rollcall/internal/ir"
)

// ErrNoSettings is returned by LoadSettings before anything was saved.
var ErrNoSettings = errors.New("no settings saved")

const revisionKey = "revision"

// SaveSettings replaces the stored snapshot with s and bumps the revision.
func (s *Store) SaveSettings(ctx context.Context, settings *ir.Settings) error {
	if settings == nil {
		settings = &ir.Settings{}
	}
	return s.withTx(ctx, "save settings", func(tx *sql.Tx) error {
		for _, table := range []string{"role_refs", "role_groups", "patterns", "checks", "entity_lists"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}

		for kind, on := range settings.Checks {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO checks (kind, enabled) VALUES (?, ?)`,
				string(kind), boolInt(on)); err != nil {
				return fmt.Errorf("insert check %s: %w", kind, err)
			}
		}

		for pos, g := range settings.RoleGroups {
			include, err := marshalEntities(g.Include)
			if err != nil {
				return err
			}
			exclude, err := marshalEntities(g.Exclude)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO role_groups (position, name, enabled, include, exclude)
				VALUES (?, ?, ?, ?, ?)
			`, pos, g.Name, boolInt(g.Enabled), include, exclude); err != nil {
				return fmt.Errorf("insert role group %s: %w", g.Name, err)
			}
			for idx, r := range g.Roles {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO role_refs (group_position, idx, space_id, role_id)
					VALUES (?, ?, ?, ?)
				`, pos, idx, r.SpaceID, r.RoleID); err != nil {
					return fmt.Errorf("insert role ref %s[%d]: %w", g.Name, idx, err)
				}
			}
		}

		for pos, p := range settings.Patterns {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO patterns (position, name, enabled, expression)
				VALUES (?, ?, ?, ?)
			`, pos, p.Name, boolInt(p.Enabled), p.Expression); err != nil {
				return fmt.Errorf("insert pattern %s: %w", p.Name, err)
			}
		}

		if err := insertList(ctx, tx, "blacklist", settings.Blacklist); err != nil {
			return err
		}
		if err := insertList(ctx, tx, "ignore", settings.Ignore); err != nil {
			return err
		}
		return bumpRevision(ctx, tx)
	})
}

func insertList(ctx context.Context, tx *sql.Tx, list string, ids []ir.EntityID) error {
	for pos, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entity_lists (list, position, entity_id) VALUES (?, ?, ?)`,
			list, pos, string(id)); err != nil {
			return fmt.Errorf("insert %s entry: %w", list, err)
		}
	}
	return nil
}

// LoadSettings returns the stored snapshot, or ErrNoSettings if none was
// ever saved.
func (s *Store) LoadSettings(ctx context.Context) (*ir.Settings, error) {
	rev, err := s.Revision(ctx)
	if err != nil {
		return nil, err
	}
	if rev == 0 {
		return nil, ErrNoSettings
	}

	out := &ir.Settings{}
	if out.Checks, err = s.readChecks(ctx); err != nil {
		return nil, err
	}
	if out.RoleGroups, err = s.readRoleGroups(ctx); err != nil {
		return nil, err
	}
	if out.Patterns, err = s.readPatterns(ctx); err != nil {
		return nil, err
	}
	if out.Blacklist, err = s.readList(ctx, "blacklist"); err != nil {
		return nil, err
	}
	if out.Ignore, err = s.readList(ctx, "ignore"); err != nil {
		return nil, err
	}
	return out, nil
}

// SetGroupEnabled toggles every role group or pattern named name. It
// reports whether any row matched; nothing is written when none did.
func (s *Store) SetGroupEnabled(ctx context.Context, kind ir.CheckKind, name string, enabled bool) (bool, error) {
	var table string
	switch kind {
	case ir.KindRoleGroups:
		table = "role_groups"
	case ir.KindPatterns:
		table = "patterns"
	default:
		return false, fmt.Errorf("set group enabled: %s has no named groups", kind)
	}

	var found bool
	err := s.withTx(ctx, "set group enabled", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE "+table+" SET enabled = ? WHERE name = ?",
			boolInt(enabled), name)
		if err != nil {
			return fmt.Errorf("update %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update %s: %w", table, err)
		}
		if n == 0 {
			return nil
		}
		found = true
		return bumpRevision(ctx, tx)
	})
	return found, err
}

// SetCheckEnabled turns a whole strategy on or off.
func (s *Store) SetCheckEnabled(ctx context.Context, kind ir.CheckKind, enabled bool) error {
	return s.withTx(ctx, "set check enabled", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO checks (kind, enabled) VALUES (?, ?)
			ON CONFLICT(kind) DO UPDATE SET enabled = excluded.enabled
		`, string(kind), boolInt(enabled)); err != nil {
			return fmt.Errorf("upsert check %s: %w", kind, err)
		}
		return bumpRevision(ctx, tx)
	})
}

// Revision returns the number of writes so far. Zero means the store is
// empty.
func (s *Store) Revision(ctx context.Context) (int64, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, revisionKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read revision: %w", err)
	}
	rev, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse revision %q: %w", value, err)
	}
	return rev, nil
}

func bumpRevision(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, '1')
		ON CONFLICT(key) DO UPDATE SET value = CAST(CAST(value AS INTEGER) + 1 AS TEXT)
	`, revisionKey)
	if err != nil {
		return fmt.Errorf("bump revision: %w", err)
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

func (s *Store) readChecks(ctx context.Context) (map[ir.CheckKind]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, enabled FROM checks ORDER BY kind COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("query checks: %w", err)
	}
	defer rows.Close()

	var checks map[ir.CheckKind]bool
	for rows.Next() {
		var kind string
		var on int
		if err := rows.Scan(&kind, &on); err != nil {
			return nil, fmt.Errorf("scan check: %w", err)
		}
		if checks == nil {
			checks = make(map[ir.CheckKind]bool)
		}
		checks[ir.CheckKind(kind)] = on == 1
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checks: %w", err)
	}
	return checks, nil
}

func (s *Store) readRoleGroups(ctx context.Context) ([]ir.RoleGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, name, enabled, include, exclude
		FROM role_groups
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query role groups: %w", err)
	}
	defer rows.Close()

	var (
		groups    []ir.RoleGroup
		positions []int64
	)
	for rows.Next() {
		var (
			g                ir.RoleGroup
			pos              int64
			on               int
			include, exclude string
		)
		if err := rows.Scan(&pos, &g.Name, &on, &include, &exclude); err != nil {
			return nil, fmt.Errorf("scan role group: %w", err)
		}
		g.Enabled = on == 1
		if g.Include, err = unmarshalEntities(include); err != nil {
			return nil, err
		}
		if g.Exclude, err = unmarshalEntities(exclude); err != nil {
			return nil, err
		}
		groups = append(groups, g)
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role groups: %w", err)
	}
	rows.Close()

	for i, pos := range positions {
		if groups[i].Roles, err = s.readRoleRefs(ctx, pos); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

func (s *Store) readRoleRefs(ctx context.Context, groupPos int64) ([]ir.RoleRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT space_id, role_id FROM role_refs
		WHERE group_position = ?
		ORDER BY idx ASC
	`, groupPos)
	if err != nil {
		return nil, fmt.Errorf("query role refs: %w", err)
	}
	defer rows.Close()

	var refs []ir.RoleRef
	for rows.Next() {
		var r ir.RoleRef
		if err := rows.Scan(&r.SpaceID, &r.RoleID); err != nil {
			return nil, fmt.Errorf("scan role ref: %w", err)
		}
		refs = append(refs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role refs: %w", err)
	}
	return refs, nil
}

func (s *Store) readPatterns(ctx context.Context) ([]ir.Pattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, enabled, expression FROM patterns
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close()

	var patterns []ir.Pattern
	for rows.Next() {
		var (
			p  ir.Pattern
			on int
		)
		if err := rows.Scan(&p.Name, &on, &p.Expression); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		p.Enabled = on == 1
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patterns: %w", err)
	}
	return patterns, nil
}

func (s *Store) readList(ctx context.Context, list string) ([]ir.EntityID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id FROM entity_lists
		WHERE list = ?
		ORDER BY position ASC
	`, list)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", list, err)
	}
	defer rows.Close()

	var ids []ir.EntityID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s entry: %w", list, err)
		}
		ids = append(ids, ir.EntityID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", list, err)
	}
	return ids, nil
}
