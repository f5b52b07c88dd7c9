// Package sqlstore implements store.Store over database/sql. Statements are
// built deterministically so the same call always produces the same SQL.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"crewline/internal/store"
)

type Store struct {
	DB *sql.DB
}

var _ store.Store = Store{}

func New(db *sql.DB) Store {
	return Store{DB: db}
}

func (s Store) Select(ctx context.Context, collection string, where store.Predicate, opts ...store.SelectOption) ([]store.Row, error) {
	if err := store.Validate(collection, where); err != nil {
		return nil, err
	}
	q := store.BuildQuery(opts...)
	clause, args := whereClause(where)
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT * FROM %s%s", collection, clause)
	if q.OrderBy != "" {
		if !store.ValidIdent(q.OrderBy) {
			return nil, fmt.Errorf("%w: order %q", store.ErrInvalidColumn, q.OrderBy)
		}
		dir := "ASC"
		if q.Dir == store.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY %s %s", q.OrderBy, dir)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	rows, err := s.DB.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, classify("select", collection, err)
	}
	defer rows.Close()
	out, err := scanRows(rows)
	if err != nil {
		return nil, classify("select", collection, err)
	}
	return out, nil
}

// Insert writes all rows in one statement. Columns are the union of the rows'
// keys; a row missing a column inserts NULL for it.
func (s Store) Insert(ctx context.Context, collection string, rows []store.Row) ([]store.Row, error) {
	if err := store.Validate(collection, nil); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []store.Row{}, nil
	}
	colSet := map[string]struct{}{}
	for _, r := range rows {
		if err := store.ValidateRow(r); err != nil {
			return nil, err
		}
		for k := range r {
			colSet[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(colSet))
	for k := range colSet {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",") + ")"
	groups := make([]string, len(rows))
	args := make([]any, 0, len(rows)*len(cols))
	for i, r := range rows {
		groups[i] = placeholder
		for _, c := range cols {
			args = append(args, r[c])
		}
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s RETURNING *", collection, strings.Join(cols, ","), strings.Join(groups, ","))
	res, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("insert", collection, err)
	}
	defer res.Close()
	out, err := scanRows(res)
	if err != nil {
		return nil, classify("insert", collection, err)
	}
	return out, nil
}

func (s Store) Update(ctx context.Context, collection string, patch store.Row, where store.Predicate) (int, error) {
	if err := store.Validate(collection, where); err != nil {
		return 0, err
	}
	if err := store.ValidateRow(patch); err != nil {
		return 0, err
	}
	if len(patch) == 0 {
		return 0, errors.New("update with empty patch")
	}
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sets := make([]string, len(keys))
	args := make([]any, 0, len(keys)+len(where))
	for i, k := range keys {
		sets[i] = k + "=?"
		args = append(args, patch[k])
	}
	clause, whereArgs := whereClause(where)
	args = append(args, whereArgs...)
	query := fmt.Sprintf("UPDATE %s SET %s%s", collection, strings.Join(sets, ","), clause)
	res, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classify("update", collection, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify("update", collection, err)
	}
	return int(n), nil
}

func (s Store) Delete(ctx context.Context, collection string, where store.Predicate) (int, error) {
	if err := store.Validate(collection, where); err != nil {
		return 0, err
	}
	clause, args := whereClause(where)
	res, err := s.DB.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s%s", collection, clause), args...)
	if err != nil {
		return 0, classify("delete", collection, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify("delete", collection, err)
	}
	return int(n), nil
}

func whereClause(where store.Predicate) (string, []any) {
	if len(where) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(where))
	var args []any
	for _, c := range where {
		switch c.Op {
		case store.OpEq:
			if c.Value == nil {
				parts = append(parts, c.Column+" IS NULL")
				continue
			}
			parts = append(parts, c.Column+"=?")
			args = append(args, c.Value)
		case store.OpNeq:
			if c.Value == nil {
				parts = append(parts, c.Column+" IS NOT NULL")
				continue
			}
			parts = append(parts, c.Column+"<>?")
			args = append(args, c.Value)
		case store.OpIn:
			parts = append(parts, fmt.Sprintf("%s IN (%s)", c.Column, strings.TrimSuffix(strings.Repeat("?,", len(c.Values)), ",")))
			args = append(args, c.Values...)
		case store.OpIsNull:
			parts = append(parts, c.Column+" IS NULL")
		case store.OpNotNull:
			parts = append(parts, c.Column+" IS NOT NULL")
		}
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}

func scanRows(rows *sql.Rows) ([]store.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []store.Row{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := make(store.Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				r[c] = string(b)
				continue
			}
			r[c] = vals[i]
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func classify(op, collection string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return store.Unavailable(op, collection, err)
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%s %s: %w: %v", op, collection, store.ErrConflict, err)
	}
	return store.Unavailable(op, collection, err)
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
