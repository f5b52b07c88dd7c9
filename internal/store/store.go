// Package store defines the remote CRUD surface the coordinators run on.
// Backends offer no multi-statement transactions; every call is one independent
// write or read, so callers order their writes and re-read to recover.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Row is one record keyed by column name.
type Row map[string]any

// Op is a predicate operator.
type Op string

const (
	OpEq      Op = "eq"
	OpNeq     Op = "neq"
	OpIn      Op = "in"
	OpIsNull  Op = "is_null"
	OpNotNull Op = "not_null"
)

// Cond is a single column condition. Values is used by OpIn only.
type Cond struct {
	Column string
	Op     Op
	Value  any
	Values []any
}

// Predicate is a conjunction of conditions. An empty predicate matches every row.
type Predicate []Cond

func Eq(column string, v any) Cond { return Cond{Column: column, Op: OpEq, Value: v} }

func Neq(column string, v any) Cond { return Cond{Column: column, Op: OpNeq, Value: v} }

func IsNull(column string) Cond { return Cond{Column: column, Op: OpIsNull} }

func NotNull(column string) Cond { return Cond{Column: column, Op: OpNotNull} }

func Where(conds ...Cond) Predicate { return Predicate(conds) }

// And returns a copy of p extended with c.
func (p Predicate) And(c Cond) Predicate {
	out := make(Predicate, 0, len(p)+1)
	out = append(out, p...)
	return append(out, c)
}

// In builds a membership condition.
func In[T any](column string, vs []T) Cond {
	values := make([]any, len(vs))
	for i, v := range vs {
		values[i] = v
	}
	return Cond{Column: column, Op: OpIn, Values: values}
}

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Query carries optional ordering and limits for Select.
type Query struct {
	OrderBy string
	Dir     Direction
	Limit   int
}

type SelectOption func(*Query)

func Order(column string, dir Direction) SelectOption {
	return func(q *Query) {
		q.OrderBy = column
		q.Dir = dir
	}
}

func Limit(n int) SelectOption {
	return func(q *Query) { q.Limit = n }
}

// BuildQuery applies options in order.
func BuildQuery(opts ...SelectOption) Query {
	var q Query
	for _, opt := range opts {
		opt(&q)
	}
	if q.Dir == "" {
		q.Dir = Asc
	}
	return q
}

// Store is the four-primitive data store. Update and Delete report affected rows.
type Store interface {
	Select(ctx context.Context, collection string, where Predicate, opts ...SelectOption) ([]Row, error)
	Insert(ctx context.Context, collection string, rows []Row) ([]Row, error)
	Update(ctx context.Context, collection string, patch Row, where Predicate) (int, error)
	Delete(ctx context.Context, collection string, where Predicate) (int, error)
}

var (
	ErrUnavailable     = errors.New("store unavailable")
	ErrConflict        = errors.New("store conflict")
	ErrNotFound        = errors.New("not found")
	ErrEmptyMembership = errors.New("membership filter with no values")
	ErrInvalidColumn   = errors.New("invalid column name")
)

// UnavailableError wraps a backend or network failure.
type UnavailableError struct {
	Op         string
	Collection string
	Err        error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Collection, ErrUnavailable, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

func Unavailable(op, collection string, err error) error {
	return &UnavailableError{Op: op, Collection: collection, Err: err}
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidIdent reports whether name is a safe collection or column identifier.
func ValidIdent(name string) bool {
	return identRe.MatchString(name)
}

// Validate checks identifiers and membership conditions before anything reaches a backend.
func Validate(collection string, where Predicate) error {
	if !ValidIdent(collection) {
		return fmt.Errorf("%w: collection %q", ErrInvalidColumn, collection)
	}
	for _, c := range where {
		if !ValidIdent(c.Column) {
			return fmt.Errorf("%w: %q", ErrInvalidColumn, c.Column)
		}
		switch c.Op {
		case OpEq, OpNeq, OpIsNull, OpNotNull:
		case OpIn:
			if len(c.Values) == 0 {
				return fmt.Errorf("%w: %s.%s", ErrEmptyMembership, collection, c.Column)
			}
		default:
			return fmt.Errorf("unsupported operator %q on %s", c.Op, c.Column)
		}
	}
	return nil
}

// ValidateRow checks every key of a patch or inserted row.
func ValidateRow(r Row) error {
	for k := range r {
		if !ValidIdent(k) {
			return fmt.Errorf("%w: %q", ErrInvalidColumn, k)
		}
	}
	return nil
}

// String renders a predicate for logs.
func (p Predicate) String() string {
	parts := make([]string, 0, len(p))
	for _, c := range p {
		switch c.Op {
		case OpIn:
			parts = append(parts, fmt.Sprintf("%s in %v", c.Column, c.Values))
		case OpIsNull, OpNotNull:
			parts = append(parts, fmt.Sprintf("%s %s", c.Column, c.Op))
		default:
			parts = append(parts, fmt.Sprintf("%s %s %v", c.Column, c.Op, c.Value))
		}
	}
	return strings.Join(parts, " and ")
}
