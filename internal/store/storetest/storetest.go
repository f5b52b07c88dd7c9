// Package storetest provides store fixtures for tests: a migrated sqlite
// store and a wrapper that records calls and injects failures.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"crewline/internal/db"
	"crewline/internal/migrate"
	"crewline/internal/store"
	"crewline/internal/store/sqlstore"
)

// NewSQLite returns a store over a freshly migrated database in t.TempDir().
func NewSQLite(t testing.TB) sqlstore.Store {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return sqlstore.New(conn)
}

// Call is one recorded store invocation.
type Call struct {
	Op         string
	Collection string
	Where      store.Predicate
	Patch      store.Row
}

func (c Call) String() string {
	return fmt.Sprintf("%s %s", c.Op, c.Collection)
}

// Fault selects which call fails. A zero field matches anything; Nth counts
// matching calls from 1, and zero means every matching call.
type Fault struct {
	Op         string
	Collection string
	Nth        int
	Err        error
	// Status restricts update faults to patches that set this status.
	Status string
	seen   int
}

// Faulty wraps a store, records every call and fails the ones matching its faults.
type Faulty struct {
	Inner store.Store

	mu     sync.Mutex
	calls  []Call
	faults []*Fault
}

var _ store.Store = (*Faulty)(nil)

func NewFaulty(inner store.Store) *Faulty {
	return &Faulty{Inner: inner}
}

// FailOn registers a fault; when err is nil store.ErrUnavailable is used.
func (f *Faulty) FailOn(fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fault.Err == nil {
		fault.Err = store.Unavailable(fault.Op, fault.Collection, fmt.Errorf("injected fault"))
	}
	f.faults = append(f.faults, &fault)
}

// Reset clears faults and recorded calls.
func (f *Faulty) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
	f.faults = nil
}

func (f *Faulty) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Count returns how many recorded calls match op and collection ("" matches all).
func (f *Faulty) Count(op, collection string) int {
	n := 0
	for _, c := range f.Calls() {
		if (op == "" || c.Op == op) && (collection == "" || c.Collection == collection) {
			n++
		}
	}
	return n
}

func (f *Faulty) record(c Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	for _, fault := range f.faults {
		if fault.Op != "" && fault.Op != c.Op {
			continue
		}
		if fault.Collection != "" && fault.Collection != c.Collection {
			continue
		}
		if fault.Status != "" {
			if s, _ := c.Patch["status"].(string); s != fault.Status {
				continue
			}
		}
		fault.seen++
		if fault.Nth == 0 || fault.Nth == fault.seen {
			return fault.Err
		}
	}
	return nil
}

func (f *Faulty) Select(ctx context.Context, collection string, where store.Predicate, opts ...store.SelectOption) ([]store.Row, error) {
	if err := f.record(Call{Op: "select", Collection: collection, Where: where}); err != nil {
		return nil, err
	}
	return f.Inner.Select(ctx, collection, where, opts...)
}

func (f *Faulty) Insert(ctx context.Context, collection string, rows []store.Row) ([]store.Row, error) {
	if err := f.record(Call{Op: "insert", Collection: collection}); err != nil {
		return nil, err
	}
	return f.Inner.Insert(ctx, collection, rows)
}

func (f *Faulty) Update(ctx context.Context, collection string, patch store.Row, where store.Predicate) (int, error) {
	if err := f.record(Call{Op: "update", Collection: collection, Where: where, Patch: patch}); err != nil {
		return 0, err
	}
	return f.Inner.Update(ctx, collection, patch, where)
}

func (f *Faulty) Delete(ctx context.Context, collection string, where store.Predicate) (int, error) {
	if err := f.record(Call{Op: "delete", Collection: collection, Where: where}); err != nil {
		return 0, err
	}
	return f.Inner.Delete(ctx, collection, where)
}
