package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRejectsEmptyMembership(t *testing.T) {
	err := Validate("projects", Where(In("id", []string{})))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyMembership))

	require.NoError(t, Validate("projects", Where(In("id", []string{"p1"}))))
}

func TestValidateIdentifiers(t *testing.T) {
	assert.ErrorIs(t, Validate("projects;drop", nil), ErrInvalidColumn)
	assert.ErrorIs(t, Validate("projects", Where(Eq("id = 1 or 1", 1))), ErrInvalidColumn)
	assert.ErrorIs(t, ValidateRow(Row{"Status": "open"}), ErrInvalidColumn)
	assert.NoError(t, ValidateRow(Row{"assigned_to": nil, "updated_at": "x"}))
}

func TestUnavailableErrorMatches(t *testing.T) {
	err := fmt.Errorf("step 1: %w", Unavailable("update", "projects", errors.New("connection reset")))
	assert.True(t, errors.Is(err, ErrUnavailable))
	var ue *UnavailableError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "projects", ue.Collection)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestPredicateAndDoesNotAlias(t *testing.T) {
	base := make(Predicate, 1, 4)
	base[0] = Eq("project_id", "p1")
	a := base.And(Eq("status", "pending"))
	b := base.And(Neq("id", "a1"))
	assert.Equal(t, OpEq, a[1].Op)
	assert.Equal(t, OpNeq, b[1].Op)
	assert.Equal(t, "project_id eq p1 and status eq pending", a.String())
}

func TestBuildQueryDefaults(t *testing.T) {
	q := BuildQuery(Order("created_at", ""), Limit(5))
	assert.Equal(t, Asc, q.Dir)
	assert.Equal(t, 5, q.Limit)
	assert.Equal(t, "created_at", q.OrderBy)
}
