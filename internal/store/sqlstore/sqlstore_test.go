package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"crewline/internal/store"
	"crewline/internal/store/sqlstore"
)

func newMock(t *testing.T) (sqlstore.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlstore.New(db), mock
}

func TestUpdateBuildsSortedConditionalStatement(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("UPDATE projects SET assigned_to=?,status=?,updated_at=? WHERE id=? AND status=?").
		WithArgs("pro-1", "assigned", "2024-01-01T00:00:00Z", "p1", "open").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := s.Update(context.Background(), "projects", store.Row{
		"status":      "assigned",
		"updated_at":  "2024-01-01T00:00:00Z",
		"assigned_to": "pro-1",
	}, store.Where(store.Eq("id", "p1"), store.Eq("status", "open")))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchRejectShape(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("UPDATE applications SET status=?,updated_at=? WHERE project_id=? AND status=? AND id<>?").
		WithArgs("rejected", "t", "p1", "pending", "a1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := s.Update(context.Background(), "applications", store.Row{"status": "rejected", "updated_at": "t"},
		store.Where(store.Eq("project_id", "p1"), store.Eq("status", "pending"), store.Neq("id", "a1")))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectMembershipOrderLimit(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("SELECT * FROM payments WHERE project_id IN (?,?) ORDER BY created_at DESC LIMIT 10").
		WithArgs("p1", "p2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "project_id", "amount"}).
			AddRow("pay-1", "p1", 12.5).
			AddRow("pay-2", []byte("p2"), 3.0))

	rows, err := s.Select(context.Background(), "payments",
		store.Where(store.In("project_id", []string{"p1", "p2"})),
		store.Order("created_at", store.Desc), store.Limit(10))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "p2", rows[1]["project_id"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEmptyMembershipNeverReachesDatabase(t *testing.T) {
	s, mock := newMock(t)
	_, err := s.Select(context.Background(), "payments", store.Where(store.In("project_id", []string{})))
	assert.ErrorIs(t, err, store.ErrEmptyMembership)
	_, err = s.Update(context.Background(), "applications", store.Row{"status": "rejected"}, store.Where(store.In("id", []string(nil))))
	assert.ErrorIs(t, err, store.ErrEmptyMembership)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverErrorsAreUnavailable(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("DELETE FROM notifications WHERE user_id=?").
		WithArgs("u1").
		WillReturnError(errors.New("database is locked"))
	_, err := s.Delete(context.Background(), "notifications", store.Where(store.Eq("user_id", "u1")))
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "s.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`CREATE TABLE reviews(id TEXT PRIMARY KEY, project_id TEXT NOT NULL, reviewer_role TEXT NOT NULL, rating INTEGER NOT NULL, comment TEXT, UNIQUE(project_id, reviewer_role))`)
	require.NoError(t, err)
	return db
}

func TestSQLiteRoundTripAndConflict(t *testing.T) {
	s := sqlstore.New(openSQLite(t))
	ctx := context.Background()

	inserted, err := s.Insert(ctx, "reviews", []store.Row{
		{"id": "r1", "project_id": "p1", "reviewer_role": "client", "rating": 5, "comment": "great"},
		{"id": "r2", "project_id": "p1", "reviewer_role": "professional", "rating": 4},
	})
	require.NoError(t, err)
	require.Len(t, inserted, 2)
	assert.Nil(t, inserted[1]["comment"])

	_, err = s.Insert(ctx, "reviews", []store.Row{{"id": "r3", "project_id": "p1", "reviewer_role": "client", "rating": 1}})
	assert.ErrorIs(t, err, store.ErrConflict)

	rows, err := s.Select(ctx, "reviews", store.Where(store.Eq("project_id", "p1"), store.IsNull("comment")))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "r2", rows[0]["id"])

	n, err := s.Update(ctx, "reviews", store.Row{"comment": "ok"}, store.Where(store.Eq("id", "r2"), store.IsNull("comment")))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.Update(ctx, "reviews", store.Row{"comment": "again"}, store.Where(store.Eq("id", "r2"), store.IsNull("comment")))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = s.Delete(ctx, "reviews", store.Where(store.In("id", []string{"r1", "r2"})))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
