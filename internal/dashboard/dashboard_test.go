package dashboard_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crewline/internal/dashboard"
	"crewline/internal/domain"
	"crewline/internal/repo"
	"crewline/internal/status"
	"crewline/internal/store"
	"crewline/internal/store/storetest"
)

type fixture struct {
	faulty *storetest.Faulty
	repo   repo.Repo
	agg    *dashboard.Aggregator
}

func newFixture(t *testing.T, opts dashboard.Options) fixture {
	t.Helper()
	f := storetest.NewFaulty(storetest.NewSQLite(t))
	r := repo.Repo{Store: f}
	return fixture{faulty: f, repo: r, agg: dashboard.New(r, opts, nil)}
}

func (fx fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	pro := "pro-1"
	projects := []domain.Project{
		{ID: "p1", ClientID: "c1", Title: "Deck", Status: status.Open, CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z"},
		{ID: "p2", ClientID: "c1", Title: "Roof", Status: status.InProgress, AssignedTo: &pro, CreatedAt: "2024-01-02T00:00:00Z", UpdatedAt: "2024-01-02T00:00:00Z"},
		{ID: "p3", ClientID: "c2", Title: "Fence", Status: status.Open, CreatedAt: "2024-01-03T00:00:00Z", UpdatedAt: "2024-01-03T00:00:00Z"},
	}
	for _, p := range projects {
		_, err := fx.repo.InsertProject(ctx, p)
		require.NoError(t, err)
	}
	apps := []domain.Application{
		{ID: "a1", ProjectID: "p1", ProfessionalID: "pro-2", Status: status.Pending, CreatedAt: "t1", UpdatedAt: "t1"},
		{ID: "a2", ProjectID: "p2", ProfessionalID: "pro-1", Status: status.Accepted, CreatedAt: "t2", UpdatedAt: "t2"},
		{ID: "a3", ProjectID: "p3", ProfessionalID: "pro-1", Status: status.Pending, CreatedAt: "t3", UpdatedAt: "t3"},
		{ID: "a4", ProjectID: "p3", ProfessionalID: "pro-2", Status: status.Pending, CreatedAt: "t4", UpdatedAt: "t4"},
	}
	for _, a := range apps {
		_, err := fx.repo.InsertApplication(ctx, a)
		require.NoError(t, err)
	}
	_, err := fx.repo.InsertPayment(ctx, domain.Payment{ID: "pay-1", ProjectID: "p2", ClientID: "c1", ProfessionalID: &pro, Amount: 250, Status: "held", CreatedAt: "t"})
	require.NoError(t, err)
	fx.faulty.Reset()
}

func ids[T any](items []T, id func(T) string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, id(it))
	}
	return out
}

func TestClientSnapshot(t *testing.T) {
	fx := newFixture(t, dashboard.Options{})
	fx.seed(t)

	snap, err := fx.agg.LoadSnapshot(context.Background(), "c1", domain.RoleClient)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p1", "p2"}, ids(snap.Projects, func(p domain.Project) string { return p.ID }))
	assert.ElementsMatch(t, []string{"a1", "a2"}, ids(snap.Applications, func(a domain.Application) string { return a.ID }))
	assert.Len(t, snap.Payments, 1)
	assert.NotNil(t, snap.Reviews)
	assert.Empty(t, snap.Reviews)
}

func TestProfessionalSnapshotIsNarrowedToOwnApplications(t *testing.T) {
	fx := newFixture(t, dashboard.Options{})
	fx.seed(t)

	snap, err := fx.agg.LoadSnapshot(context.Background(), "pro-1", domain.RoleProfessional)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p2", "p3"}, ids(snap.Projects, func(p domain.Project) string { return p.ID }))
	assert.ElementsMatch(t, []string{"a2", "a3"}, ids(snap.Applications, func(a domain.Application) string { return a.ID }))
	assert.Len(t, snap.Payments, 1)
}

func TestEmptyProjectSetShortCircuits(t *testing.T) {
	fx := newFixture(t, dashboard.Options{})
	fx.seed(t)

	snap, err := fx.agg.LoadSnapshot(context.Background(), "nobody", domain.RoleClient)
	require.NoError(t, err)
	assert.NotNil(t, snap.Projects)
	assert.NotNil(t, snap.Applications)
	assert.NotNil(t, snap.Payments)
	assert.NotNil(t, snap.Reviews)
	assert.Equal(t, 1, fx.faulty.Count("", ""), "only the project fetch should run")

	fx.faulty.Reset()
	_, err = fx.agg.LoadSnapshot(context.Background(), "nobody", domain.RoleProfessional)
	require.NoError(t, err)
	assert.Zero(t, fx.faulty.Count("select", repo.Payments))
	assert.Zero(t, fx.faulty.Count("select", repo.Reviews))
	for _, c := range fx.faulty.Calls() {
		for _, cond := range c.Where {
			assert.NotEqual(t, store.OpIn, cond.Op, "no membership filter for an empty id set")
		}
	}
}

func TestLoadFailsAtomically(t *testing.T) {
	fx := newFixture(t, dashboard.Options{})
	fx.seed(t)
	fx.faulty.FailOn(storetest.Fault{Op: "select", Collection: repo.Reviews})

	snap, err := fx.agg.LoadSnapshot(context.Background(), "c1", domain.RoleClient)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrUnavailable))
	assert.Nil(t, snap.Projects)
	assert.Nil(t, snap.Payments)
}

func TestUnknownRole(t *testing.T) {
	fx := newFixture(t, dashboard.Options{})
	_, err := fx.agg.LoadSnapshot(context.Background(), "c1", domain.RoleAdmin)
	assert.ErrorIs(t, err, dashboard.ErrInvalidRole)
}

func TestCacheAndInvalidate(t *testing.T) {
	fx := newFixture(t, dashboard.Options{CacheSize: 16, CacheTTL: time.Minute})
	fx.seed(t)
	ctx := context.Background()

	_, err := fx.agg.LoadSnapshot(ctx, "c1", domain.RoleClient)
	require.NoError(t, err)
	first := fx.faulty.Count("select", "")
	_, err = fx.agg.LoadSnapshot(ctx, "c1", domain.RoleClient)
	require.NoError(t, err)
	assert.Equal(t, first, fx.faulty.Count("select", ""), "second load should be served from cache")

	fx.agg.Invalidate("c1")
	_, err = fx.agg.LoadSnapshot(ctx, "c1", domain.RoleClient)
	require.NoError(t, err)
	assert.Equal(t, 2*first, fx.faulty.Count("select", ""))

	_, err = fx.agg.Refresh(ctx, "c1", domain.RoleClient)
	require.NoError(t, err)
	assert.Equal(t, 3*first, fx.faulty.Count("select", ""))
}

func TestCachedSnapshotIsNotAliased(t *testing.T) {
	fx := newFixture(t, dashboard.Options{CacheSize: 16, CacheTTL: time.Minute})
	fx.seed(t)
	ctx := context.Background()

	fresh, err := fx.agg.LoadSnapshot(ctx, "c1", domain.RoleClient)
	require.NoError(t, err)
	require.NotEmpty(t, fresh.Projects)
	want := fresh.Projects[0].Title
	fresh.Projects[0].Title = "mutated"

	hit, err := fx.agg.LoadSnapshot(ctx, "c1", domain.RoleClient)
	require.NoError(t, err)
	assert.Equal(t, want, hit.Projects[0].Title)
	hit.Projects[0].Title = "mutated again"

	again, err := fx.agg.LoadSnapshot(ctx, "c1", domain.RoleClient)
	require.NoError(t, err)
	assert.Equal(t, want, again.Projects[0].Title)
}
