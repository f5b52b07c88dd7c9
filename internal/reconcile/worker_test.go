package reconcile_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crewline/internal/config"
	"crewline/internal/engine"
	"crewline/internal/reconcile"
	"crewline/internal/status"
	"crewline/internal/store/storetest"
)

func TestRunOnceRepairsInterruptedAccepts(t *testing.T) {
	ctx := context.Background()
	faulty := storetest.NewFaulty(storetest.NewSQLite(t))
	eng := engine.New(faulty, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

	p, err := eng.CreateProject(ctx, engine.CreateProjectOptions{ClientID: "c1", Title: "Garage"})
	require.NoError(t, err)
	a1, err := eng.Apply(ctx, engine.ApplyOptions{ProjectID: p.ID, ProfessionalID: "pro-1"})
	require.NoError(t, err)
	a2, err := eng.Apply(ctx, engine.ApplyOptions{ProjectID: p.ID, ProfessionalID: "pro-2"})
	require.NoError(t, err)
	// an untouched open project is not a candidate
	_, err = eng.CreateProject(ctx, engine.CreateProjectOptions{ClientID: "c1", Title: "Shed"})
	require.NoError(t, err)

	faulty.FailOn(storetest.Fault{Op: "update", Collection: "applications", Status: "accepted", Nth: 1})
	_, err = eng.Decide(ctx, engine.DecideOptions{ApplicationID: a1.ID, Outcome: engine.Accept, ActorID: "c1"})
	require.Error(t, err)

	w := &reconcile.Worker{Engine: eng, Schedule: "@every 1h"}
	sum, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Checked)
	require.Len(t, sum.Repaired, 1)
	assert.Equal(t, []string{"accept_application"}, sum.Repaired[0].Steps)

	got, err := eng.Repo.GetApplication(ctx, a1.ID)
	require.NoError(t, err)
	assert.Equal(t, status.Accepted, got.Status)
	got, err = eng.Repo.GetApplication(ctx, a2.ID)
	require.NoError(t, err)
	assert.Equal(t, status.Rejected, got.Status)

	sum, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, sum.Repaired)
}

func TestRunOnceCountsFailures(t *testing.T) {
	ctx := context.Background()
	faulty := storetest.NewFaulty(storetest.NewSQLite(t))
	eng := engine.New(faulty, config.Default())
	p, err := eng.CreateProject(ctx, engine.CreateProjectOptions{ClientID: "c1", Title: "Garage"})
	require.NoError(t, err)
	a, err := eng.Apply(ctx, engine.ApplyOptions{ProjectID: p.ID, ProfessionalID: "pro-1"})
	require.NoError(t, err)
	faulty.FailOn(storetest.Fault{Op: "update", Collection: "applications", Status: "accepted", Nth: 1})
	_, err = eng.Decide(ctx, engine.DecideOptions{ApplicationID: a.ID, Outcome: engine.Accept, ActorID: "c1"})
	require.Error(t, err)

	faulty.FailOn(storetest.Fault{Op: "update", Collection: "applications", Status: "accepted"})
	w := &reconcile.Worker{Engine: eng}
	sum, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Empty(t, sum.Repaired)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	w := &reconcile.Worker{Schedule: "whenever"}
	assert.Error(t, w.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w = &reconcile.Worker{Schedule: "*/5 * * * *"}
	assert.NoError(t, w.Start(ctx))
}
