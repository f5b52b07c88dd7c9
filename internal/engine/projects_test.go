package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crewline/internal/engine"
	"crewline/internal/notify"
	"crewline/internal/status"
	"crewline/internal/store/storetest"
)

func TestCreateProjectValidates(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateProject(env.Ctx, engine.CreateProjectOptions{ClientID: client, Title: " "})
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
	_, err = env.Engine.CreateProject(env.Ctx, engine.CreateProjectOptions{ClientID: client, Title: "Deck", Budget: -1})
	assert.ErrorIs(t, err, engine.ErrInvalidInput)

	p, err := env.Engine.CreateProject(env.Ctx, engine.CreateProjectOptions{ClientID: client, Title: " Deck ", Budget: 300})
	require.NoError(t, err)
	assert.Equal(t, "Deck", p.Title)
	assert.Equal(t, status.Open, p.Status)
	assert.Nil(t, p.AssignedTo)
	assert.Equal(t, "2024-01-01T00:00:00Z", p.CreatedAt)
}

func TestApplyRules(t *testing.T) {
	env := newTestEnv(t)
	p, apps := env.openProject(t, pro1)
	assert.Equal(t, []string{notify.KindNewApplication}, env.Sink.kinds(client))

	_, err := env.Engine.Apply(env.Ctx, engine.ApplyOptions{ProjectID: p.ID, ProfessionalID: pro1})
	assert.ErrorIs(t, err, engine.ErrDuplicateApplication)
	_, err = env.Engine.Apply(env.Ctx, engine.ApplyOptions{ProjectID: p.ID, ProfessionalID: client})
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
	_, err = env.Engine.Apply(env.Ctx, engine.ApplyOptions{ProjectID: "missing", ProfessionalID: pro2})
	assert.ErrorIs(t, err, engine.ErrNotFound)

	_, err = env.accept(apps[0].ID)
	require.NoError(t, err)
	_, err = env.Engine.Apply(env.Ctx, engine.ApplyOptions{ProjectID: p.ID, ProfessionalID: pro2})
	assert.ErrorIs(t, err, engine.ErrInvalidTransition)
}

func TestApplyAgainAfterRejection(t *testing.T) {
	env := newTestEnv(t)
	p, apps := env.openProject(t, pro1)
	_, err := env.Engine.Decide(env.Ctx, engine.DecideOptions{ApplicationID: apps[0].ID, Outcome: engine.Reject, ActorID: client})
	require.NoError(t, err)

	again, err := env.Engine.Apply(env.Ctx, engine.ApplyOptions{ProjectID: p.ID, ProfessionalID: pro1, Proposal: "second try"})
	require.NoError(t, err)
	assert.NotEqual(t, apps[0].ID, again.ID)

	all, err := env.Engine.ListApplications(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStartWorkOnlyByAssignee(t *testing.T) {
	env := newTestEnv(t)
	p, apps := env.openProject(t, pro1, pro2)
	_, err := env.accept(apps[0].ID)
	require.NoError(t, err)

	_, err = env.Engine.StartWork(env.Ctx, engine.StartWorkOptions{ProjectID: p.ID, ActorID: pro2})
	assert.ErrorIs(t, err, engine.ErrNotFound)
	got, err := env.Engine.StartWork(env.Ctx, engine.StartWorkOptions{ProjectID: p.ID, ActorID: pro1})
	require.NoError(t, err)
	assert.Equal(t, status.InProgress, got.Status)
	_, err = env.Engine.StartWork(env.Ctx, engine.StartWorkOptions{ProjectID: p.ID, ActorID: pro1})
	assert.ErrorIs(t, err, engine.ErrInvalidTransition)
}

func TestCancelOpenProjectRejectsPending(t *testing.T) {
	env := newTestEnv(t)
	p, apps := env.openProject(t, pro1, pro2)

	_, err := env.Engine.CancelProject(env.Ctx, p.ID, pro1)
	assert.ErrorIs(t, err, engine.ErrNotFound)

	got, err := env.Engine.CancelProject(env.Ctx, p.ID, client)
	require.NoError(t, err)
	assert.Equal(t, status.Cancelled, got.Status)
	assert.Equal(t, status.Rejected, env.appStatus(t, apps[0].ID))
	assert.Equal(t, status.Rejected, env.appStatus(t, apps[1].ID))
	assert.Equal(t, []string{notify.KindProjectCancelled}, env.Sink.kinds(pro2))
}

func TestCancelResumesRejectingPending(t *testing.T) {
	env := newTestEnv(t)
	p, apps := env.openProject(t, pro1, pro2)
	env.Store.FailOn(storetest.Fault{Op: "update", Collection: "applications", Status: "rejected", Nth: 1})

	_, err := env.Engine.CancelProject(env.Ctx, p.ID, client)
	assert.ErrorIs(t, err, engine.ErrStoreUnavailable)
	assert.Equal(t, status.Cancelled, env.project(t, p.ID).Status)
	assert.Equal(t, status.Pending, env.appStatus(t, apps[0].ID))

	_, err = env.Engine.CancelProject(env.Ctx, p.ID, client)
	require.NoError(t, err)
	assert.Equal(t, status.Rejected, env.appStatus(t, apps[0].ID))
	assert.Equal(t, status.Rejected, env.appStatus(t, apps[1].ID))
}

func TestCancelAssignedClearsAssignee(t *testing.T) {
	env := newTestEnv(t)
	p := env.inProgress(t)

	got, err := env.Engine.CancelProject(env.Ctx, p.ID, client)
	require.NoError(t, err)
	assert.Equal(t, status.Cancelled, got.Status)
	assert.Nil(t, got.AssignedTo)
	assert.Contains(t, env.Sink.kinds(pro1), notify.KindProjectCancelled)
}

func TestDisputeByEitherParty(t *testing.T) {
	env := newTestEnv(t)
	p := env.inProgress(t)

	_, err := env.Engine.DisputeProject(env.Ctx, p.ID, pro2)
	assert.ErrorIs(t, err, engine.ErrNotParty)

	got, err := env.Engine.DisputeProject(env.Ctx, p.ID, pro1)
	require.NoError(t, err)
	assert.Equal(t, status.Disputed, got.Status)
	assert.Nil(t, got.AssignedTo)
	assert.Contains(t, env.Sink.kinds(client), notify.KindProjectDisputed)

	_, err = env.Engine.DisputeProject(env.Ctx, p.ID, client)
	assert.ErrorIs(t, err, engine.ErrInvalidTransition)

	got, err = env.Engine.CancelProject(env.Ctx, p.ID, client)
	require.NoError(t, err)
	assert.Equal(t, status.Cancelled, got.Status)
}

func TestListProjectsFilters(t *testing.T) {
	env := newTestEnv(t)
	open, _ := env.openProject(t)
	busy := env.inProgress(t)

	got, err := env.Engine.ListProjects(env.Ctx, engine.ProjectFilter{ClientID: client})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = env.Engine.ListProjects(env.Ctx, engine.ProjectFilter{AssignedTo: pro1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, busy.ID, got[0].ID)

	got, err = env.Engine.ListProjects(env.Ctx, engine.ProjectFilter{Status: status.Open})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, open.ID, got[0].ID)

	_, err = env.Engine.ListProjects(env.Ctx, engine.ProjectFilter{Status: "paused"})
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
}
