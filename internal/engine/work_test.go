package engine_test

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crewline/internal/domain"
	"crewline/internal/engine"
	"crewline/internal/notify"
	"crewline/internal/status"
	"crewline/internal/store"
	"crewline/internal/store/storetest"
)

// inProgress returns a project assigned to pro1 with work started.
func (env testEnv) inProgress(t *testing.T) domain.Project {
	t.Helper()
	p, apps := env.openProject(t, pro1, pro2)
	_, err := env.accept(apps[0].ID)
	require.NoError(t, err)
	p, err = env.Engine.StartWork(env.Ctx, engine.StartWorkOptions{ProjectID: p.ID, ActorID: pro1})
	require.NoError(t, err)
	require.Equal(t, status.InProgress, p.Status)
	return p
}

func (env testEnv) submit(t *testing.T, projectID string) domain.Project {
	t.Helper()
	p, err := env.Engine.SubmitWork(env.Ctx, engine.SubmitWorkOptions{ProjectID: projectID, ActorID: pro1, ArtifactRef: "s3://deliveries/v1.zip"})
	require.NoError(t, err)
	return p
}

func TestWorkReviewCycle(t *testing.T) {
	env := newTestEnv(t)
	p := env.inProgress(t)

	p = env.submit(t, p.ID)
	assert.Equal(t, status.WorkSubmitted, p.Status)
	require.NotNil(t, p.WorkState)
	assert.Equal(t, status.WorkPendingReview, *p.WorkState)
	require.NotNil(t, p.WorkArtifact)
	assert.Equal(t, "s3://deliveries/v1.zip", *p.WorkArtifact)
	assert.Contains(t, env.Sink.kinds(client), notify.KindWorkSubmitted)

	p, err := env.Engine.RequestRevision(env.Ctx, engine.RevisionOptions{ProjectID: p.ID, ActorID: client, Notes: "Tiles are crooked"})
	require.NoError(t, err)
	assert.Equal(t, status.WorkRevisionRequested, p.Status)
	require.NotNil(t, p.RevisionNotes)
	assert.Equal(t, "Tiles are crooked", *p.RevisionNotes)
	assert.Contains(t, env.Sink.kinds(pro1), notify.KindRevisionRequested)

	p = env.submit(t, p.ID)
	assert.Equal(t, status.WorkSubmitted, p.Status)
	assert.Nil(t, p.RevisionNotes, "resubmission clears revision notes")

	p, err = env.Engine.ApproveWork(env.Ctx, engine.ApproveOptions{ProjectID: p.ID, ActorID: client})
	require.NoError(t, err)
	assert.Equal(t, status.Completed, p.Status)
	require.NotNil(t, p.WorkState)
	assert.Equal(t, status.WorkApprovedState, *p.WorkState)
	assert.NotNil(t, p.CompletedAt)
	assert.Contains(t, env.Sink.kinds(pro1), notify.KindWorkApproved)
	assert.Contains(t, env.Sink.kinds(pro1), notify.KindProjectCompleted)
}

func TestSubmitWorkRequiresAssigneeAndArtifact(t *testing.T) {
	env := newTestEnv(t)
	p := env.inProgress(t)

	_, err := env.Engine.SubmitWork(env.Ctx, engine.SubmitWorkOptions{ProjectID: p.ID, ActorID: pro1, ArtifactRef: "  "})
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
	_, err = env.Engine.SubmitWork(env.Ctx, engine.SubmitWorkOptions{ProjectID: p.ID, ActorID: pro2, ArtifactRef: "x"})
	assert.ErrorIs(t, err, engine.ErrNotFound)
	_, err = env.Engine.SubmitWork(env.Ctx, engine.SubmitWorkOptions{ProjectID: p.ID, ActorID: client, ArtifactRef: "x"})
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestSubmitWorkBeforeStartIsInvalid(t *testing.T) {
	env := newTestEnv(t)
	p, apps := env.openProject(t, pro1)
	_, err := env.accept(apps[0].ID)
	require.NoError(t, err)
	env.Store.Reset()

	_, err = env.Engine.SubmitWork(env.Ctx, engine.SubmitWorkOptions{ProjectID: p.ID, ActorID: pro1, ArtifactRef: "x"})
	assert.ErrorIs(t, err, engine.ErrInvalidTransition)
	assert.Zero(t, env.Store.Count("update", ""))
}

func TestRequestRevisionValidatesNotesBeforeReading(t *testing.T) {
	env := newTestEnv(t)
	p := env.submit(t, env.inProgress(t).ID)
	env.Store.Reset()

	_, err := env.Engine.RequestRevision(env.Ctx, engine.RevisionOptions{ProjectID: p.ID, ActorID: client, Notes: ""})
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
	assert.Empty(t, env.Store.Calls())

	_, err = env.Engine.RequestRevision(env.Ctx, engine.RevisionOptions{ProjectID: p.ID, ActorID: pro1, Notes: "redo"})
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestApproveWorkResumesFromApproved(t *testing.T) {
	env := newTestEnv(t)
	p := env.submit(t, env.inProgress(t).ID)
	env.Store.FailOn(storetest.Fault{Op: "update", Collection: "projects", Status: "completed", Nth: 1})

	_, err := env.Engine.ApproveWork(env.Ctx, engine.ApproveOptions{ProjectID: p.ID, ActorID: client})
	assert.ErrorIs(t, err, engine.ErrStoreUnavailable)
	assert.Equal(t, status.WorkApproved, env.project(t, p.ID).Status)

	p, err = env.Engine.ApproveWork(env.Ctx, engine.ApproveOptions{ProjectID: p.ID, ActorID: client})
	require.NoError(t, err)
	assert.Equal(t, status.Completed, p.Status)

	_, err = env.Engine.ApproveWork(env.Ctx, engine.ApproveOptions{ProjectID: p.ID, ActorID: client})
	assert.ErrorIs(t, err, engine.ErrInvalidTransition)
}

func TestRequestRevisionOnDisputedProject(t *testing.T) {
	env := newTestEnv(t)
	p := env.submit(t, env.inProgress(t).ID)
	_, err := env.Engine.DisputeProject(env.Ctx, p.ID, pro1)
	require.NoError(t, err)

	_, err = env.Engine.RequestRevision(env.Ctx, engine.RevisionOptions{ProjectID: p.ID, ActorID: client, Notes: "redo"})
	assert.ErrorIs(t, err, engine.ErrInvalidTransition)
	assert.Equal(t, status.Disputed, env.project(t, p.ID).Status)
}

func TestCoordinatorsRejectStatusesOutsideTheirEdges(t *testing.T) {
	ops := []struct {
		name    string
		allowed []status.ProjectStatus
		run     func(env testEnv, projectID string) error
	}{
		{
			name:    "start",
			allowed: []status.ProjectStatus{status.Assigned},
			run: func(env testEnv, id string) error {
				_, err := env.Engine.StartWork(env.Ctx, engine.StartWorkOptions{ProjectID: id, ActorID: pro1})
				return err
			},
		},
		{
			name:    "submit",
			allowed: []status.ProjectStatus{status.InProgress, status.WorkRevisionRequested},
			run: func(env testEnv, id string) error {
				_, err := env.Engine.SubmitWork(env.Ctx, engine.SubmitWorkOptions{ProjectID: id, ActorID: pro1, ArtifactRef: "x"})
				return err
			},
		},
		{
			name:    "revise",
			allowed: []status.ProjectStatus{status.WorkSubmitted},
			run: func(env testEnv, id string) error {
				_, err := env.Engine.RequestRevision(env.Ctx, engine.RevisionOptions{ProjectID: id, ActorID: client, Notes: "again"})
				return err
			},
		},
		{
			name:    "approve",
			allowed: []status.ProjectStatus{status.WorkSubmitted, status.WorkApproved},
			run: func(env testEnv, id string) error {
				_, err := env.Engine.ApproveWork(env.Ctx, engine.ApproveOptions{ProjectID: id, ActorID: client})
				return err
			},
		},
	}
	for _, op := range ops {
		for _, from := range status.ProjectStatuses() {
			if slices.Contains(op.allowed, from) {
				continue
			}
			t.Run(op.name+"/"+string(from), func(t *testing.T) {
				env := newTestEnv(t)
				p, _ := env.openProject(t)
				_, err := env.Engine.Repo.UpdateProjects(env.Ctx, store.Row{"status": string(from), "assigned_to": pro1}, store.Where(store.Eq("id", p.ID)))
				require.NoError(t, err)
				env.Store.Reset()

				err = op.run(env, p.ID)
				assert.ErrorIs(t, err, engine.ErrInvalidTransition)
				assert.Zero(t, env.Store.Count("update", ""), "no writes from %s", from)
				assert.Zero(t, env.Store.Count("insert", ""), "no inserts from %s", from)
				assert.Equal(t, from, env.project(t, p.ID).Status)
			})
		}
	}
}
