package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"crewline/internal/domain"
	"crewline/internal/events"
	"crewline/internal/notify"
	"crewline/internal/status"
	"crewline/internal/store"
)

type SubmitWorkOptions struct {
	ProjectID   string
	ActorID     string
	ArtifactRef string
}

// SubmitWork records a delivery by the assigned professional.
func (e Engine) SubmitWork(ctx context.Context, opts SubmitWorkOptions) (p domain.Project, err error) {
	started := time.Now()
	defer func() { e.observe("submit_work", err, false, started) }()

	artifact := strings.TrimSpace(opts.ArtifactRef)
	if artifact == "" {
		return domain.Project{}, invalidInput("artifact reference is required")
	}
	project, err := e.Repo.FindProject(ctx, store.Where(
		store.Eq("id", opts.ProjectID),
		store.Eq("assigned_to", opts.ActorID),
	))
	if err != nil {
		return domain.Project{}, fmt.Errorf("project %s: %w", opts.ProjectID, err)
	}
	if project.Status != status.InProgress && project.Status != status.WorkRevisionRequested {
		return project, status.TransitionError{Entity: "project", From: string(project.Status), To: string(status.WorkSubmitted)}
	}
	now := e.timestamp()
	project, err = e.transitionProject(ctx, project, status.WorkSubmitted, store.Row{
		"work_state":        string(status.WorkPendingReview),
		"work_artifact":     artifact,
		"work_submitted_at": now,
		"revision_notes":    nil,
	}, store.Eq("assigned_to", opts.ActorID))
	if err != nil {
		return project, err
	}

	e.emit(ctx, events.WorkSubmitted, project.ID, "project", project.ID, opts.ActorID, events.EventPayload{"artifact_ref": artifact})
	e.notify(ctx, notify.Notification{
		UserID:    project.ClientID,
		Title:     "Work submitted",
		Message:   fmt.Sprintf("New work was delivered for %q and is waiting for your review.", projectTitle(project)),
		Kind:      notify.KindWorkSubmitted,
		ProjectID: project.ID,
	})
	e.invalidate(project.ClientID, opts.ActorID)
	e.log().WithFields(logrus.Fields{"operation": "submit_work", "project_id": project.ID}).Info("work submitted")
	return project, nil
}

type RevisionOptions struct {
	ProjectID string
	ActorID   string
	Notes     string
}

// RequestRevision sends submitted work back to the professional with notes.
func (e Engine) RequestRevision(ctx context.Context, opts RevisionOptions) (p domain.Project, err error) {
	started := time.Now()
	defer func() { e.observe("request_revision", err, false, started) }()

	notes := strings.TrimSpace(opts.Notes)
	if notes == "" {
		return domain.Project{}, invalidInput("revision notes are required")
	}
	project, err := e.Repo.FindProject(ctx, store.Where(
		store.Eq("id", opts.ProjectID),
		store.Eq("client_id", opts.ActorID),
	))
	if err != nil {
		return domain.Project{}, fmt.Errorf("project %s: %w", opts.ProjectID, err)
	}
	if project.Status != status.WorkSubmitted {
		return project, status.TransitionError{Entity: "project", From: string(project.Status), To: string(status.WorkRevisionRequested)}
	}
	project, err = e.transitionProject(ctx, project, status.WorkRevisionRequested, store.Row{
		"work_state":       string(status.WorkRevisionState),
		"revision_notes":   notes,
		"work_reviewed_at": e.timestamp(),
	})
	if err != nil {
		return project, err
	}

	e.emit(ctx, events.WorkRevisionRequested, project.ID, "project", project.ID, opts.ActorID, events.EventPayload{"notes": notes})
	e.notify(ctx, notify.Notification{
		UserID:    project.Assignee(),
		Title:     "Revision requested",
		Message:   fmt.Sprintf("The client asked for changes on %q: %s", projectTitle(project), notes),
		Kind:      notify.KindRevisionRequested,
		ProjectID: project.ID,
	})
	e.invalidate(opts.ActorID, project.Assignee())
	return project, nil
}

type ApproveOptions struct {
	ProjectID string
	ActorID   string
}

// ApproveWork approves the delivery and completes the project. A project left
// in work_approved by an earlier run is moved on to completed.
func (e Engine) ApproveWork(ctx context.Context, opts ApproveOptions) (p domain.Project, err error) {
	started := time.Now()
	resumed := false
	defer func() { e.observe("approve_work", err, resumed, started) }()

	project, err := e.Repo.FindProject(ctx, store.Where(
		store.Eq("id", opts.ProjectID),
		store.Eq("client_id", opts.ActorID),
	))
	if err != nil {
		return domain.Project{}, fmt.Errorf("project %s: %w", opts.ProjectID, err)
	}
	switch project.Status {
	case status.WorkSubmitted:
		project, err = e.transitionProject(ctx, project, status.WorkApproved, store.Row{
			"work_state":       string(status.WorkApprovedState),
			"work_reviewed_at": e.timestamp(),
		})
		if err != nil {
			return project, err
		}
		e.emit(ctx, events.WorkApproved, project.ID, "project", project.ID, opts.ActorID, nil)
		e.notify(ctx, notify.Notification{
			UserID:    project.Assignee(),
			Title:     "Work approved",
			Message:   fmt.Sprintf("Your delivery for %q was approved.", projectTitle(project)),
			Kind:      notify.KindWorkApproved,
			ProjectID: project.ID,
		})
	case status.WorkApproved:
		resumed = true
	default:
		return project, status.TransitionError{Entity: "project", From: string(project.Status), To: string(status.WorkApproved)}
	}

	project, err = e.complete(ctx, project, opts.ActorID)
	if err != nil {
		return project, err
	}
	e.invalidate(opts.ActorID, project.Assignee())
	return project, nil
}

// complete moves a work_approved project to completed.
func (e Engine) complete(ctx context.Context, project domain.Project, actorID string) (domain.Project, error) {
	project, err := e.transitionProject(ctx, project, status.Completed, store.Row{"completed_at": e.timestamp()})
	if err != nil {
		return project, err
	}
	e.emit(ctx, events.ProjectCompleted, project.ID, "project", project.ID, actorID, nil)
	e.notify(ctx, notify.Notification{
		UserID:    project.Assignee(),
		Title:     "Project completed",
		Message:   fmt.Sprintf("%q is complete. You can now leave a review.", projectTitle(project)),
		Kind:      notify.KindProjectCompleted,
		ProjectID: project.ID,
	})
	return project, nil
}
