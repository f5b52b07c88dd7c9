package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"crewline/internal/domain"
	"crewline/internal/events"
	"crewline/internal/notify"
	"crewline/internal/status"
	"crewline/internal/store"
)

type CreateProjectOptions struct {
	ClientID    string
	Title       string
	Description string
	Budget      float64
}

func (e Engine) CreateProject(ctx context.Context, opts CreateProjectOptions) (p domain.Project, err error) {
	started := time.Now()
	defer func() { e.observe("create_project", err, false, started) }()

	title := strings.TrimSpace(opts.Title)
	if opts.ClientID == "" || title == "" {
		return domain.Project{}, invalidInput("client and title are required")
	}
	if opts.Budget < 0 {
		return domain.Project{}, invalidInput("budget must not be negative")
	}
	now := e.timestamp()
	p, err = e.Repo.InsertProject(ctx, domain.Project{
		ID:          uuid.NewString(),
		ClientID:    opts.ClientID,
		Title:       title,
		Description: strings.TrimSpace(opts.Description),
		Budget:      opts.Budget,
		Status:      status.Open,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	e.emit(ctx, events.ProjectCreated, p.ID, "project", p.ID, opts.ClientID, events.EventPayload{"title": p.Title})
	e.invalidate(opts.ClientID)
	return p, nil
}

type ApplyOptions struct {
	ProjectID      string
	ProfessionalID string
	Proposal       string
}

// Apply files a pending application. A professional holds at most one live
// (pending or accepted) application per project.
func (e Engine) Apply(ctx context.Context, opts ApplyOptions) (a domain.Application, err error) {
	started := time.Now()
	defer func() { e.observe("apply", err, false, started) }()

	if opts.ProjectID == "" || opts.ProfessionalID == "" {
		return domain.Application{}, invalidInput("project and professional are required")
	}
	project, err := e.Repo.GetProject(ctx, opts.ProjectID)
	if err != nil {
		return domain.Application{}, fmt.Errorf("project %s: %w", opts.ProjectID, err)
	}
	if project.Status != status.Open {
		return domain.Application{}, fmt.Errorf("apply to project in %s: %w", project.Status, ErrInvalidTransition)
	}
	if project.ClientID == opts.ProfessionalID {
		return domain.Application{}, invalidInput("a client cannot apply to their own project")
	}
	live, err := e.Repo.ListApplications(ctx, store.Where(
		store.Eq("project_id", project.ID),
		store.Eq("professional_id", opts.ProfessionalID),
		store.In("status", []string{string(status.Pending), string(status.Accepted)}),
	), store.Limit(1))
	if err != nil {
		return domain.Application{}, fmt.Errorf("check existing application: %w", err)
	}
	if len(live) > 0 {
		return live[0], ErrDuplicateApplication
	}
	now := e.timestamp()
	a, err = e.Repo.InsertApplication(ctx, domain.Application{
		ID:             uuid.NewString(),
		ProjectID:      project.ID,
		ProfessionalID: opts.ProfessionalID,
		Status:         status.Pending,
		Proposal:       strings.TrimSpace(opts.Proposal),
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if errors.Is(err, store.ErrConflict) {
		return domain.Application{}, ErrDuplicateApplication
	}
	if err != nil {
		return domain.Application{}, fmt.Errorf("insert application: %w", err)
	}
	e.emit(ctx, events.ApplicationCreated, project.ID, "application", a.ID, opts.ProfessionalID, nil)
	e.notify(ctx, notify.Notification{
		UserID:    project.ClientID,
		Title:     "New application",
		Message:   fmt.Sprintf("A professional applied to %q.", projectTitle(project)),
		Kind:      notify.KindNewApplication,
		ProjectID: project.ID,
	})
	e.invalidate(project.ClientID, opts.ProfessionalID)
	return a, nil
}

type StartWorkOptions struct {
	ProjectID string
	ActorID   string
}

// StartWork is called by the assigned professional. An acceptance left
// half applied is completed before the project moves to in_progress.
func (e Engine) StartWork(ctx context.Context, opts StartWorkOptions) (p domain.Project, err error) {
	started := time.Now()
	defer func() { e.observe("start_work", err, false, started) }()

	project, err := e.Repo.FindProject(ctx, store.Where(
		store.Eq("id", opts.ProjectID),
		store.Eq("assigned_to", opts.ActorID),
	))
	if err != nil {
		return domain.Project{}, fmt.Errorf("project %s: %w", opts.ProjectID, err)
	}
	if project.Status == status.Assigned {
		done, err := e.finishAcceptance(ctx, project)
		if err != nil {
			return project, fmt.Errorf("complete acceptance: %w", err)
		}
		if done.Issue != "" {
			return project, fmt.Errorf("%w: %s", ErrInvalidTransition, done.Issue)
		}
	}
	project, err = e.transitionProject(ctx, project, status.InProgress, nil, store.Eq("assigned_to", opts.ActorID))
	if err != nil {
		return project, err
	}
	e.emit(ctx, events.ProjectStarted, project.ID, "project", project.ID, opts.ActorID, nil)
	e.notify(ctx, notify.Notification{
		UserID:    project.ClientID,
		Title:     "Work started",
		Message:   fmt.Sprintf("Work on %q has started.", projectTitle(project)),
		Kind:      notify.KindWorkStarted,
		ProjectID: project.ID,
	})
	e.invalidate(project.ClientID, opts.ActorID)
	return project, nil
}

// CancelProject is restricted to the project's client. Pending applications
// of an open project are rejected after the project is cancelled; calling it
// again on a cancelled project sweeps any that an interrupted run left pending.
func (e Engine) CancelProject(ctx context.Context, projectID, actorID string) (p domain.Project, err error) {
	started := time.Now()
	defer func() { e.observe("cancel_project", err, false, started) }()

	project, err := e.Repo.FindProject(ctx, store.Where(
		store.Eq("id", projectID),
		store.Eq("client_id", actorID),
	))
	if err != nil {
		return domain.Project{}, fmt.Errorf("project %s: %w", projectID, err)
	}
	// A cancelled project is re-entered only to finish rejecting applications.
	resumed := project.Status == status.Cancelled
	sweep := resumed || project.Status == status.Open
	assignee := project.Assignee()
	if !resumed {
		project, err = e.transitionProject(ctx, project, status.Cancelled, store.Row{"assigned_to": nil})
		if err != nil {
			return project, err
		}
	}

	affected := []string{actorID, assignee}
	if sweep {
		pending, err := e.Repo.ListApplications(ctx, store.Where(
			store.Eq("project_id", project.ID),
			store.Eq("status", string(status.Pending)),
		))
		if err != nil {
			return project, fmt.Errorf("load pending applications: %w", err)
		}
		if _, err := e.rejectSiblings(ctx, project.ID, ""); err != nil {
			return project, fmt.Errorf("reject pending applications: %w", err)
		}
		for _, a := range pending {
			e.emit(ctx, events.ApplicationRejected, project.ID, "application", a.ID, actorID, events.EventPayload{"reason": "project cancelled"})
			affected = append(affected, a.ProfessionalID)
		}
	}
	if resumed && len(affected) == 2 {
		return project, nil
	}
	if !resumed {
		e.emit(ctx, events.ProjectCancelled, project.ID, "project", project.ID, actorID, nil)
	}
	for _, id := range affected[1:] {
		e.notify(ctx, notify.Notification{
			UserID:    id,
			Title:     "Project cancelled",
			Message:   fmt.Sprintf("%q was cancelled by the client.", projectTitle(project)),
			Kind:      notify.KindProjectCancelled,
			ProjectID: project.ID,
		})
	}
	e.invalidate(affected...)
	e.log().WithFields(logrus.Fields{"operation": "cancel_project", "project_id": project.ID}).Info("project cancelled")
	return project, nil
}

// DisputeProject may be raised by the client or the assigned professional.
func (e Engine) DisputeProject(ctx context.Context, projectID, actorID string) (p domain.Project, err error) {
	started := time.Now()
	defer func() { e.observe("dispute_project", err, false, started) }()

	project, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, fmt.Errorf("project %s: %w", projectID, err)
	}
	assignee := project.Assignee()
	var counterparty string
	switch {
	case actorID == "":
		return project, ErrNotParty
	case actorID == project.ClientID:
		counterparty = assignee
	case actorID == assignee:
		counterparty = project.ClientID
	default:
		return project, ErrNotParty
	}
	project, err = e.transitionProject(ctx, project, status.Disputed, store.Row{"assigned_to": nil})
	if err != nil {
		return project, err
	}
	e.emit(ctx, events.ProjectDisputed, project.ID, "project", project.ID, actorID, events.EventPayload{"assigned_to": assignee})
	e.notify(ctx, notify.Notification{
		UserID:    counterparty,
		Title:     "Project disputed",
		Message:   fmt.Sprintf("A dispute was opened on %q.", projectTitle(project)),
		Kind:      notify.KindProjectDisputed,
		ProjectID: project.ID,
	})
	e.invalidate(project.ClientID, assignee)
	return project, nil
}

func (e Engine) GetProject(ctx context.Context, id string) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, fmt.Errorf("project %s: %w", id, err)
	}
	return p, nil
}

type ProjectFilter struct {
	ClientID   string
	AssignedTo string
	Status     status.ProjectStatus
	Limit      int
}

// ListProjects returns projects newest first.
func (e Engine) ListProjects(ctx context.Context, f ProjectFilter) ([]domain.Project, error) {
	var where store.Predicate
	if f.ClientID != "" {
		where = append(where, store.Eq("client_id", f.ClientID))
	}
	if f.AssignedTo != "" {
		where = append(where, store.Eq("assigned_to", f.AssignedTo))
	}
	if f.Status != "" {
		if _, err := status.ParseProject(string(f.Status)); err != nil {
			return nil, invalidInput("unknown status %q", f.Status)
		}
		where = append(where, store.Eq("status", string(f.Status)))
	}
	opts := []store.SelectOption{store.Order("created_at", store.Desc)}
	if f.Limit > 0 {
		opts = append(opts, store.Limit(f.Limit))
	}
	return e.Repo.ListProjects(ctx, where, opts...)
}

func (e Engine) ListApplications(ctx context.Context, projectID string) ([]domain.Application, error) {
	if _, err := e.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return e.Repo.ListApplications(ctx, store.Where(store.Eq("project_id", projectID)), store.Order("created_at", store.Asc))
}

func (e Engine) ListEvents(ctx context.Context, projectID string, limit int) ([]domain.Event, error) {
	return e.Repo.ListEvents(ctx, projectID, limit)
}

func (e Engine) ListNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if userID == "" {
		return nil, invalidInput("user is required")
	}
	return e.Repo.ListNotifications(ctx, userID, limit)
}
