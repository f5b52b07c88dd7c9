package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"crewline/internal/domain"
	"crewline/internal/events"
	"crewline/internal/notify"
	"crewline/internal/status"
	"crewline/internal/store"
)

type Outcome string

const (
	Accept Outcome = "accept"
	Reject Outcome = "reject"
)

// DecideOptions is the caller-owned description of one decision in flight.
type DecideOptions struct {
	ApplicationID string
	Outcome       Outcome
	ActorID       string
}

type DecisionResult struct {
	Application domain.Application `json:"application"`
	Project     domain.Project     `json:"project"`
	// Rejected lists sibling applications this run moved to rejected.
	Rejected []string `json:"rejected"`
	// Resumed is set when an earlier partial run was completed.
	Resumed bool `json:"resumed"`
	// Noop is set when the decision was already fully applied.
	Noop bool `json:"noop"`
}

// Decide accepts or rejects an application on behalf of the project's client.
//
// Acceptance writes, in order: the project assignment, the batch rejection of
// the other pending applications, and the accepted application. Each write is
// conditional, so a retry after a failure at any step resumes where the last
// run stopped.
func (e Engine) Decide(ctx context.Context, opts DecideOptions) (res DecisionResult, err error) {
	started := time.Now()
	defer func() { e.observe("decide", err, res.Noop, started) }()

	if opts.ApplicationID == "" || opts.ActorID == "" {
		return DecisionResult{}, invalidInput("application id and actor are required")
	}
	switch opts.Outcome {
	case Accept:
		return e.accept(ctx, opts)
	case Reject:
		return e.reject(ctx, opts)
	}
	return DecisionResult{}, invalidInput("outcome must be accept or reject, got %q", opts.Outcome)
}

func (e Engine) loadDecision(ctx context.Context, opts DecideOptions) (domain.Application, domain.Project, error) {
	app, err := e.Repo.GetApplication(ctx, opts.ApplicationID)
	if err != nil {
		return domain.Application{}, domain.Project{}, fmt.Errorf("application %s: %w", opts.ApplicationID, err)
	}
	project, err := e.Repo.FindProject(ctx, store.Where(
		store.Eq("id", app.ProjectID),
		store.Eq("client_id", opts.ActorID),
	))
	if err != nil {
		return domain.Application{}, domain.Project{}, fmt.Errorf("project %s: %w", app.ProjectID, err)
	}
	return app, project, nil
}

func (e Engine) accept(ctx context.Context, opts DecideOptions) (DecisionResult, error) {
	app, project, err := e.loadDecision(ctx, opts)
	if err != nil {
		return DecisionResult{}, err
	}
	logger := e.log().WithFields(logrus.Fields{
		"operation":      "decide.accept",
		"application_id": app.ID,
		"project_id":     project.ID,
	})

	res := DecisionResult{}
	assignedToApplicant := project.Assignee() == app.ProfessionalID
	switch {
	case app.Status == status.Pending && project.Status == status.Open:
	case app.Status == status.Pending && status.RequiresAssignee(project.Status) && assignedToApplicant:
		res.Resumed = true
	case app.Status == status.Accepted && assignedToApplicant && status.RequiresAssignee(project.Status):
		res.Noop = true
	case app.Status != status.Pending:
		return DecisionResult{}, status.TransitionError{Entity: "application", From: string(app.Status), To: string(status.Accepted)}
	default:
		return DecisionResult{}, status.TransitionError{Entity: "project", From: string(project.Status), To: string(status.Assigned)}
	}

	if !res.Noop {
		others, err := e.Repo.ListApplications(ctx, store.Where(
			store.Eq("project_id", project.ID),
			store.Eq("status", string(status.Accepted)),
			store.Neq("id", app.ID),
		))
		if err != nil {
			return DecisionResult{}, fmt.Errorf("check accepted applications: %w", err)
		}
		if len(others) > 0 {
			return DecisionResult{}, fmt.Errorf("%w: application %s is already accepted for project %s", ErrInvalidTransition, others[0].ID, project.ID)
		}
	}

	if project.Status == status.Open {
		n, err := e.Repo.UpdateProjects(ctx, store.Row{
			"status":      string(status.Assigned),
			"assigned_to": app.ProfessionalID,
			"updated_at":  e.timestamp(),
		}, store.Where(store.Eq("id", project.ID), store.Eq("status", string(status.Open))))
		if err != nil {
			return DecisionResult{}, fmt.Errorf("step 1 assign project: %w", err)
		}
		if n == 0 {
			current, err := e.Repo.GetProject(ctx, project.ID)
			if err != nil {
				return DecisionResult{}, fmt.Errorf("step 1 re-read project: %w", err)
			}
			if current.Status != status.Assigned || current.Assignee() != app.ProfessionalID {
				return DecisionResult{}, status.TransitionError{Entity: "project", From: string(current.Status), To: string(status.Assigned)}
			}
			res.Resumed = true
		}
		assignee := app.ProfessionalID
		project.Status = status.Assigned
		project.AssignedTo = &assignee
		logger.WithField("step", 1).Debug("project assigned")
	}

	rejected, err := e.rejectSiblings(ctx, project.ID, app.ID)
	if err != nil {
		return DecisionResult{}, fmt.Errorf("step 2 reject siblings: %w", err)
	}
	res.Rejected = rejected
	logger.WithFields(logrus.Fields{"step": 2, "rejected": len(rejected)}).Debug("sibling applications rejected")

	if app.Status == status.Pending {
		if err := e.markAccepted(ctx, app.ID); err != nil {
			return DecisionResult{}, fmt.Errorf("step 3 accept application: %w", err)
		}
		app.Status = status.Accepted
		logger.WithField("step", 3).Debug("application accepted")
	}

	if current, err := e.Repo.GetApplication(ctx, app.ID); err == nil {
		app = current
	}
	if current, err := e.Repo.GetProject(ctx, project.ID); err == nil {
		project = current
	}
	res.Application = app
	res.Project = project

	if !res.Noop || len(rejected) > 0 {
		e.afterAccept(ctx, opts.ActorID, project, app, rejected, res.Noop)
	}
	logger.WithFields(logrus.Fields{"resumed": res.Resumed, "noop": res.Noop}).Info("application accepted")
	return res, nil
}

// rejectSiblings moves every other pending application of the project to rejected.
func (e Engine) rejectSiblings(ctx context.Context, projectID, acceptedID string) ([]string, error) {
	where := store.Where(
		store.Eq("project_id", projectID),
		store.Eq("status", string(status.Pending)),
		store.Neq("id", acceptedID),
	)
	siblings, err := e.Repo.ListApplications(ctx, where)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(siblings))
	if len(siblings) == 0 {
		return ids, nil
	}
	if _, err := e.Repo.UpdateApplications(ctx, store.Row{
		"status":     string(status.Rejected),
		"updated_at": e.timestamp(),
	}, where); err != nil {
		return nil, err
	}
	for _, s := range siblings {
		ids = append(ids, s.ID)
	}
	return ids, nil
}

func (e Engine) markAccepted(ctx context.Context, appID string) error {
	n, err := e.Repo.UpdateApplications(ctx, store.Row{
		"status":     string(status.Accepted),
		"updated_at": e.timestamp(),
	}, store.Where(store.Eq("id", appID), store.Eq("status", string(status.Pending))))
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	current, err := e.Repo.GetApplication(ctx, appID)
	if err != nil {
		return err
	}
	if current.Status != status.Accepted {
		return status.TransitionError{Entity: "application", From: string(current.Status), To: string(status.Accepted)}
	}
	return nil
}

func (e Engine) afterAccept(ctx context.Context, actorID string, project domain.Project, app domain.Application, rejected []string, noop bool) {
	title := projectTitle(project)
	if !noop {
		e.emit(ctx, events.ProjectAssigned, project.ID, "project", project.ID, actorID, events.EventPayload{"assigned_to": app.ProfessionalID})
		e.emit(ctx, events.ApplicationAccepted, project.ID, "application", app.ID, actorID, nil)
		e.notify(ctx, notify.Notification{
			UserID:    app.ProfessionalID,
			Title:     "Application accepted",
			Message:   fmt.Sprintf("Your application for %q was accepted.", title),
			Kind:      notify.KindApplicationAccepted,
			ProjectID: project.ID,
		})
	}
	affected := []string{actorID, app.ProfessionalID}
	for _, id := range rejected {
		rejectedApp, err := e.Repo.GetApplication(ctx, id)
		if err != nil {
			e.log().WithField("application_id", id).WithError(err).Warn("load rejected application")
			continue
		}
		e.emit(ctx, events.ApplicationRejected, project.ID, "application", id, actorID, events.EventPayload{"reason": "another application was accepted"})
		e.notify(ctx, notify.Notification{
			UserID:    rejectedApp.ProfessionalID,
			Title:     "Application not selected",
			Message:   fmt.Sprintf("Another professional was selected for %q.", title),
			Kind:      notify.KindApplicationRejected,
			ProjectID: project.ID,
		})
		affected = append(affected, rejectedApp.ProfessionalID)
	}
	e.invalidate(affected...)
}

func (e Engine) reject(ctx context.Context, opts DecideOptions) (DecisionResult, error) {
	app, project, err := e.loadDecision(ctx, opts)
	if err != nil {
		return DecisionResult{}, err
	}
	if err := status.EnsureApplicationTransition(app.Status, status.Rejected); err != nil {
		return DecisionResult{}, err
	}
	// The assignee's application is mid-acceptance; only accept or reconcile may finish it.
	if project.Status != status.Open && project.Assignee() == app.ProfessionalID {
		return DecisionResult{}, fmt.Errorf("%w: project %s is assigned to the applicant", ErrInvalidTransition, project.ID)
	}
	n, err := e.Repo.UpdateApplications(ctx, store.Row{
		"status":     string(status.Rejected),
		"updated_at": e.timestamp(),
	}, store.Where(store.Eq("id", app.ID), store.Eq("status", string(status.Pending))))
	if err != nil {
		return DecisionResult{}, fmt.Errorf("reject application: %w", err)
	}
	if n == 0 {
		current, err := e.Repo.GetApplication(ctx, app.ID)
		if err != nil {
			return DecisionResult{}, fmt.Errorf("re-read application: %w", err)
		}
		return DecisionResult{}, status.TransitionError{Entity: "application", From: string(current.Status), To: string(status.Rejected)}
	}
	app.Status = status.Rejected
	app.UpdatedAt = e.timestamp()

	e.emit(ctx, events.ApplicationRejected, project.ID, "application", app.ID, opts.ActorID, nil)
	e.notify(ctx, notify.Notification{
		UserID:    app.ProfessionalID,
		Title:     "Application not selected",
		Message:   fmt.Sprintf("Your application for %q was declined.", projectTitle(project)),
		Kind:      notify.KindApplicationRejected,
		ProjectID: project.ID,
	})
	e.invalidate(opts.ActorID, app.ProfessionalID)
	e.log().WithFields(logrus.Fields{"operation": "decide.reject", "application_id": app.ID, "project_id": project.ID}).Info("application rejected")
	return DecisionResult{Application: app, Project: project, Rejected: []string{app.ID}}, nil
}

type ReconcileResult struct {
	ProjectID string `json:"project_id"`
	// Steps lists the decision steps this pass re-applied.
	Steps []string `json:"steps"`
	// Rejected lists applications moved to rejected by this pass.
	Rejected []string `json:"rejected,omitempty"`
	// Issue describes an inconsistency reconciliation cannot repair.
	Issue string `json:"issue,omitempty"`
}

// Reconcile completes an interrupted acceptance for one project.
//
// It acts on every status that carries an assignee: if the assignee's
// application is still pending the sibling rejection and acceptance are
// resumed; if it is already accepted the sibling rejection is re-asserted.
func (e Engine) Reconcile(ctx context.Context, projectID string) (res ReconcileResult, err error) {
	started := time.Now()
	defer func() { e.observe("reconcile", err, len(res.Steps) == 0, started) }()

	project, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return ReconcileResult{ProjectID: projectID, Steps: []string{}}, fmt.Errorf("project %s: %w", projectID, err)
	}
	if !status.RequiresAssignee(project.Status) {
		return ReconcileResult{ProjectID: projectID, Steps: []string{}}, nil
	}
	return e.finishAcceptance(ctx, project)
}

func (e Engine) finishAcceptance(ctx context.Context, project domain.Project) (ReconcileResult, error) {
	res := ReconcileResult{ProjectID: project.ID, Steps: []string{}}
	assignee := project.Assignee()
	if assignee == "" {
		res.Issue = "project is assigned without an assignee"
		return res, nil
	}
	apps, err := e.Repo.ListApplications(ctx, store.Where(
		store.Eq("project_id", project.ID),
		store.Eq("professional_id", assignee),
		store.In("status", []string{string(status.Pending), string(status.Accepted)}),
	))
	if err != nil {
		return res, fmt.Errorf("load assignee application: %w", err)
	}
	if len(apps) == 0 {
		res.Issue = fmt.Sprintf("no live application for assignee %s", assignee)
		e.log().WithFields(logrus.Fields{"project_id": project.ID, "assigned_to": assignee}).Warn(res.Issue)
		return res, nil
	}
	app := apps[0]
	rejected, err := e.rejectSiblings(ctx, project.ID, app.ID)
	if err != nil {
		return res, fmt.Errorf("reconcile reject siblings: %w", err)
	}
	if len(rejected) > 0 {
		res.Steps = append(res.Steps, "reject_siblings")
		res.Rejected = rejected
	}
	if app.Status == status.Pending {
		if err := e.markAccepted(ctx, app.ID); err != nil {
			return res, fmt.Errorf("reconcile accept application: %w", err)
		}
		res.Steps = append(res.Steps, "accept_application")
		app.Status = status.Accepted
	}
	if len(res.Steps) > 0 {
		e.afterAccept(ctx, project.ClientID, project, app, rejected, !containsStep(res.Steps, "accept_application"))
		e.log().WithFields(logrus.Fields{"project_id": project.ID, "steps": res.Steps}).Info("project reconciled")
	}
	return res, nil
}

func containsStep(steps []string, want string) bool {
	for _, s := range steps {
		if s == want {
			return true
		}
	}
	return false
}
