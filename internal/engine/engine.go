// Package engine holds the lifecycle coordinators. The store offers no
// multi-statement transactions, so every coordinator performs its writes in a
// fixed order, makes each write conditional on the state it expects, and
// recovers from an interrupted run by re-reading and resuming forward.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"crewline/internal/config"
	"crewline/internal/dashboard"
	"crewline/internal/domain"
	"crewline/internal/events"
	"crewline/internal/metrics"
	"crewline/internal/notify"
	"crewline/internal/repo"
	"crewline/internal/status"
	"crewline/internal/store"
)

var (
	ErrInvalidTransition      = status.ErrInvalidTransition
	ErrNotFound               = repo.ErrNotFound
	ErrStoreUnavailable       = store.ErrUnavailable
	ErrNoAssignedProfessional = errors.New("no assigned professional")
	ErrDuplicateReview        = errors.New("review already submitted")
	ErrDuplicateApplication   = errors.New("application already submitted")
	ErrNotParty               = errors.New("actor is not a party to the project")
	ErrInvalidInput           = errors.New("invalid input")
)

type ArchivePolicy string

const (
	ArchiveOnFirstReview ArchivePolicy = config.ArchiveFirstReview
	ArchiveOnAllReviews  ArchivePolicy = config.ArchiveAllReviews
)

type Engine struct {
	Repo      repo.Repo
	Events    events.Writer
	Notifier  notify.Notifier
	Dashboard *dashboard.Aggregator
	Metrics   *metrics.Metrics
	Logger    logrus.FieldLogger
	Policy    ArchivePolicy
	Now       func() time.Time
}

// New wires an engine over s with store-backed notifications and no cache or metrics.
func New(s store.Store, cfg *config.Config) Engine {
	r := repo.Repo{Store: s}
	policy := ArchiveOnFirstReview
	if cfg != nil && cfg.Reviews.ArchivePolicy != "" {
		policy = ArchivePolicy(cfg.Reviews.ArchivePolicy)
	}
	e := Engine{
		Repo:   r,
		Policy: policy,
		Now:    time.Now,
	}
	e.Events = events.Writer{Repo: r, Now: e.now}
	e.Notifier = notify.StoreNotifier{Repo: r, Now: e.now}
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) log() logrus.FieldLogger {
	if e.Logger != nil {
		return e.Logger
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// observe records the outcome of a coordinator call.
func (e Engine) observe(operation string, err error, noop bool, started time.Time) {
	outcome := metrics.OutcomeOK
	switch {
	case err == nil && noop:
		outcome = metrics.OutcomeNoop
	case err == nil:
	case errors.Is(err, ErrStoreUnavailable):
		outcome = metrics.OutcomeError
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrDuplicateReview), errors.Is(err, ErrDuplicateApplication),
		errors.Is(err, ErrNoAssignedProfessional), errors.Is(err, ErrNotParty):
		outcome = metrics.OutcomeRejected
	default:
		outcome = metrics.OutcomeError
	}
	e.Metrics.Observe(operation, outcome, started)
}

// emit appends a lifecycle event after the durable writes of an operation.
// A failure is logged and dropped.
func (e Engine) emit(ctx context.Context, evtType, projectID, entityKind, entityID, actorID string, payload events.EventPayload) {
	if err := e.Events.Append(ctx, evtType, projectID, entityKind, entityID, actorID, payload); err != nil {
		e.log().WithFields(logrus.Fields{
			"event":      evtType,
			"project_id": projectID,
			"entity_id":  entityID,
		}).WithError(err).Warn("event append failed")
	}
}

func (e Engine) notify(ctx context.Context, n notify.Notification) {
	if e.Notifier == nil || n.UserID == "" {
		return
	}
	if err := e.Notifier.Notify(ctx, n); err != nil {
		e.log().WithFields(logrus.Fields{
			"user_id":    n.UserID,
			"kind":       n.Kind,
			"project_id": n.ProjectID,
		}).WithError(err).Warn("notification failed")
	}
}

func (e Engine) invalidate(actorIDs ...string) {
	e.Dashboard.Invalidate(actorIDs...)
}

// transitionProject moves p to `to` with a write conditional on p's current
// status plus any extra conditions. When nothing matches, it re-reads the
// project and reports the status another writer left it in.
func (e Engine) transitionProject(ctx context.Context, p domain.Project, to status.ProjectStatus, patch store.Row, extra ...store.Cond) (domain.Project, error) {
	if err := status.EnsureProjectTransition(p.Status, to); err != nil {
		return p, err
	}
	if patch == nil {
		patch = store.Row{}
	}
	patch["status"] = string(to)
	patch["updated_at"] = e.timestamp()
	where := store.Where(store.Eq("id", p.ID), store.Eq("status", string(p.Status)))
	where = append(where, extra...)
	n, err := e.Repo.UpdateProjects(ctx, patch, where)
	if err != nil {
		return p, fmt.Errorf("project %s -> %s: %w", p.Status, to, err)
	}
	current, err := e.Repo.GetProject(ctx, p.ID)
	if err != nil {
		return p, fmt.Errorf("re-read project %s: %w", p.ID, err)
	}
	if n == 0 && current.Status != to {
		return current, status.TransitionError{Entity: "project", From: string(current.Status), To: string(to)}
	}
	return current, nil
}

func projectTitle(p domain.Project) string {
	if p.Title == "" {
		return p.ID
	}
	return p.Title
}
