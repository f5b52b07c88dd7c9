// Package notify delivers user-facing notifications. Every sink is best-effort
// from the coordinators' point of view: failures are reported, never retried here.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"crewline/internal/domain"
	"crewline/internal/repo"
)

const (
	KindNewApplication      = "new_application"
	KindApplicationAccepted = "application_accepted"
	KindApplicationRejected = "application_rejected"
	KindWorkStarted         = "work_started"
	KindWorkSubmitted       = "work_submitted"
	KindRevisionRequested   = "revision_requested"
	KindWorkApproved        = "work_approved"
	KindProjectCompleted    = "project_completed"
	KindReviewReceived      = "review_received"
	KindProjectCancelled    = "project_cancelled"
	KindProjectDisputed     = "project_disputed"
)

type Notification struct {
	UserID  string
	Title   string
	Message string
	Kind    string
	// ProjectID is carried to sinks that route by project; it is not stored.
	ProjectID string
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type Nop struct{}

func (Nop) Notify(context.Context, Notification) error { return nil }

// Multi fans out to every sink and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StoreNotifier inserts into the notifications collection.
type StoreNotifier struct {
	Repo repo.Repo
	Now  func() time.Time
}

func (s StoreNotifier) Notify(ctx context.Context, n Notification) error {
	if n.UserID == "" {
		return errors.New("notification without user")
	}
	now := s.Now
	if now == nil {
		now = time.Now
	}
	_, err := s.Repo.InsertNotification(ctx, domain.Notification{
		ID:        uuid.NewString(),
		UserID:    n.UserID,
		Title:     n.Title,
		Message:   n.Message,
		Kind:      n.Kind,
		CreatedAt: now().UTC().Format(time.RFC3339Nano),
	})
	return err
}
