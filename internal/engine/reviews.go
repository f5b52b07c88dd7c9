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

type ReviewOptions struct {
	ProjectID  string
	ReviewerID string
	Rating     int
	Comment    string
}

type ReviewResult struct {
	Review   domain.Review  `json:"review"`
	Project  domain.Project `json:"project"`
	Archived bool           `json:"archived"`
}

// SubmitReview records one party's rating of the other. The counterparty is
// taken from the accepted application, not from the project row.
func (e Engine) SubmitReview(ctx context.Context, opts ReviewOptions) (res ReviewResult, err error) {
	started := time.Now()
	defer func() { e.observe("submit_review", err, false, started) }()

	if opts.Rating < 1 || opts.Rating > 5 {
		return ReviewResult{}, invalidInput("rating must be between 1 and 5, got %d", opts.Rating)
	}
	project, err := e.Repo.GetProject(ctx, opts.ProjectID)
	if err != nil {
		return ReviewResult{}, fmt.Errorf("project %s: %w", opts.ProjectID, err)
	}
	if !status.Reviewable(project.Status) {
		return ReviewResult{Project: project}, fmt.Errorf("review project in %s: %w", project.Status, status.ErrInvalidTransition)
	}
	accepted, err := e.Repo.ListApplications(ctx, store.Where(
		store.Eq("project_id", project.ID),
		store.Eq("status", string(status.Accepted)),
	), store.Limit(1))
	if err != nil {
		return ReviewResult{Project: project}, fmt.Errorf("load accepted application: %w", err)
	}
	if len(accepted) == 0 {
		return ReviewResult{Project: project}, ErrNoAssignedProfessional
	}
	professionalID := accepted[0].ProfessionalID

	var role domain.Role
	var revieweeID string
	switch opts.ReviewerID {
	case project.ClientID:
		role, revieweeID = domain.RoleClient, professionalID
	case professionalID:
		role, revieweeID = domain.RoleProfessional, project.ClientID
	default:
		return ReviewResult{Project: project}, ErrNotParty
	}

	existing, err := e.Repo.ListReviews(ctx, store.Where(
		store.Eq("project_id", project.ID),
		store.Eq("reviewer_role", string(role)),
	), store.Limit(1))
	if err != nil {
		return ReviewResult{Project: project}, fmt.Errorf("check existing review: %w", err)
	}
	if len(existing) > 0 {
		project, _, err = e.archiveIfDue(ctx, project, opts.ReviewerID)
		if err != nil {
			return ReviewResult{Project: project}, err
		}
		return ReviewResult{Review: existing[0], Project: project}, ErrDuplicateReview
	}

	review, err := e.Repo.InsertReview(ctx, domain.Review{
		ID:             uuid.NewString(),
		ProjectID:      project.ID,
		ClientID:       project.ClientID,
		ProfessionalID: professionalID,
		ReviewerID:     opts.ReviewerID,
		ReviewerRole:   role,
		Rating:         opts.Rating,
		Comment:        strings.TrimSpace(opts.Comment),
		CreatedAt:      e.timestamp(),
	})
	if errors.Is(err, store.ErrConflict) {
		return ReviewResult{Project: project}, ErrDuplicateReview
	}
	if err != nil {
		return ReviewResult{Project: project}, fmt.Errorf("insert review: %w", err)
	}
	e.emit(ctx, events.ReviewSubmitted, project.ID, "review", review.ID, opts.ReviewerID, events.EventPayload{
		"reviewer_role": string(role),
		"rating":        review.Rating,
	})
	e.notify(ctx, notify.Notification{
		UserID:    revieweeID,
		Title:     "New review",
		Message:   fmt.Sprintf("You received a %d-star review for %q.", review.Rating, projectTitle(project)),
		Kind:      notify.KindReviewReceived,
		ProjectID: project.ID,
	})

	project, archived, err := e.archiveIfDue(ctx, project, opts.ReviewerID)
	res = ReviewResult{Review: review, Project: project, Archived: archived}
	if err != nil {
		return res, err
	}
	e.invalidate(project.ClientID, professionalID)
	e.log().WithFields(logrus.Fields{
		"operation":     "submit_review",
		"project_id":    project.ID,
		"reviewer_role": role,
		"archived":      archived,
	}).Info("review submitted")
	return res, nil
}

// archiveIfDue archives the project when the archive policy is met. A project
// still in work_approved is completed first.
func (e Engine) archiveIfDue(ctx context.Context, project domain.Project, actorID string) (domain.Project, bool, error) {
	if project.Status == status.Archived {
		return project, false, nil
	}
	if e.Policy == ArchiveOnAllReviews {
		reviews, err := e.Repo.ListReviews(ctx, store.Where(store.Eq("project_id", project.ID)))
		if err != nil {
			return project, false, fmt.Errorf("load reviews: %w", err)
		}
		roles := map[domain.Role]bool{}
		for _, rv := range reviews {
			roles[rv.ReviewerRole] = true
		}
		if !roles[domain.RoleClient] || !roles[domain.RoleProfessional] {
			return project, false, nil
		}
	}
	var err error
	if project.Status == status.WorkApproved {
		if project, err = e.complete(ctx, project, actorID); err != nil {
			return project, false, err
		}
	}
	project, err = e.transitionProject(ctx, project, status.Archived, nil)
	if err != nil {
		return project, false, err
	}
	e.emit(ctx, events.ProjectArchived, project.ID, "project", project.ID, actorID, events.EventPayload{"policy": string(e.Policy)})
	return project, true, nil
}
