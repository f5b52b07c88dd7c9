// Package repo maps store rows to domain types. It adds no ordering or
// transactional guarantees on top of the store.
package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"crewline/internal/domain"
	"crewline/internal/store"
)

const (
	Projects      = "projects"
	Applications  = "applications"
	Reviews       = "reviews"
	Payments      = "payments"
	Notifications = "notifications"
	Events        = "events"
	APIKeys       = "api_keys"
)

type Repo struct {
	Store store.Store
}

var ErrNotFound = store.ErrNotFound

func decode[T any](rows []store.Row) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		data, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func first[T any](ctx context.Context, s store.Store, collection string, where store.Predicate) (T, error) {
	var zero T
	rows, err := s.Select(ctx, collection, where, store.Limit(1))
	if err != nil {
		return zero, err
	}
	items, err := decode[T](rows)
	if err != nil {
		return zero, err
	}
	if len(items) == 0 {
		return zero, ErrNotFound
	}
	return items[0], nil
}

func list[T any](ctx context.Context, s store.Store, collection string, where store.Predicate, opts ...store.SelectOption) ([]T, error) {
	rows, err := s.Select(ctx, collection, where, opts...)
	if err != nil {
		return nil, err
	}
	return decode[T](rows)
}

func insertOne[T any](ctx context.Context, s store.Store, collection string, row store.Row) (T, error) {
	var zero T
	rows, err := s.Insert(ctx, collection, []store.Row{row})
	if err != nil {
		return zero, err
	}
	items, err := decode[T](rows)
	if err != nil {
		return zero, err
	}
	if len(items) == 0 {
		return zero, fmt.Errorf("insert %s returned no rows", collection)
	}
	return items[0], nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullablePtr[T ~string](v *T) any {
	if v == nil {
		return nil
	}
	return string(*v)
}

func projectRow(p domain.Project) store.Row {
	return store.Row{
		"id":                p.ID,
		"client_id":         p.ClientID,
		"assigned_to":       nullablePtr(p.AssignedTo),
		"title":             p.Title,
		"description":       nullable(p.Description),
		"budget":            p.Budget,
		"status":            string(p.Status),
		"work_state":        nullablePtr(p.WorkState),
		"work_artifact":     nullablePtr(p.WorkArtifact),
		"revision_notes":    nullablePtr(p.RevisionNotes),
		"work_submitted_at": nullablePtr(p.WorkSubmittedAt),
		"work_reviewed_at":  nullablePtr(p.WorkReviewedAt),
		"created_at":        p.CreatedAt,
		"updated_at":        p.UpdatedAt,
		"completed_at":      nullablePtr(p.CompletedAt),
	}
}

func (r Repo) InsertProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	return insertOne[domain.Project](ctx, r.Store, Projects, projectRow(p))
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return r.FindProject(ctx, store.Where(store.Eq("id", id)))
}

// FindProject returns the first project matching where, or ErrNotFound.
func (r Repo) FindProject(ctx context.Context, where store.Predicate) (domain.Project, error) {
	return first[domain.Project](ctx, r.Store, Projects, where)
}

func (r Repo) ListProjects(ctx context.Context, where store.Predicate, opts ...store.SelectOption) ([]domain.Project, error) {
	return list[domain.Project](ctx, r.Store, Projects, where, opts...)
}

func (r Repo) UpdateProjects(ctx context.Context, patch store.Row, where store.Predicate) (int, error) {
	return r.Store.Update(ctx, Projects, patch, where)
}

func (r Repo) InsertApplication(ctx context.Context, a domain.Application) (domain.Application, error) {
	return insertOne[domain.Application](ctx, r.Store, Applications, store.Row{
		"id":              a.ID,
		"project_id":      a.ProjectID,
		"professional_id": a.ProfessionalID,
		"status":          string(a.Status),
		"proposal":        nullable(a.Proposal),
		"created_at":      a.CreatedAt,
		"updated_at":      a.UpdatedAt,
	})
}

func (r Repo) GetApplication(ctx context.Context, id string) (domain.Application, error) {
	return first[domain.Application](ctx, r.Store, Applications, store.Where(store.Eq("id", id)))
}

func (r Repo) ListApplications(ctx context.Context, where store.Predicate, opts ...store.SelectOption) ([]domain.Application, error) {
	return list[domain.Application](ctx, r.Store, Applications, where, opts...)
}

func (r Repo) UpdateApplications(ctx context.Context, patch store.Row, where store.Predicate) (int, error) {
	return r.Store.Update(ctx, Applications, patch, where)
}

func (r Repo) InsertReview(ctx context.Context, rv domain.Review) (domain.Review, error) {
	return insertOne[domain.Review](ctx, r.Store, Reviews, store.Row{
		"id":              rv.ID,
		"project_id":      rv.ProjectID,
		"client_id":       rv.ClientID,
		"professional_id": rv.ProfessionalID,
		"reviewer_id":     rv.ReviewerID,
		"reviewer_role":   string(rv.ReviewerRole),
		"rating":          rv.Rating,
		"comment":         nullable(rv.Comment),
		"created_at":      rv.CreatedAt,
	})
}

func (r Repo) ListReviews(ctx context.Context, where store.Predicate, opts ...store.SelectOption) ([]domain.Review, error) {
	return list[domain.Review](ctx, r.Store, Reviews, where, opts...)
}

func (r Repo) InsertPayment(ctx context.Context, p domain.Payment) (domain.Payment, error) {
	return insertOne[domain.Payment](ctx, r.Store, Payments, store.Row{
		"id":              p.ID,
		"project_id":      p.ProjectID,
		"client_id":       p.ClientID,
		"professional_id": nullablePtr(p.ProfessionalID),
		"amount":          p.Amount,
		"status":          p.Status,
		"created_at":      p.CreatedAt,
	})
}

func (r Repo) ListPayments(ctx context.Context, where store.Predicate, opts ...store.SelectOption) ([]domain.Payment, error) {
	return list[domain.Payment](ctx, r.Store, Payments, where, opts...)
}

func (r Repo) InsertNotification(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	return insertOne[domain.Notification](ctx, r.Store, Notifications, store.Row{
		"id":         n.ID,
		"user_id":    n.UserID,
		"title":      n.Title,
		"message":    n.Message,
		"kind":       n.Kind,
		"created_at": n.CreatedAt,
	})
}

// ListNotifications returns a user's notifications, newest first.
func (r Repo) ListNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	opts := []store.SelectOption{store.Order("created_at", store.Desc)}
	if limit > 0 {
		opts = append(opts, store.Limit(limit))
	}
	return list[domain.Notification](ctx, r.Store, Notifications, store.Where(store.Eq("user_id", userID)), opts...)
}

func (r Repo) InsertEvent(ctx context.Context, e domain.Event) (domain.Event, error) {
	return insertOne[domain.Event](ctx, r.Store, Events, store.Row{
		"ts":           e.TS,
		"type":         e.Type,
		"project_id":   nullable(e.ProjectID),
		"entity_kind":  e.EntityKind,
		"entity_id":    nullable(e.EntityID),
		"actor_id":     e.ActorID,
		"payload_json": e.Payload,
	})
}

// ListEvents returns events in append order, optionally scoped to one project.
func (r Repo) ListEvents(ctx context.Context, projectID string, limit int) ([]domain.Event, error) {
	var where store.Predicate
	if projectID != "" {
		where = store.Where(store.Eq("project_id", projectID))
	}
	opts := []store.SelectOption{store.Order("id", store.Asc)}
	if limit > 0 {
		opts = append(opts, store.Limit(limit))
	}
	return list[domain.Event](ctx, r.Store, Events, where, opts...)
}
