// Package dashboard assembles the per-actor snapshot shown on the landing view.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"crewline/internal/domain"
	"crewline/internal/repo"
	"crewline/internal/store"
)

var ErrInvalidRole = errors.New("dashboard role must be client or professional")

// Snapshot collections are never nil. A failed load yields the zero Snapshot.
type Snapshot struct {
	Projects     []domain.Project     `json:"projects"`
	Applications []domain.Application `json:"applications"`
	Payments     []domain.Payment     `json:"payments"`
	Reviews      []domain.Review      `json:"reviews"`
}

func empty() Snapshot {
	return Snapshot{
		Projects:     []domain.Project{},
		Applications: []domain.Application{},
		Payments:     []domain.Payment{},
		Reviews:      []domain.Review{},
	}
}

// clone copies the collections so callers never share backing arrays with the cache.
func (s Snapshot) clone() Snapshot {
	return Snapshot{
		Projects:     slices.Clone(s.Projects),
		Applications: slices.Clone(s.Applications),
		Payments:     slices.Clone(s.Payments),
		Reviews:      slices.Clone(s.Reviews),
	}
}

type Options struct {
	CacheSize int
	CacheTTL  time.Duration
}

type Aggregator struct {
	Repo   repo.Repo
	Logger logrus.FieldLogger
	cache  *expirable.LRU[string, Snapshot]
}

// New builds an Aggregator; a zero CacheSize disables caching.
func New(r repo.Repo, opts Options, logger logrus.FieldLogger) *Aggregator {
	a := &Aggregator{Repo: r, Logger: logger}
	if opts.CacheSize > 0 {
		a.cache = expirable.NewLRU[string, Snapshot](opts.CacheSize, nil, opts.CacheTTL)
	}
	return a
}

func cacheKey(role domain.Role, actorID string) string {
	return string(role) + "|" + actorID
}

// LoadSnapshot returns the cached snapshot when present, otherwise loads it.
func (a *Aggregator) LoadSnapshot(ctx context.Context, actorID string, role domain.Role) (Snapshot, error) {
	if a.cache != nil {
		if snap, ok := a.cache.Get(cacheKey(role, actorID)); ok {
			return snap.clone(), nil
		}
	}
	return a.Refresh(ctx, actorID, role)
}

// Refresh reloads from the store, bypassing and then repopulating the cache.
func (a *Aggregator) Refresh(ctx context.Context, actorID string, role domain.Role) (Snapshot, error) {
	snap, err := a.load(ctx, actorID, role)
	if err != nil {
		return Snapshot{}, err
	}
	if a.cache != nil {
		a.cache.Add(cacheKey(role, actorID), snap.clone())
	}
	return snap, nil
}

// Invalidate drops cached snapshots for both roles of every actor given.
func (a *Aggregator) Invalidate(actorIDs ...string) {
	if a == nil || a.cache == nil {
		return
	}
	for _, id := range actorIDs {
		if id == "" {
			continue
		}
		a.cache.Remove(cacheKey(domain.RoleClient, id))
		a.cache.Remove(cacheKey(domain.RoleProfessional, id))
	}
}

func (a *Aggregator) load(ctx context.Context, actorID string, role domain.Role) (Snapshot, error) {
	if actorID == "" {
		return Snapshot{}, errors.New("actor id is required")
	}
	snap := empty()
	var ids []string
	switch role {
	case domain.RoleClient:
		projects, err := a.Repo.ListProjects(ctx, store.Where(store.Eq("client_id", actorID)), store.Order("created_at", store.Desc))
		if err != nil {
			return Snapshot{}, fmt.Errorf("load projects: %w", err)
		}
		snap.Projects = projects
		ids = projectIDs(projects)
		if len(ids) == 0 {
			return snap, nil
		}
		apps, err := a.Repo.ListApplications(ctx, store.Where(store.In("project_id", ids)), store.Order("created_at", store.Asc))
		if err != nil {
			return Snapshot{}, fmt.Errorf("load applications: %w", err)
		}
		snap.Applications = apps
	case domain.RoleProfessional:
		apps, err := a.Repo.ListApplications(ctx, store.Where(store.Eq("professional_id", actorID)), store.Order("created_at", store.Asc))
		if err != nil {
			return Snapshot{}, fmt.Errorf("load applications: %w", err)
		}
		assigned, err := a.Repo.ListProjects(ctx, store.Where(store.Eq("assigned_to", actorID)))
		if err != nil {
			return Snapshot{}, fmt.Errorf("load assigned projects: %w", err)
		}
		ids = unionIDs(apps, assigned)
		if len(ids) == 0 {
			return snap, nil
		}
		projects, err := a.Repo.ListProjects(ctx, store.Where(store.In("id", ids)), store.Order("created_at", store.Desc))
		if err != nil {
			return Snapshot{}, fmt.Errorf("load projects: %w", err)
		}
		snap.Projects = projects
		snap.Applications = apps
	default:
		return Snapshot{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	payments, err := a.Repo.ListPayments(ctx, store.Where(store.In("project_id", ids)), store.Order("created_at", store.Desc))
	if err != nil {
		return Snapshot{}, fmt.Errorf("load payments: %w", err)
	}
	snap.Payments = payments
	reviews, err := a.Repo.ListReviews(ctx, store.Where(store.In("project_id", ids)), store.Order("created_at", store.Desc))
	if err != nil {
		return Snapshot{}, fmt.Errorf("load reviews: %w", err)
	}
	snap.Reviews = reviews
	if a.Logger != nil {
		a.Logger.WithFields(logrus.Fields{
			"actor_id":     actorID,
			"role":         role,
			"projects":     len(snap.Projects),
			"applications": len(snap.Applications),
		}).Debug("dashboard snapshot loaded")
	}
	return snap, nil
}

func projectIDs(projects []domain.Project) []string {
	ids := make([]string, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.ID)
	}
	return ids
}

func unionIDs(apps []domain.Application, projects []domain.Project) []string {
	seen := make(map[string]struct{}, len(apps)+len(projects))
	var ids []string
	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, a := range apps {
		add(a.ProjectID)
	}
	for _, p := range projects {
		add(p.ID)
	}
	return ids
}
