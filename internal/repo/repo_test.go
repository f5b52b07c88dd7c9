package repo_test

import (
	"context"
	"errors"
	"testing"

	"crewline/internal/db"
	"crewline/internal/domain"
	"crewline/internal/migrate"
	"crewline/internal/repo"
	"crewline/internal/status"
	"crewline/internal/store"
	"crewline/internal/store/sqlstore"
)

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{Store: sqlstore.New(conn)}
}

func TestProjectRoundTrip(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	p, err := r.InsertProject(ctx, domain.Project{
		ID: "p1", ClientID: "c1", Title: "Kitchen", Budget: 1200.5,
		Status: status.Open, CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("insert project: %v", err)
	}
	if p.AssignedTo != nil || p.WorkState != nil || p.Budget != 1200.5 {
		t.Fatalf("unexpected inserted project: %+v", p)
	}

	n, err := r.UpdateProjects(ctx, store.Row{"status": string(status.Assigned), "assigned_to": "pro-1"},
		store.Where(store.Eq("id", "p1"), store.Eq("status", string(status.Open))))
	if err != nil || n != 1 {
		t.Fatalf("assign: n=%d err=%v", n, err)
	}
	got, err := r.GetProject(ctx, "p1")
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if got.Status != status.Assigned || got.Assignee() != "pro-1" {
		t.Fatalf("unexpected project after assign: %+v", got)
	}

	if _, err := r.GetProject(ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLiveApplicationUniqueness(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	if _, err := r.InsertProject(ctx, domain.Project{ID: "p1", ClientID: "c1", Title: "t", Status: status.Open, CreatedAt: "t", UpdatedAt: "t"}); err != nil {
		t.Fatal(err)
	}
	app := domain.Application{ID: "a1", ProjectID: "p1", ProfessionalID: "pro-1", Status: status.Pending, CreatedAt: "t", UpdatedAt: "t"}
	if _, err := r.InsertApplication(ctx, app); err != nil {
		t.Fatalf("insert application: %v", err)
	}
	app.ID = "a2"
	if _, err := r.InsertApplication(ctx, app); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict for second live application, got %v", err)
	}
	if _, err := r.UpdateApplications(ctx, store.Row{"status": string(status.Rejected)}, store.Where(store.Eq("id", "a1"))); err != nil {
		t.Fatal(err)
	}
	if _, err := r.InsertApplication(ctx, app); err != nil {
		t.Fatalf("re-apply after rejection: %v", err)
	}
}

func TestEventsKeepAppendOrder(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	for _, typ := range []string{"project.created", "application.created", "project.assigned"} {
		if _, err := r.InsertEvent(ctx, domain.Event{TS: "t", Type: typ, ProjectID: "p1", EntityKind: "project", ActorID: "c1", Payload: "{}"}); err != nil {
			t.Fatalf("insert event: %v", err)
		}
	}
	evs, err := r.ListEvents(ctx, "p1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 3 || evs[0].Type != "project.created" || evs[2].Type != "project.assigned" || evs[0].ID >= evs[2].ID {
		t.Fatalf("unexpected events: %+v", evs)
	}
}

func TestAPIKeys(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	hash := repo.HashAPIKey(" secret ")
	if hash != repo.HashAPIKey("secret") {
		t.Fatal("hash should ignore surrounding whitespace")
	}
	if _, err := r.InsertAPIKey(ctx, domain.APIKey{ID: "k1", ActorID: "c1", Role: "client", KeyHash: hash}); err != nil {
		t.Fatalf("insert key: %v", err)
	}
	k, err := r.GetAPIKeyByHash(ctx, hash)
	if err != nil || k.ActorID != "c1" || k.Role != "client" {
		t.Fatalf("lookup key: %+v %v", k, err)
	}
	if err := r.DeleteAPIKey(ctx, "k1"); err != nil {
		t.Fatal(err)
	}
	if err := r.DeleteAPIKey(ctx, "k1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}
