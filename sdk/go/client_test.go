package crewlinesdk_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crewline/internal/config"
	"crewline/internal/domain"
	"crewline/internal/engine"
	"crewline/internal/server"
	"crewline/internal/store/storetest"
	crewlinesdk "crewline/sdk/go"
)

const secret = "sdk-secret"

func newClient(t *testing.T, baseURL, actor string, role domain.Role) *crewlinesdk.Client {
	t.Helper()
	token, err := server.SignToken(secret, actor, role, time.Hour)
	require.NoError(t, err)
	c := crewlinesdk.New(baseURL)
	c.BearerToken = token
	return c
}

func TestClientLifecycle(t *testing.T) {
	e := engine.New(storetest.NewSQLite(t), config.Default())
	handler, err := server.New(server.Config{Engine: e, BasePath: "/v0", Auth: server.AuthConfig{JWTSecret: secret}})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	ctx := context.Background()
	cl := newClient(t, srv.URL, "client-1", domain.RoleClient)
	pro := newClient(t, srv.URL, "pro-1", domain.RoleProfessional)

	p, err := cl.CreateProject(ctx, "Fence", "cedar, 20m", 900)
	require.NoError(t, err)
	assert.Equal(t, "open", p.Status)

	app, err := pro.Apply(ctx, p.ID, "next week")
	require.NoError(t, err)
	_, err = pro.Apply(ctx, p.ID, "again")
	assert.True(t, crewlinesdk.IsCode(err, "duplicate_application"), "%v", err)

	dec, err := cl.Accept(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, "assigned", dec.Project.Status)

	_, err = pro.StartWork(ctx, p.ID)
	require.NoError(t, err)
	_, err = pro.SubmitWork(ctx, p.ID, "photos/fence.jpg")
	require.NoError(t, err)
	done, err := cl.ApproveWork(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", done.Status)

	res, err := pro.SubmitReview(ctx, p.ID, 5, "prompt payment")
	require.NoError(t, err)
	assert.Equal(t, "professional", res.Review.ReviewerRole)
	assert.True(t, res.Archived)

	_, err = cl.SubmitReview(ctx, p.ID, 4, "")
	require.NoError(t, err)
	_, err = cl.SubmitReview(ctx, p.ID, 4, "")
	assert.True(t, crewlinesdk.IsCode(err, "duplicate_review"), "%v", err)

	items, err := cl.ListProjects(ctx, crewlinesdk.ProjectQuery{ClientID: "client-1", Status: "archived"})
	require.NoError(t, err)
	require.Len(t, items, 1)

	evts, err := cl.Events(ctx, p.ID, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, evts)

	notes, err := pro.Notifications(ctx, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, notes)

	me, err := pro.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pro-1", me.ActorID)

	dash, err := cl.Dashboard(ctx, "")
	require.NoError(t, err)
	assert.Len(t, dash.Projects, 1)
}

func TestAPIErrorDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/projects/p1", r.URL.Path)
		assert.Equal(t, "k1", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":{"code":"invalid_transition","message":"nope","details":{"from":"open"}}}`))
	}))
	defer srv.Close()

	c := crewlinesdk.New(srv.URL)
	c.APIKey = "k1"
	_, err := c.GetProject(context.Background(), "p1")
	var apiErr *crewlinesdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "invalid_transition", apiErr.Code)
	assert.Equal(t, "open", apiErr.Details["from"])
}
