package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu  sync.Mutex
	got []Notification
	err error
}

func (r *recordingSink) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return r.err
}

func TestMultiDeliversToAllAndJoinsErrors(t *testing.T) {
	ok := &recordingSink{}
	bad := &recordingSink{err: errors.New("sink down")}
	m := Multi{bad, nil, ok}
	err := m.Notify(context.Background(), Notification{UserID: "u1", Kind: KindWorkApproved})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink down")
	assert.Len(t, ok.got, 1)
	assert.Len(t, bad.got, 1)
}

func TestWebhookFiltersByKind(t *testing.T) {
	var (
		mu    sync.Mutex
		kinds []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body webhookBody
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "s3cret", r.Header.Get("X-Crewline-Secret"))
		mu.Lock()
		kinds = append(kinds, body.Kind)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhookNotifier([]Hook{
		{URL: srv.URL, Kinds: []string{KindApplicationAccepted}, Secret: "s3cret"},
		{URL: "  "},
	}, srv.Client())
	ctx := context.Background()
	require.NoError(t, w.Notify(ctx, Notification{UserID: "u1", Kind: KindApplicationAccepted, ProjectID: "p1"}))
	require.NoError(t, w.Notify(ctx, Notification{UserID: "u1", Kind: KindApplicationRejected}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{KindApplicationAccepted}, kinds)
}

func TestWebhookReportsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()
	w := NewWebhookNotifier([]Hook{{URL: srv.URL}}, srv.Client())
	err := w.Notify(context.Background(), Notification{UserID: "u1", Kind: KindReviewReceived})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}
