package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultWebhookTimeout = 5 * time.Second

type Hook struct {
	URL     string
	Kinds   []string
	Secret  string
	Timeout time.Duration
}

// WebhookNotifier posts each notification as JSON to every hook whose kind filter matches.
type WebhookNotifier struct {
	hooks  []Hook
	client *http.Client
	now    func() time.Time
}

func NewWebhookNotifier(hooks []Hook, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{}
	}
	var active []Hook
	for _, h := range hooks {
		if strings.TrimSpace(h.URL) == "" {
			continue
		}
		active = append(active, h)
	}
	return &WebhookNotifier{hooks: active, client: client, now: time.Now}
}

type webhookBody struct {
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Kind      string `json:"kind"`
	ProjectID string `json:"project_id,omitempty"`
	TS        string `json:"ts"`
}

func (w *WebhookNotifier) Notify(ctx context.Context, n Notification) error {
	data, err := json.Marshal(webhookBody{
		UserID:    n.UserID,
		Title:     n.Title,
		Message:   n.Message,
		Kind:      n.Kind,
		ProjectID: n.ProjectID,
		TS:        w.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	var errs []error
	for _, h := range w.hooks {
		if !newKindFilter(h.Kinds).match(n.Kind) {
			continue
		}
		if err := w.post(ctx, h, n.Kind, data); err != nil {
			errs = append(errs, fmt.Errorf("webhook %s: %w", h.URL, err))
		}
	}
	return errors.Join(errs...)
}

func (w *WebhookNotifier) post(ctx context.Context, h Hook, kind string, data []byte) error {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Crewline-Kind", kind)
	if strings.TrimSpace(h.Secret) != "" {
		req.Header.Set("X-Crewline-Secret", h.Secret)
	}
	res, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type kindFilter struct {
	all bool
	set map[string]struct{}
}

func newKindFilter(kinds []string) kindFilter {
	set := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		if k = strings.TrimSpace(k); k != "" {
			set[k] = struct{}{}
		}
	}
	if len(set) == 0 {
		return kindFilter{all: true}
	}
	return kindFilter{set: set}
}

func (f kindFilter) match(kind string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[kind]
	return ok
}
