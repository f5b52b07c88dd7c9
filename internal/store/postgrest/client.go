// Package postgrest implements store.Store against a Supabase REST endpoint.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"crewline/internal/store"
)

const maxErrorBody = 4 << 10

type Config struct {
	URL        string
	APIKey     string
	Timeout    time.Duration
	Retry      RetryConfig
	Breaker    BreakerConfig
	HTTPClient *http.Client
}

// Client speaks the PostgREST dialect under /rest/v1.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *Breaker
}

var _ store.Store = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("postgrest url is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("postgrest api key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	var base http.RoundTripper
	if cfg.HTTPClient != nil {
		base = cfg.HTTPClient.Transport
	}
	breaker := NewBreaker(cfg.Breaker)
	return &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: newResilientTransport(base, cfg.Retry, breaker),
		},
		breaker: breaker,
	}, nil
}

// BreakerState exposes the circuit state for health reporting.
func (c *Client) BreakerState() CircuitState {
	return c.breaker.State()
}

type tokenKey struct{}

// WithAccessToken makes requests on ctx carry the end user's JWT so row-level security applies.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func (c *Client) Select(ctx context.Context, collection string, where store.Predicate, opts ...store.SelectOption) ([]store.Row, error) {
	if err := store.Validate(collection, where); err != nil {
		return nil, err
	}
	params := encodeFilters(where)
	params.Set("select", "*")
	q := store.BuildQuery(opts...)
	if q.OrderBy != "" {
		if !store.ValidIdent(q.OrderBy) {
			return nil, fmt.Errorf("%w: order %q", store.ErrInvalidColumn, q.OrderBy)
		}
		params.Set("order", q.OrderBy+"."+string(q.Dir))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	return c.do(ctx, "select", http.MethodGet, collection, params, nil)
}

func (c *Client) Insert(ctx context.Context, collection string, rows []store.Row) ([]store.Row, error) {
	if err := store.Validate(collection, nil); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []store.Row{}, nil
	}
	for _, r := range rows {
		if err := store.ValidateRow(r); err != nil {
			return nil, err
		}
	}
	return c.do(ctx, "insert", http.MethodPost, collection, url.Values{}, rows)
}

func (c *Client) Update(ctx context.Context, collection string, patch store.Row, where store.Predicate) (int, error) {
	if err := store.Validate(collection, where); err != nil {
		return 0, err
	}
	if err := store.ValidateRow(patch); err != nil {
		return 0, err
	}
	if len(patch) == 0 {
		return 0, errors.New("update with empty patch")
	}
	out, err := c.do(ctx, "update", http.MethodPatch, collection, encodeFilters(where), patch)
	if err != nil {
		return 0, err
	}
	return len(out), nil
}

func (c *Client) Delete(ctx context.Context, collection string, where store.Predicate) (int, error) {
	if err := store.Validate(collection, where); err != nil {
		return 0, err
	}
	out, err := c.do(ctx, "delete", http.MethodDelete, collection, encodeFilters(where), nil)
	if err != nil {
		return 0, err
	}
	return len(out), nil
}

func (c *Client) do(ctx context.Context, op, method, collection string, params url.Values, body any) ([]store.Row, error) {
	reqURL := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, collection)
	if encoded := params.Encode(); encoded != "" {
		reqURL += "?" + encoded
	}
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s body: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.apiKey)
	token := c.apiKey
	if t, ok := ctx.Value(tokenKey{}).(string); ok && t != "" {
		token = t
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, store.Unavailable(op, collection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, statusError(op, collection, resp.StatusCode, raw)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, store.Unavailable(op, collection, err)
	}
	out := []store.Row{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s %s response: %w", op, collection, err)
	}
	return out, nil
}

// APIError is a PostgREST error body.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("postgrest status %d", e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("postgrest status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("postgrest status %d: %s", e.Status, e.Message)
}

func statusError(op, collection string, status int, raw []byte) error {
	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	switch {
	case status == http.StatusConflict || apiErr.Code == "23505":
		return fmt.Errorf("%s %s: %w: %v", op, collection, store.ErrConflict, apiErr)
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return store.Unavailable(op, collection, apiErr)
	}
	return fmt.Errorf("%s %s: %w", op, collection, apiErr)
}

func encodeFilters(where store.Predicate) url.Values {
	params := url.Values{}
	for _, c := range where {
		switch c.Op {
		case store.OpEq:
			if c.Value == nil {
				params.Add(c.Column, "is.null")
				continue
			}
			params.Add(c.Column, "eq."+formatValue(c.Value))
		case store.OpNeq:
			if c.Value == nil {
				params.Add(c.Column, "not.is.null")
				continue
			}
			params.Add(c.Column, "neq."+formatValue(c.Value))
		case store.OpIn:
			quoted := make([]string, len(c.Values))
			for i, v := range c.Values {
				quoted[i] = quoteListValue(formatValue(v))
			}
			params.Add(c.Column, "in.("+strings.Join(quoted, ",")+")")
		case store.OpIsNull:
			params.Add(c.Column, "is.null")
		case store.OpNotNull:
			params.Add(c.Column, "not.is.null")
		}
	}
	return params
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprintf("%v", v)
}

func quoteListValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
