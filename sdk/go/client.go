package crewlinesdk

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
)

// Client is a minimal Crewline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Project represents the API project model.
type Project struct {
	ID              string  `json:"id"`
	ClientID        string  `json:"client_id"`
	AssignedTo      *string `json:"assigned_to,omitempty"`
	Title           string  `json:"title"`
	Description     string  `json:"description,omitempty"`
	Budget          float64 `json:"budget"`
	Status          string  `json:"status"`
	WorkState       *string `json:"work_state,omitempty"`
	WorkArtifact    *string `json:"work_artifact,omitempty"`
	RevisionNotes   *string `json:"revision_notes,omitempty"`
	WorkSubmittedAt *string `json:"work_submitted_at,omitempty"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
	CompletedAt     *string `json:"completed_at,omitempty"`
}

type Application struct {
	ID             string `json:"id"`
	ProjectID      string `json:"project_id"`
	ProfessionalID string `json:"professional_id"`
	Status         string `json:"status"`
	Proposal       string `json:"proposal,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

type Review struct {
	ID           string `json:"id"`
	ProjectID    string `json:"project_id"`
	ReviewerID   string `json:"reviewer_id"`
	ReviewerRole string `json:"reviewer_role"`
	Rating       int    `json:"rating"`
	Comment      string `json:"comment,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type Notification struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Kind      string `json:"kind"`
	CreatedAt string `json:"created_at"`
}

type Decision struct {
	Application Application `json:"application"`
	Project     Project     `json:"project"`
	Rejected    []string    `json:"rejected"`
	Resumed     bool        `json:"resumed"`
	Noop        bool        `json:"noop"`
}

type ReviewResult struct {
	Review   Review  `json:"review"`
	Project  Project `json:"project"`
	Archived bool    `json:"archived"`
}

type ReconcileResult struct {
	ProjectID string   `json:"project_id"`
	Steps     []string `json:"steps"`
	Rejected  []string `json:"rejected,omitempty"`
	Issue     string   `json:"issue,omitempty"`
}

type Dashboard struct {
	ActorID      string           `json:"actor_id"`
	Role         string           `json:"role"`
	Projects     []Project        `json:"projects"`
	Applications []Application    `json:"applications"`
	Payments     []map[string]any `json:"payments"`
	Reviews      []Review         `json:"reviews"`
}

type Me struct {
	ActorID     string   `json:"actor_id"`
	Role        string   `json:"role"`
	Source      string   `json:"source"`
	Permissions []string `json:"permissions"`
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// CreateProject creates a project owned by the caller.
func (c *Client) CreateProject(ctx context.Context, title, description string, budget float64) (Project, error) {
	body := map[string]any{
		"title":       title,
		"description": description,
		"budget":      budget,
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "projects", body, &resp)
	return resp, err
}

type ProjectQuery struct {
	ClientID   string
	AssignedTo string
	Status     string
	Limit      int
}

func (c *Client) ListProjects(ctx context.Context, q ProjectQuery) ([]Project, error) {
	v := url.Values{}
	if q.ClientID != "" {
		v.Set("client_id", q.ClientID)
	}
	if q.AssignedTo != "" {
		v.Set("assigned_to", q.AssignedTo)
	}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	endpoint := "projects"
	if len(v) > 0 {
		endpoint += "?" + v.Encode()
	}
	var resp struct {
		Items []Project `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, projectPath(id, ""), nil, &resp)
	return resp, err
}

// Apply submits the caller's application to an open project.
func (c *Client) Apply(ctx context.Context, projectID, proposal string) (Application, error) {
	var resp Application
	err := c.do(ctx, http.MethodPost, projectPath(projectID, "applications"), map[string]any{"proposal": proposal}, &resp)
	return resp, err
}

func (c *Client) ListApplications(ctx context.Context, projectID string) ([]Application, error) {
	var resp struct {
		Items []Application `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, projectPath(projectID, "applications"), nil, &resp)
	return resp.Items, err
}

// Accept accepts an application and rejects the project's other pending ones.
func (c *Client) Accept(ctx context.Context, applicationID string) (Decision, error) {
	return c.decide(ctx, applicationID, "accept")
}

func (c *Client) Reject(ctx context.Context, applicationID string) (Decision, error) {
	return c.decide(ctx, applicationID, "reject")
}

func (c *Client) decide(ctx context.Context, applicationID, outcome string) (Decision, error) {
	var resp Decision
	endpoint := fmt.Sprintf("applications/%s/decision", url.PathEscape(applicationID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"outcome": outcome}, &resp)
	return resp, err
}

func (c *Client) StartWork(ctx context.Context, projectID string) (Project, error) {
	return c.projectAction(ctx, projectID, "start", nil)
}

func (c *Client) SubmitWork(ctx context.Context, projectID, artifactRef string) (Project, error) {
	return c.projectAction(ctx, projectID, "work", map[string]any{"artifact_ref": artifactRef})
}

func (c *Client) RequestRevision(ctx context.Context, projectID, notes string) (Project, error) {
	return c.projectAction(ctx, projectID, "work/revision", map[string]any{"notes": notes})
}

// ApproveWork approves the delivery; the returned project is completed.
func (c *Client) ApproveWork(ctx context.Context, projectID string) (Project, error) {
	return c.projectAction(ctx, projectID, "work/approve", nil)
}

func (c *Client) CancelProject(ctx context.Context, projectID string) (Project, error) {
	return c.projectAction(ctx, projectID, "cancel", nil)
}

func (c *Client) DisputeProject(ctx context.Context, projectID string) (Project, error) {
	return c.projectAction(ctx, projectID, "dispute", nil)
}

func (c *Client) SubmitReview(ctx context.Context, projectID string, rating int, comment string) (ReviewResult, error) {
	var resp ReviewResult
	body := map[string]any{"rating": rating, "comment": comment}
	err := c.do(ctx, http.MethodPost, projectPath(projectID, "reviews"), body, &resp)
	return resp, err
}

func (c *Client) Reconcile(ctx context.Context, projectID string) (ReconcileResult, error) {
	var resp ReconcileResult
	err := c.do(ctx, http.MethodPost, projectPath(projectID, "reconcile"), nil, &resp)
	return resp, err
}

// Events returns a project's events in append order.
func (c *Client) Events(ctx context.Context, projectID string, limit int) ([]Event, error) {
	endpoint := projectPath(projectID, "events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Items []Event `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) Notifications(ctx context.Context, limit int) ([]Notification, error) {
	endpoint := "notifications"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Items []Notification `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Dashboard loads the caller's snapshot; an empty role uses the caller's own.
func (c *Client) Dashboard(ctx context.Context, role string) (Dashboard, error) {
	endpoint := "dashboard"
	if role != "" {
		endpoint += "?role=" + url.QueryEscape(role)
	}
	var resp Dashboard
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) Me(ctx context.Context) (Me, error) {
	var resp Me
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

func (c *Client) projectAction(ctx context.Context, projectID, action string, body any) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, projectPath(projectID, action), body, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func projectPath(id, p string) string {
	if p == "" {
		return "projects/" + url.PathEscape(id)
	}
	return fmt.Sprintf("projects/%s/%s", url.PathEscape(id), strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if c.BasePath != "" {
		base += "/" + strings.Trim(c.BasePath, "/")
	}
	return base
}
