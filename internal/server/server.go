package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"crewline/internal/dashboard"
	"crewline/internal/engine"
	"crewline/internal/engine/auth"
	"crewline/internal/reconcile"
	"crewline/internal/status"
	"crewline/internal/store/postgrest"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   logrus.FieldLogger
	// Gatherer backs GET /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// Reconciler runs POST /reconcile; nil disables the endpoint.
	Reconciler *reconcile.Worker
	// Breaker reports the remote store circuit on /health when set.
	Breaker interface{ BreakerState() postgrest.CircuitState }
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"invalid project transition assigned -> work_submitted"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"from\":\"assigned\",\"to\":\"work_submitted\"}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the crewline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = cfg.Auth.logger()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = logger
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(requestLogger(logger))
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	if cfg.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	hcfg := huma.DefaultConfig("Crewline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group, cfg.Breaker)
	registerProjects(group, cfg.Engine)
	registerApplications(group, cfg.Engine)
	registerWork(group, cfg.Engine)
	registerReviews(group, cfg.Engine)
	registerReconcile(group, cfg.Engine, cfg.Reconciler)
	registerEvents(group, cfg.Engine)
	registerDashboard(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerMe(group)
	if cfg.Auth.DevLogin {
		registerDevAuth(group, cfg.Auth)
	}
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func requestLogger(logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			next.ServeHTTP(ww, r)
			entry := logger.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"duration":   time.Since(started).String(),
				"request_id": middleware.GetReqID(r.Context()),
			})
			if ww.Status() >= http.StatusInternalServerError {
				entry.Warn("request failed")
				return
			}
			entry.Info("request")
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": fe.Permission})
	}
	var te status.TransitionError
	if errors.As(err, &te) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{
			"entity": te.Entity,
			"from":   te.From,
			"to":     te.To,
		})
	}
	switch {
	case errors.Is(err, engine.ErrInvalidTransition):
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), nil)
	case errors.Is(err, engine.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrNoAssignedProfessional):
		return newAPIError(http.StatusUnprocessableEntity, "no_assigned_professional", err.Error(), nil)
	case errors.Is(err, engine.ErrDuplicateReview):
		return newAPIError(http.StatusConflict, "duplicate_review", err.Error(), nil)
	case errors.Is(err, engine.ErrDuplicateApplication):
		return newAPIError(http.StatusConflict, "duplicate_application", err.Error(), nil)
	case errors.Is(err, engine.ErrNotParty):
		return newAPIError(http.StatusForbidden, "not_party", err.Error(), nil)
	case errors.Is(err, engine.ErrInvalidInput), errors.Is(err, dashboard.ErrInvalidRole):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.Is(err, engine.ErrStoreUnavailable):
		return newAPIError(http.StatusServiceUnavailable, "store_unavailable", "store unavailable", map[string]any{"error": err.Error()})
	case errors.Is(err, reconcile.ErrBusy):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get(path.Join(basePath, "docs"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	open := map[string]bool{
		path.Join(basePath, "health"):         true,
		path.Join(basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <title>Crewline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => { SwaggerUIBundle({ url: '%s', dom_id: '#swagger-ui' }); };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API, breaker interface{ BreakerState() postgrest.CircuitState }) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body HealthResponse `json:"body"`
	}, error) {
		resp := HealthResponse{Status: "ok"}
		if breaker != nil {
			state := breaker.BreakerState()
			resp.Store = state.String()
			if state == postgrest.CircuitOpen {
				resp.Status = "degraded"
			}
		}
		return &struct {
			Body HealthResponse `json:"body"`
		}{Body: resp}, nil
	})
}

type projectPath struct {
	ProjectID string `path:"project_id"`
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body projectBody `json:"body"`
	}, error) {
		p, authErr := authorize(ctx, auth.PermProjectCreate)
		if authErr != nil {
			return nil, authErr
		}
		project, err := e.CreateProject(ctx, engine.CreateProjectOptions{
			ClientID:    p.ActorID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Budget:      input.Body.Budget,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body projectBody `json:"body"`
		}{Body: project}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ClientID   string `query:"client_id"`
		AssignedTo string `query:"assigned_to"`
		Status     string `query:"status"`
		Limit      int    `query:"limit" default:"50"`
	}) (*struct {
		Body ListProjectsResponse `json:"body"`
	}, error) {
		if _, authErr := authorize(ctx, auth.PermProjectRead); authErr != nil {
			return nil, authErr
		}
		items, err := e.ListProjects(ctx, engine.ProjectFilter{
			ClientID:   input.ClientID,
			AssignedTo: input.AssignedTo,
			Status:     status.ProjectStatus(input.Status),
			Limit:      normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ListProjectsResponse `json:"body"`
		}{Body: ListProjectsResponse{Items: nonNil(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body projectBody `json:"body"`
	}, error) {
		if _, authErr := authorize(ctx, auth.PermProjectRead); authErr != nil {
			return nil, authErr
		}
		p, err := e.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body projectBody `json:"body"`
		}{Body: p}, nil
	})

	registerProjectAction(api, e, "start-work", "/projects/{project_id}/start", "Start work on an assigned project", auth.PermWorkStart,
		func(ctx context.Context, e engine.Engine, projectID, actorID string) (projectBody, error) {
			return e.StartWork(ctx, engine.StartWorkOptions{ProjectID: projectID, ActorID: actorID})
		})
	registerProjectAction(api, e, "cancel-project", "/projects/{project_id}/cancel", "Cancel a project", auth.PermProjectCancel,
		func(ctx context.Context, e engine.Engine, projectID, actorID string) (projectBody, error) {
			return e.CancelProject(ctx, projectID, actorID)
		})
	registerProjectAction(api, e, "dispute-project", "/projects/{project_id}/dispute", "Open a dispute", auth.PermProjectDispute,
		func(ctx context.Context, e engine.Engine, projectID, actorID string) (projectBody, error) {
			return e.DisputeProject(ctx, projectID, actorID)
		})
}

// registerProjectAction registers a body-less POST that moves one project.
func registerProjectAction(api huma.API, e engine.Engine, id, route, summary, perm string,
	run func(ctx context.Context, e engine.Engine, projectID, actorID string) (projectBody, error)) {
	huma.Register(api, huma.Operation{
		OperationID: id,
		Method:      http.MethodPost,
		Path:        route,
		Summary:     summary,
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body projectBody `json:"body"`
	}, error) {
		p, authErr := authorize(ctx, perm)
		if authErr != nil {
			return nil, authErr
		}
		project, err := run(ctx, e, input.ProjectID, p.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body projectBody `json:"body"`
		}{Body: project}, nil
	})
}

func registerApplications(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-applications",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/applications",
		Summary:     "List applications of a project",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body ListApplicationsResponse `json:"body"`
	}, error) {
		if _, authErr := authorize(ctx, auth.PermProjectRead); authErr != nil {
			return nil, authErr
		}
		items, err := e.ListApplications(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ListApplicationsResponse `json:"body"`
		}{Body: ListApplicationsResponse{Items: nonNil(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "apply",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/applications",
		Summary:       "Apply to a project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProjectID string       `path:"project_id"`
		Body      ApplyRequest `json:"body"`
	}) (*struct {
		Body applicationBody `json:"body"`
	}, error) {
		p, authErr := authorize(ctx, auth.PermApplicationCreate)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.Apply(ctx, engine.ApplyOptions{ProjectID: input.ProjectID, ProfessionalID: p.ActorID, Proposal: input.Body.Proposal})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body applicationBody `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decide-application",
		Method:      http.MethodPost,
		Path:        "/applications/{application_id}/decision",
		Summary:     "Accept or reject an application",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		ApplicationID string          `path:"application_id"`
		Body          DecisionRequest `json:"body"`
	}) (*struct {
		Body DecisionResponse `json:"body"`
	}, error) {
		p, authErr := authorize(ctx, auth.PermApplicationDecide)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.Decide(ctx, engine.DecideOptions{
			ApplicationID: input.ApplicationID,
			Outcome:       engine.Outcome(input.Body.Outcome),
			ActorID:       p.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		res.Rejected = nonNil(res.Rejected)
		return &struct {
			Body DecisionResponse `json:"body"`
		}{Body: res}, nil
	})
}

func registerWork(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "submit-work",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/work",
		Summary:     "Submit work for review",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		Body      SubmitWorkRequest `json:"body"`
	}) (*struct {
		Body projectBody `json:"body"`
	}, error) {
		p, authErr := authorize(ctx, auth.PermWorkSubmit)
		if authErr != nil {
			return nil, authErr
		}
		project, err := e.SubmitWork(ctx, engine.SubmitWorkOptions{ProjectID: input.ProjectID, ActorID: p.ActorID, ArtifactRef: input.Body.ArtifactRef})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body projectBody `json:"body"`
		}{Body: project}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "request-revision",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/work/revision",
		Summary:     "Request changes to submitted work",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProjectID string          `path:"project_id"`
		Body      RevisionRequest `json:"body"`
	}) (*struct {
		Body projectBody `json:"body"`
	}, error) {
		p, authErr := authorize(ctx, auth.PermWorkReview)
		if authErr != nil {
			return nil, authErr
		}
		project, err := e.RequestRevision(ctx, engine.RevisionOptions{ProjectID: input.ProjectID, ActorID: p.ActorID, Notes: input.Body.Notes})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body projectBody `json:"body"`
		}{Body: project}, nil
	})

	registerProjectAction(api, e, "approve-work", "/projects/{project_id}/work/approve", "Approve submitted work and complete the project", auth.PermWorkReview,
		func(ctx context.Context, e engine.Engine, projectID, actorID string) (projectBody, error) {
			return e.ApproveWork(ctx, engine.ApproveOptions{ProjectID: projectID, ActorID: actorID})
		})
}

func registerReviews(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-review",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/reviews",
		Summary:       "Review the other party",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string        `path:"project_id"`
		Body      ReviewRequest `json:"body"`
	}) (*struct {
		Body ReviewResponse `json:"body"`
	}, error) {
		p, authErr := authorize(ctx, auth.PermReviewCreate)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.SubmitReview(ctx, engine.ReviewOptions{
			ProjectID:  input.ProjectID,
			ReviewerID: p.ActorID,
			Rating:     input.Body.Rating,
			Comment:    input.Body.Comment,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReviewResponse `json:"body"`
		}{Body: res}, nil
	})
}

func registerReconcile(api huma.API, e engine.Engine, worker *reconcile.Worker) {
	huma.Register(api, huma.Operation{
		OperationID: "reconcile-project",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/reconcile",
		Summary:     "Finish an interrupted acceptance",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body ReconcileResponse `json:"body"`
	}, error) {
		if _, authErr := authorize(ctx, auth.PermProjectReconcile); authErr != nil {
			return nil, authErr
		}
		res, err := e.Reconcile(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReconcileResponse `json:"body"`
		}{Body: res}, nil
	})

	if worker == nil {
		return
	}
	huma.Register(api, huma.Operation{
		OperationID: "reconcile-all",
		Method:      http.MethodPost,
		Path:        "/reconcile",
		Summary:     "Reconcile every assigned project",
		Errors:      []int{http.StatusForbidden, http.StatusConflict, http.StatusServiceUnavailable},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ReconcileAllResponse `json:"body"`
	}, error) {
		if _, authErr := authorize(ctx, auth.PermProjectReconcile); authErr != nil {
			return nil, authErr
		}
		sum, err := worker.RunOnce(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReconcileAllResponse `json:"body"`
		}{Body: sum}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/events",
		Summary:     "Project event log in append order",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Limit     int    `query:"limit" default:"50"`
	}) (*struct {
		Body ListEventsResponse `json:"body"`
	}, error) {
		if _, authErr := authorize(ctx, auth.PermEventsRead); authErr != nil {
			return nil, authErr
		}
		if _, err := e.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListEvents(ctx, input.ProjectID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ListEventsResponse `json:"body"`
		}{Body: ListEventsResponse{Items: nonNil(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "Notifications for the caller, newest first",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"50"`
	}) (*struct {
		Body ListNotificationsResponse `json:"body"`
	}, error) {
		p, authErr := authorize(ctx, auth.PermDashboardRead)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListNotifications(ctx, p.ActorID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ListNotificationsResponse `json:"body"`
		}{Body: ListNotificationsResponse{Items: nonNil(items)}}, nil
	})
}

func registerDashboard(api huma.API, e engine.Engine) {
	agg := e.Dashboard
	if agg == nil {
		agg = dashboard.New(e.Repo, dashboard.Options{}, e.Logger)
	}
	huma.Register(api, huma.Operation{
		OperationID: "dashboard",
		Method:      http.MethodGet,
		Path:        "/dashboard",
		Summary:     "Dashboard snapshot for the caller",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Role    string `query:"role" enum:"client,professional"`
		Refresh bool   `query:"refresh"`
	}) (*struct {
		Body DashboardResponse `json:"body"`
	}, error) {
		p, authErr := authorize(ctx, auth.PermDashboardRead)
		if authErr != nil {
			return nil, authErr
		}
		role := p.Role
		if input.Role != "" {
			role = domainRole(input.Role)
		}
		load := agg.LoadSnapshot
		if input.Refresh {
			load = agg.Refresh
		}
		snap, err := load(ctx, p.ActorID, role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DashboardResponse `json:"body"`
		}{Body: DashboardResponse{ActorID: p.ActorID, Role: role, Snapshot: snap}}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Create an API key",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		if _, authErr := authorize(ctx, auth.PermAPIKeyManage); authErr != nil {
			return nil, authErr
		}
		key, raw, err := e.CreateAPIKey(ctx, engine.CreateAPIKeyOptions{
			ActorID: input.Body.ActorID,
			Role:    domainRole(input.Body.Role),
			Name:    input.Body.Name,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := apiKeyResponse(key)
		resp.Key = raw
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List API keys",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ActorID string `query:"actor_id"`
	}) (*struct {
		Body ListAPIKeysResponse `json:"body"`
	}, error) {
		if _, authErr := authorize(ctx, auth.PermAPIKeyManage); authErr != nil {
			return nil, authErr
		}
		keys, err := e.ListAPIKeys(ctx, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := ListAPIKeysResponse{Items: []APIKeyResponse{}}
		for _, k := range keys {
			resp.Items = append(resp.Items, apiKeyResponse(k))
		}
		return &struct {
			Body ListAPIKeysResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-api-key",
		Method:        http.MethodDelete,
		Path:          "/api-keys/{key_id}",
		Summary:       "Revoke an API key",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		if _, authErr := authorize(ctx, auth.PermAPIKeyManage); authErr != nil {
			return nil, authErr
		}
		if err := e.RevokeAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		source, _ := ctx.Value(sourceKey{}).(string)
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			ActorID:     p.ActorID,
			Role:        p.Role,
			Source:      source,
			Permissions: nonNil(auth.Permissions(p.Role)),
		}}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := SignToken(authCfg.JWTSecret, actor, domainRole(input.Body.Role), time.Hour)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
