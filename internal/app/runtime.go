// Package app wires configuration into a running store, engine and dashboard.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"crewline/internal/config"
	"crewline/internal/dashboard"
	"crewline/internal/db"
	"crewline/internal/engine"
	"crewline/internal/logging"
	"crewline/internal/metrics"
	"crewline/internal/migrate"
	"crewline/internal/notify"
	"crewline/internal/reconcile"
	"crewline/internal/store"
	"crewline/internal/store/postgrest"
	"crewline/internal/store/sqlstore"
)

type Options struct {
	Workspace string
	// Config overrides loading crewline.yml from the workspace.
	Config *config.Config
	Logger *logrus.Logger
	// Registry receives the coordinator metrics; a fresh one is created when nil.
	Registry *prometheus.Registry
}

type Runtime struct {
	Workspace string
	Config    *config.Config
	Store     store.Store
	Engine    engine.Engine
	Logger    *logrus.Logger
	Registry  *prometheus.Registry

	closers []func() error
}

// LoadEnv reads <workspace>/.env into the process environment. Variables that
// are already set win; a missing file is not an error.
func LoadEnv(workspace string) error {
	if workspace == "" {
		workspace = "."
	}
	err := godotenv.Load(filepath.Join(workspace, ".env"))
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Open builds a Runtime: config, store backend, engine with dashboard cache,
// metrics and notification sinks.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	if err := LoadEnv(opts.Workspace); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = config.LoadOptional(opts.Workspace); err != nil {
			return nil, err
		}
	}
	logger := opts.Logger
	if logger == nil {
		var err error
		if logger, err = logging.New(cfg.Log.Level, cfg.Log.Format); err != nil {
			return nil, err
		}
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	rt := &Runtime{Workspace: opts.Workspace, Config: cfg, Logger: logger, Registry: reg}
	s, err := rt.openStore(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Store = s

	eng := engine.New(s, cfg)
	eng.Logger = logger
	eng.Metrics = metrics.New(reg)
	eng.Dashboard = dashboard.New(eng.Repo, dashboard.Options{
		CacheSize: cfg.Dashboard.CacheSize,
		CacheTTL:  cfg.DashboardTTL(),
	}, logger)
	if hooks := Webhooks(cfg); len(hooks) > 0 {
		eng.Notifier = notify.Multi{eng.Notifier, notify.NewWebhookNotifier(hooks, nil)}
	}
	rt.Engine = eng
	return rt, nil
}

func (rt *Runtime) openStore(ctx context.Context) (store.Store, error) {
	cfg := rt.Config.Store
	switch cfg.Backend {
	case config.BackendPostgREST:
		key := os.Getenv(cfg.PostgREST.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("postgrest backend needs an api key in $%s", cfg.PostgREST.APIKeyEnv)
		}
		return postgrest.New(PostgRESTConfig(cfg.PostgREST, key, rt.Logger))
	default:
		conn, err := db.Open(db.Config{Workspace: rt.Workspace, Path: cfg.SQLite.Path})
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		rt.closers = append(rt.closers, conn.Close)
		applied, err := migrate.Migrate(ctx, conn)
		if err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		if applied > 0 {
			rt.Logger.WithField("applied", applied).Info("migrations applied")
		}
		return sqlstore.New(conn), nil
	}
}

// PostgRESTConfig translates the YAML section into client settings.
func PostgRESTConfig(c config.PostgRESTConfig, key string, logger logrus.FieldLogger) postgrest.Config {
	retry := postgrest.DefaultRetryConfig()
	retry.MaxRetries = c.Retry.MaxRetries
	if c.Retry.InitialBackoffMS > 0 {
		retry.InitialBackoff = time.Duration(c.Retry.InitialBackoffMS) * time.Millisecond
	}
	if c.Retry.MaxBackoffMS > 0 {
		retry.MaxBackoff = time.Duration(c.Retry.MaxBackoffMS) * time.Millisecond
	}
	breaker := postgrest.DefaultBreakerConfig()
	if c.Breaker.FailureThreshold > 0 {
		breaker.FailureThreshold = c.Breaker.FailureThreshold
	}
	if c.Breaker.SuccessThreshold > 0 {
		breaker.SuccessThreshold = c.Breaker.SuccessThreshold
	}
	if c.Breaker.OpenSeconds > 0 {
		breaker.Timeout = time.Duration(c.Breaker.OpenSeconds) * time.Second
	}
	if logger != nil {
		breaker.OnStateChange = func(from, to postgrest.CircuitState) {
			logger.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).Warn("postgrest circuit state changed")
		}
	}
	return postgrest.Config{
		URL:     c.URL,
		APIKey:  key,
		Timeout: time.Duration(c.TimeoutSeconds) * time.Second,
		Retry:   retry,
		Breaker: breaker,
	}
}

// Webhooks returns the active hooks from config.
func Webhooks(cfg *config.Config) []notify.Hook {
	var hooks []notify.Hook
	for _, w := range cfg.Notifications.Webhooks {
		if !w.Active() {
			continue
		}
		hooks = append(hooks, notify.Hook{
			URL:     w.URL,
			Kinds:   w.Kinds,
			Secret:  w.Secret,
			Timeout: time.Duration(w.TimeoutSeconds) * time.Second,
		})
	}
	return hooks
}

// Reconciler returns a worker on the configured schedule.
func (rt *Runtime) Reconciler() *reconcile.Worker {
	return &reconcile.Worker{
		Engine:   rt.Engine,
		Schedule: rt.Config.Reconcile.Schedule,
		Logger:   rt.Logger.WithField("component", "reconcile"),
	}
}

func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
