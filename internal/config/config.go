package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	BackendSQLite    = "sqlite"
	BackendPostgREST = "postgrest"

	ArchiveFirstReview = "first_review"
	ArchiveAllReviews  = "all_reviews"
)

// Config models crewline.yml.
type Config struct {
	Store struct {
		Backend string `yaml:"backend"`
		SQLite  struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`
		PostgREST PostgRESTConfig `yaml:"postgrest"`
	} `yaml:"store"`
	Reviews struct {
		ArchivePolicy string `yaml:"archive_policy"`
	} `yaml:"reviews"`
	Dashboard struct {
		CacheSize       int `yaml:"cache_size"`
		CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
	} `yaml:"dashboard"`
	Reconcile struct {
		Enabled  bool   `yaml:"enabled"`
		Schedule string `yaml:"schedule"`
	} `yaml:"reconcile"`
	Notifications struct {
		Webhooks []WebhookConfig `yaml:"webhooks"`
	} `yaml:"notifications"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

type PostgRESTConfig struct {
	URL            string `yaml:"url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Retry          struct {
		MaxRetries       int `yaml:"max_retries"`
		InitialBackoffMS int `yaml:"initial_backoff_ms"`
		MaxBackoffMS     int `yaml:"max_backoff_ms"`
	} `yaml:"retry"`
	Breaker struct {
		FailureThreshold int `yaml:"failure_threshold"`
		SuccessThreshold int `yaml:"success_threshold"`
		OpenSeconds      int `yaml:"open_seconds"`
	} `yaml:"breaker"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Kinds          []string `yaml:"kinds"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Active reports whether the hook should receive deliveries.
func (w WebhookConfig) Active() bool {
	return (w.Enabled == nil || *w.Enabled) && strings.TrimSpace(w.URL) != ""
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with crewline init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendSQLite:
	case BackendPostgREST:
		if c.Store.PostgREST.URL == "" {
			return fmt.Errorf("config.store.postgrest.url is required for backend postgrest")
		}
		if _, err := url.ParseRequestURI(c.Store.PostgREST.URL); err != nil {
			return fmt.Errorf("config.store.postgrest.url: %w", err)
		}
		if c.Store.PostgREST.APIKeyEnv == "" {
			return fmt.Errorf("config.store.postgrest.api_key_env is required for backend postgrest")
		}
	default:
		return fmt.Errorf("config.store.backend must be 'sqlite' or 'postgrest'")
	}
	switch c.Reviews.ArchivePolicy {
	case ArchiveFirstReview, ArchiveAllReviews:
	default:
		return fmt.Errorf("config.reviews.archive_policy must be '%s' or '%s'", ArchiveFirstReview, ArchiveAllReviews)
	}
	if c.Dashboard.CacheSize < 0 || c.Dashboard.CacheTTLSeconds < 0 {
		return fmt.Errorf("config.dashboard values must not be negative")
	}
	if c.Reconcile.Enabled {
		if _, err := cron.ParseStandard(c.Reconcile.Schedule); err != nil {
			return fmt.Errorf("config.reconcile.schedule: %w", err)
		}
	}
	for i, hook := range c.Notifications.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.notifications.webhooks[%d].url is required", i)
		}
		for _, k := range hook.Kinds {
			if strings.TrimSpace(k) == "" {
				return fmt.Errorf("config.notifications.webhooks[%d] has empty kind", i)
			}
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.notifications.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

func (c *Config) DashboardTTL() time.Duration {
	return time.Duration(c.Dashboard.CacheTTLSeconds) * time.Second
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "crewline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys left out
// keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `store:
  backend: sqlite
  postgrest:
    api_key_env: CREWLINE_POSTGREST_KEY
    timeout_seconds: 30
    retry:
      max_retries: 3
      initial_backoff_ms: 100
      max_backoff_ms: 10000
    breaker:
      failure_threshold: 5
      success_threshold: 2
      open_seconds: 30

reviews:
  archive_policy: first_review

dashboard:
  cache_size: 256
  cache_ttl_seconds: 30

reconcile:
  enabled: true
  schedule: "*/5 * * * *"

notifications:
  webhooks: []

server:
  addr: 127.0.0.1:8080
  base_path: /v0

log:
  level: info
  format: text
`
