package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Store.Backend != BackendSQLite || cfg.Reviews.ArchivePolicy != ArchiveFirstReview {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.DashboardTTL().Seconds() != 30 {
		t.Fatalf("unexpected ttl %v", cfg.DashboardTTL())
	}
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("reviews:\n  archive_policy: all_reviews\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Reviews.ArchivePolicy != ArchiveAllReviews {
		t.Fatalf("policy not applied: %s", cfg.Reviews.ArchivePolicy)
	}
	if cfg.Server.BasePath != "/v0" {
		t.Fatalf("default base path lost: %q", cfg.Server.BasePath)
	}
}

func TestValidateErrors(t *testing.T) {
	cases := map[string]string{
		"store:\n  backend: mongo\n":                                    "backend",
		"store:\n  backend: postgrest\n":                                "postgrest.url",
		"reviews:\n  archive_policy: never\n":                           "archive_policy",
		"reconcile:\n  enabled: true\n  schedule: every now and then\n": "schedule",
		"notifications:\n  webhooks:\n    - url: \"\"\n":                "url is required",
	}
	for doc, want := range cases {
		_, err := FromYAML([]byte(doc))
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("%q: expected error containing %q, got %v", doc, want, err)
		}
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg == nil {
		t.Fatalf("missing file should yield defaults: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("Load should fail without a file")
	}
	yml := "store:\n  backend: postgrest\n  postgrest:\n    url: https://example.supabase.co\n"
	if err := os.WriteFile(filepath.Join(dir, "crewline.yml"), []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.PostgREST.APIKeyEnv != "CREWLINE_POSTGREST_KEY" || cfg.Store.PostgREST.Retry.MaxRetries != 3 {
		t.Fatalf("postgrest defaults lost: %+v", cfg.Store.PostgREST)
	}
}

func TestWebhookActive(t *testing.T) {
	off := false
	if (WebhookConfig{URL: "http://x", Enabled: &off}).Active() {
		t.Fatal("disabled hook reported active")
	}
	if !(WebhookConfig{URL: "http://x"}).Active() {
		t.Fatal("hook without enabled flag should be active")
	}
}
