package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  host: localhost
  name: privacyguard
  user: pg
  password: pg
nats:
  url: nats://localhost:4222
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("db port = %d, want 5432", cfg.Database.Port)
	}
	if cfg.Provider.Model != "Facenet512" {
		t.Errorf("provider model = %q, want Facenet512", cfg.Provider.Model)
	}
	if cfg.Provider.Timeout != 30*time.Second {
		t.Errorf("provider timeout = %s, want 30s", cfg.Provider.Timeout)
	}
	if cfg.Pipeline.MaxAttempts != 5 {
		t.Errorf("max attempts = %d, want 5", cfg.Pipeline.MaxAttempts)
	}
	if cfg.Pipeline.BackoffBase != 2*time.Second || cfg.Pipeline.BackoffMax != 2*time.Minute {
		t.Errorf("backoff = %s/%s, want 2s/2m", cfg.Pipeline.BackoffBase, cfg.Pipeline.BackoffMax)
	}
	if cfg.Export.BlurSigma != 15 || cfg.Export.JPEGQuality != 90 {
		t.Errorf("export defaults = %v/%d, want 15/90", cfg.Export.BlurSigma, cfg.Export.JPEGQuality)
	}
	if cfg.Search.Threshold != 0.4 || cfg.Search.Limit != 10 {
		t.Errorf("search defaults = %v/%d, want 0.4/10", cfg.Search.Threshold, cfg.Search.Limit)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults = %s/%s, want info/json", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadReadsValues(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  api_key: secret
pipeline:
  worker_count: 8
  reindex_on_rename: true
search:
  exclude_rejected: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.APIKey != "secret" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Pipeline.WorkerCount != 8 {
		t.Errorf("worker count = %d, want 8", cfg.Pipeline.WorkerCount)
	}
	if !cfg.Pipeline.ReindexOnRename {
		t.Error("reindex_on_rename not read")
	}
	if !cfg.Search.ExcludeRejected {
		t.Error("exclude_rejected not read")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  host: confighost
`)

	t.Setenv("PG_SERVER_PORT", "7070")
	t.Setenv("PG_DB_HOST", "envhost")
	t.Setenv("PG_API_KEY", "envkey")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("server port = %d, want env override 7070", cfg.Server.Port)
	}
	if cfg.Database.Host != "envhost" {
		t.Errorf("db host = %q, want env override", cfg.Database.Host)
	}
	if cfg.Server.APIKey != "envkey" {
		t.Errorf("api key = %q, want env override", cfg.Server.APIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load accepted a missing file")
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, Name: "guard", User: "u", Password: "p"}
	want := "postgres://u:p@db:5432/guard?sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
