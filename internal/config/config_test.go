package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadReadsYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: "9090"
redis:
  addr: localhost:6379
  ttl: 5m
scoring:
  url: http://grader.local/api
  timeout: 3s
attempt:
  tick: 500ms
log:
  level: debug
  pretty: true
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("POSTGRES_URL", "postgres://quiz@db/quizdb")
	t.Setenv("REDIS_DB", "2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected server/redis config %+v", cfg)
	}
	if cfg.Postgres.URL != "postgres://quiz@db/quizdb" || cfg.Redis.DB != 2 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.Scoring.URL != "http://grader.local/api" || !cfg.Log.Pretty || cfg.Log.Level != "debug" {
		t.Fatalf("unexpected scoring/log config %+v", cfg)
	}
	if Duration(cfg.Attempt.Tick, time.Second) != 500*time.Millisecond {
		t.Fatalf("unexpected tick %q", cfg.Attempt.Tick)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestDurationFallback(t *testing.T) {
	if Duration("", time.Minute) != time.Minute {
		t.Fatalf("empty should fall back")
	}
	if Duration("soon", time.Minute) != time.Minute {
		t.Fatalf("garbage should fall back")
	}
	if Duration("-5s", time.Minute) != time.Minute {
		t.Fatalf("negative should fall back")
	}
	if Duration("90s", time.Minute) != 90*time.Second {
		t.Fatalf("expected parsed duration")
	}
}
