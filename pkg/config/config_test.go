package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadParsesYAML(t *testing.T) {
	p := writeConfig(t, `
server:
  address: 127.0.0.1
  port: 9090
storage:
  db_path: /tmp/branchchat-db
upstream:
  base_url: https://example.test/v1
  model: test/model
  reasoning_effort: high
  timeout_seconds: 30
  cooldown_minutes: 10
  max_messages: 5
logging:
  level: debug
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr() != "127.0.0.1:9090" {
		t.Fatalf("Addr: %q", cfg.Addr())
	}
	if cfg.Storage.DBPath != "/tmp/branchchat-db" {
		t.Fatalf("DBPath: %q", cfg.Storage.DBPath)
	}
	if cfg.UpstreamBaseURL() != "https://example.test/v1" || cfg.UpstreamModel() != "test/model" {
		t.Fatalf("upstream not parsed: %q %q", cfg.UpstreamBaseURL(), cfg.UpstreamModel())
	}
	if cfg.UpstreamTimeout() != 30*time.Second {
		t.Fatalf("timeout: %v", cfg.UpstreamTimeout())
	}
	if cfg.CooldownWindow() != 10*time.Minute {
		t.Fatalf("cooldown: %v", cfg.CooldownWindow())
	}
	if cfg.MaxMessages() != 5 {
		t.Fatalf("max messages: %d", cfg.MaxMessages())
	}
}

func TestDefaults(t *testing.T) {
	var cfg Config
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Fatalf("default addr: %q", cfg.Addr())
	}
	if cfg.UpstreamBaseURL() != "https://openrouter.ai/api/v1" {
		t.Fatalf("default base url: %q", cfg.UpstreamBaseURL())
	}
	if cfg.UpstreamModel() == "" {
		t.Fatalf("default model must not be empty")
	}
	if cfg.UpstreamTimeout() != 120*time.Second {
		t.Fatalf("default timeout: %v", cfg.UpstreamTimeout())
	}
	if cfg.CooldownWindow() != 5*time.Minute {
		t.Fatalf("default cooldown: %v", cfg.CooldownWindow())
	}
	if cfg.MaxMessages() != 60 {
		t.Fatalf("default max messages: %d", cfg.MaxMessages())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BRANCHCHAT_ADDR", "10.0.0.1:9000")
	t.Setenv("BRANCHCHAT_DB_PATH", "/data/db")
	t.Setenv("BRANCHCHAT_MODEL", "env/model")
	t.Setenv("BRANCHCHAT_COOLDOWN_MINUTES", "7")

	var cfg Config
	if !LoadEnvOverrides(&cfg) {
		t.Fatalf("env overrides not detected")
	}
	if cfg.Addr() != "10.0.0.1:9000" {
		t.Fatalf("addr override: %q", cfg.Addr())
	}
	if cfg.Storage.DBPath != "/data/db" {
		t.Fatalf("db path override: %q", cfg.Storage.DBPath)
	}
	if cfg.UpstreamModel() != "env/model" {
		t.Fatalf("model override: %q", cfg.UpstreamModel())
	}
	if cfg.CooldownWindow() != 7*time.Minute {
		t.Fatalf("cooldown override: %v", cfg.CooldownWindow())
	}
}

func TestLoadEffectiveMissingFile(t *testing.T) {
	res, err := LoadEffective(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("missing config must not be fatal: %v", err)
	}
	if res.Config == nil {
		t.Fatalf("expected empty config")
	}
	if res.Addr != "0.0.0.0:8080" {
		t.Fatalf("default addr: %q", res.Addr)
	}
}

func TestResolveConfigPath(t *testing.T) {
	if got := ResolveConfigPath("/from/flag", true); got != "/from/flag" {
		t.Fatalf("explicit flag must win: %q", got)
	}
	t.Setenv("BRANCHCHAT_CONFIG", "/from/env")
	if got := ResolveConfigPath("./config.yaml", false); got != "/from/env" {
		t.Fatalf("env should apply when flag unset: %q", got)
	}
}
