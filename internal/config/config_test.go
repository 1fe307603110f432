package config

import (
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("Y_AGENT_HOME", home)
	t.Setenv("JWT_SECRET_KEY", "s3cret")
	t.Setenv("Y_AGENT_ADDR", "")
	t.Setenv("Y_AGENT_DB", "")
	t.Setenv("Y_AGENT_SPOOL", "")
	t.Setenv("Y_AGENT_TOOL_RUNTIME", "")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":8787" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.DBPath != filepath.Join(home, "y-agent.db") {
		t.Fatalf("db path = %q", cfg.DBPath)
	}
	if cfg.SpoolDir != filepath.Join(home, "spool") {
		t.Fatalf("spool = %q", cfg.SpoolDir)
	}
	if cfg.ToolRuntime != "local" {
		t.Fatalf("runtime = %q", cfg.ToolRuntime)
	}
	if cfg.JWTSecret != "s3cret" {
		t.Fatalf("secret = %q", cfg.JWTSecret)
	}
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("Y_AGENT_HOME", t.TempDir())
	t.Setenv("JWT_SECRET_KEY", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected an error without JWT_SECRET_KEY")
	}
}

func TestEnvInt(t *testing.T) {
	t.Setenv("Y_AGENT_TEST_INT", "")
	if got := EnvInt("Y_AGENT_TEST_INT", 4); got != 4 {
		t.Fatalf("got %d", got)
	}
	t.Setenv("Y_AGENT_TEST_INT", "7")
	if got := EnvInt("Y_AGENT_TEST_INT", 4); got != 7 {
		t.Fatalf("got %d", got)
	}
	t.Setenv("Y_AGENT_TEST_INT", "not a number")
	if got := EnvInt("Y_AGENT_TEST_INT", 4); got != 4 {
		t.Fatalf("got %d", got)
	}
}
