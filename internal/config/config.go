// Package config collects the environment-driven settings shared by
// the server and worker daemons.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config is the resolved runtime configuration.
type Config struct {
	// Addr is the HTTP listen address of the API server.
	Addr string

	// Home is the state directory, default ~/.y-agent.
	Home string

	// DBPath is the SQLite database file.
	DBPath string

	// PermissionsPath is the tool allow-list config file.
	PermissionsPath string

	// JWTSecret signs and verifies API bearer tokens.
	JWTSecret string

	// SQSQueueURL selects the SQS queue binding when set; otherwise
	// jobs go through the on-disk spool at SpoolDir.
	SQSQueueURL string
	SQSEndpoint string
	SpoolDir    string

	// SystemPrompt is prepended to every agent run.
	SystemPrompt string

	// ToolRuntime selects the fallback tool runtime: "local" or
	// "docker". Users with a VM config always get the sprites runtime.
	ToolRuntime string
	DockerImage string
	DockerDir   string
}

// Load reads the environment and fills in defaults. The home directory
// is created so the database and spool can live there.
func Load() (*Config, error) {
	home := os.Getenv("Y_AGENT_HOME")
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home dir: %w", err)
		}
		home = filepath.Join(userHome, ".y-agent")
	}
	if err := os.MkdirAll(home, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}

	cfg := &Config{
		Addr:            envOr("Y_AGENT_ADDR", ":8787"),
		Home:            home,
		DBPath:          envOr("Y_AGENT_DB", filepath.Join(home, "y-agent.db")),
		PermissionsPath: envOr("Y_AGENT_PERMISSIONS", filepath.Join(home, "permissions.json")),
		JWTSecret:       os.Getenv("JWT_SECRET_KEY"),
		SQSQueueURL:     os.Getenv("SQS_QUEUE_URL"),
		SQSEndpoint:     os.Getenv("SQS_ENDPOINT_URL"),
		SpoolDir:        envOr("Y_AGENT_SPOOL", filepath.Join(home, "spool")),
		SystemPrompt:    os.Getenv("Y_AGENT_SYSTEM_PROMPT"),
		ToolRuntime:     envOr("Y_AGENT_TOOL_RUNTIME", "local"),
		DockerImage:     envOr("Y_AGENT_DOCKER_IMAGE", "ubuntu:24.04"),
		DockerDir:       os.Getenv("Y_AGENT_DOCKER_DIR"),
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY is required")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// EnvInt reads an integer environment variable with a fallback.
func EnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
