package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EnvOverridesAndDefaults(t *testing.T) {
	t.Setenv("WIDGET_BACKEND_URL", "https://api.example.com")
	t.Setenv("WIDGET_AGENT_ID", "agent-1")
	t.Setenv("WIDGET_PLAYER_MIN_DELAY", "500ms")
	t.Setenv("WIDGET_PLAYER_MAX_DELAY", "900ms")
	t.Setenv("WIDGET_ENV", "preview")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.Backend.URL)
	assert.Equal(t, "agent-1", cfg.Agent.ID)
	assert.Equal(t, "preview", cfg.Env)
	assert.Equal(t, 500*time.Millisecond, cfg.Player.MinDelay)
	assert.Equal(t, 900*time.Millisecond, cfg.Player.MaxDelay)
	assert.Equal(t, 3*time.Second, cfg.Player.RatingDelay)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "en", cfg.Agent.Locale)
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "widget.yaml")
	content := []byte(`
env: test
backend:
  url: https://from-file.example.com
agent:
  id: file-agent
server:
  port: "9090"
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("WIDGET_CONFIG_FILE", path)
	t.Setenv("WIDGET_AGENT_ID", "env-agent")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://from-file.example.com", cfg.Backend.URL)
	assert.Equal(t, "env-agent", cfg.Agent.ID)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "test", cfg.Env)
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend.url is required")
	assert.Contains(t, err.Error(), "agent.id is required")

	cfg.Backend.URL = "http://x"
	cfg.Agent.ID = "a"
	cfg.Player.MaxDelay = cfg.Player.MinDelay - time.Millisecond
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "player delay window")

	cfg.Player.MaxDelay = cfg.Player.MinDelay
	cfg.Server.SessionRate = -1
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session_rate")
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "backend.url", envKey("WIDGET_BACKEND_URL"))
	assert.Equal(t, "openai.api_key", envKey("WIDGET_OPENAI_API_KEY"))
	assert.Equal(t, "env", envKey("WIDGET_ENV"))
	assert.Equal(t, "", envKey("WIDGET_CONFIG_FILE"))
}
