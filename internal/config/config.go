// Package config loads the widget runtime configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix         = "WIDGET_"
	configFileEnv     = "WIDGET_CONFIG_FILE"
	maxConfigFileSize = 1024 * 1024
)

type Config struct {
	Env      string         `koanf:"env"`
	Server   ServerConfig   `koanf:"server"`
	Backend  BackendConfig  `koanf:"backend"`
	Storage  StorageConfig  `koanf:"storage"`
	Database DatabaseConfig `koanf:"database"`
	NATS     NATSConfig     `koanf:"nats"`
	OpenAI   OpenAIConfig   `koanf:"openai"`
	Agent    AgentConfig    `koanf:"agent"`
	Player   PlayerConfig   `koanf:"player"`
	Log      LogConfig      `koanf:"log"`
}

type ServerConfig struct {
	Port           string   `koanf:"port"`
	AllowedOrigins []string `koanf:"allowed_origins"`
	// SessionRate caps new widget sessions per second; 0 disables the cap.
	SessionRate  float64 `koanf:"session_rate"`
	SessionBurst int     `koanf:"session_burst"`
}

type BackendConfig struct {
	URL     string        `koanf:"url"`
	Token   string        `koanf:"token"`
	Timeout time.Duration `koanf:"timeout"`
}

type StorageConfig struct {
	URL     string        `koanf:"url"`
	Token   string        `koanf:"token"`
	Timeout time.Duration `koanf:"timeout"`
}

type DatabaseConfig struct {
	URL string `koanf:"url"`
}

type NATSConfig struct {
	URL string `koanf:"url"`
}

type OpenAIConfig struct {
	APIKey string `koanf:"api_key"`
	Model  string `koanf:"model"`
}

type AgentConfig struct {
	ID     string `koanf:"id"`
	Locale string `koanf:"locale"`
}

// PlayerConfig tunes chunked reply playback.
type PlayerConfig struct {
	MinDelay     time.Duration `koanf:"min_delay"`
	MaxDelay     time.Duration `koanf:"max_delay"`
	RatingDelay  time.Duration `koanf:"rating_delay"`
	NewMarkerTTL time.Duration `koanf:"new_marker_ttl"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Load reads an optional YAML file named by WIDGET_CONFIG_FILE, then overrides it
// with WIDGET_* environment variables:
//
//	WIDGET_BACKEND_URL       -> backend.url
//	WIDGET_PLAYER_MIN_DELAY  -> player.min_delay
//	WIDGET_ENV               -> env
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(configFileEnv); path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps WIDGET_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	if lower == configFileEnvKey {
		return ""
	}
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

const configFileEnvKey = "config_file"

func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Env == "" {
		cfg.Env = "production"
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = 30 * time.Second
	}
	if cfg.Storage.Timeout == 0 {
		cfg.Storage.Timeout = 20 * time.Second
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.Agent.Locale == "" {
		cfg.Agent.Locale = "en"
	}
	if cfg.Player.MinDelay == 0 {
		cfg.Player.MinDelay = 750 * time.Millisecond
	}
	if cfg.Player.MaxDelay == 0 {
		cfg.Player.MaxDelay = time.Second
	}
	if cfg.Player.RatingDelay == 0 {
		cfg.Player.RatingDelay = 3 * time.Second
	}
	if cfg.Player.NewMarkerTTL == 0 {
		cfg.Player.NewMarkerTTL = 700 * time.Millisecond
	}
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Backend.URL == "" {
		errs = append(errs, errors.New("backend.url is required"))
	}
	if c.Agent.ID == "" {
		errs = append(errs, errors.New("agent.id is required"))
	}
	if c.Server.SessionRate < 0 {
		errs = append(errs, errors.New("server.session_rate must not be negative"))
	}
	if c.Player.MinDelay < 0 || c.Player.MaxDelay < c.Player.MinDelay {
		errs = append(errs, fmt.Errorf("player delay window [%s, %s] is invalid", c.Player.MinDelay, c.Player.MaxDelay))
	}
	switch c.Env {
	case "preview", "test", "production":
	default:
		errs = append(errs, fmt.Errorf("env %q must be preview, test or production", c.Env))
	}
	return errors.Join(errs...)
}
