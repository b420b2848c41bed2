package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the client runtime configuration. Values come from an
// optional yaml file and are overridable via environment variables.
type Config struct {
	// APIBaseURL is the backend REST origin, e.g. https://host.
	APIBaseURL string `yaml:"api_base_url"`

	// WSBaseURL is the push channel origin. When empty it is derived
	// from APIBaseURL (https -> wss, http -> ws).
	WSBaseURL string `yaml:"ws_base_url"`

	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Load reads the yaml file when path is non-empty, then applies env
// overrides and derives defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.APIBaseURL = getEnv("ROCKET_API_BASE", cfg.APIBaseURL)
	cfg.WSBaseURL = getEnv("ROCKET_WS_BASE", cfg.WSBaseURL)
	cfg.LogLevel = getEnv("ROCKET_LOG_LEVEL", cfg.LogLevel)

	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("api_base_url is required (ROCKET_API_BASE)")
	}
	if cfg.WSBaseURL == "" {
		cfg.WSBaseURL = deriveWSBase(cfg.APIBaseURL)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return &cfg, nil
}

// deriveWSBase rewrites an http(s) origin to its websocket scheme.
func deriveWSBase(apiBase string) string {
	apiBase = strings.TrimSuffix(apiBase, "/")
	switch {
	case strings.HasPrefix(apiBase, "https://"):
		return "wss://" + strings.TrimPrefix(apiBase, "https://")
	case strings.HasPrefix(apiBase, "http://"):
		return "ws://" + strings.TrimPrefix(apiBase, "http://")
	default:
		return apiBase
	}
}
