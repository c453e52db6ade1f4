package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/dwsmith1983/narrator/pkg/types"
)

// EnvOverrides are settings read from the process environment. Non-empty
// values win over narrator.yaml.
type EnvOverrides struct {
	ConfigDir    string `env:"NARRATOR_CONFIG_DIR" envDefault:"."`
	LogLevel     string `env:"NARRATOR_LOG_LEVEL" envDefault:"info"`
	LLMAPIKey    string `env:"NARRATOR_LLM_API_KEY"`
	OTLPEndpoint string `env:"NARRATOR_OTLP_ENDPOINT"`
}

// ParseEnv loads the overrides from environment variables.
func ParseEnv() (EnvOverrides, error) {
	var o EnvOverrides
	if err := env.Parse(&o); err != nil {
		return o, fmt.Errorf("parse env: %w", err)
	}
	return o, nil
}

// Apply copies the non-empty overrides into cfg.
func (o EnvOverrides) Apply(cfg *types.ProjectConfig) {
	if o.LLMAPIKey != "" {
		if cfg.LLM == nil {
			cfg.LLM = &types.LLMConfig{}
		}
		cfg.LLM.APIKey = o.LLMAPIKey
	}
	if o.OTLPEndpoint != "" {
		if cfg.Telemetry == nil {
			cfg.Telemetry = &types.TelemetryConfig{}
		}
		cfg.Telemetry.Endpoint = o.OTLPEndpoint
		cfg.Telemetry.Enabled = true
	}
}

// Level maps the configured log level onto slog. Unknown values mean info.
func (o EnvOverrides) Level() slog.Level {
	switch strings.ToLower(o.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
