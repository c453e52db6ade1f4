// Package config handles loading and validation of narrator.yaml project configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dwsmith1983/narrator/pkg/types"
)

// FileName is the project config file looked up by Load.
const FileName = "narrator.yaml"

// Supported storage providers.
const (
	ProviderSQLite   = "sqlite"
	ProviderRedis    = "redis"
	ProviderDynamoDB = "dynamodb"
)

// Load reads and parses narrator.yaml from the given directory, applies
// environment overrides and validates the result.
func Load(dir string) (*types.ProjectConfig, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	for i, d := range cfg.CatalogDirs {
		if !filepath.IsAbs(d) {
			cfg.CatalogDirs[i] = filepath.Join(dir, d)
		}
	}
	return cfg, nil
}

// Parse decodes and validates config bytes. Environment overrides are
// applied before validation.
func Parse(data []byte) (*types.ProjectConfig, error) {
	var cfg types.ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	overrides, err := ParseEnv()
	if err != nil {
		return nil, err
	}
	overrides.Apply(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func validate(cfg *types.ProjectConfig) error {
	switch cfg.Provider {
	case "":
		return fmt.Errorf("provider is required")
	case ProviderSQLite:
		if cfg.SQLite == nil || cfg.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required when provider is sqlite")
		}
	case ProviderRedis:
		if cfg.Redis == nil {
			return fmt.Errorf("redis config is required when provider is redis")
		}
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required")
		}
	case ProviderDynamoDB:
		if cfg.DynamoDB == nil {
			return fmt.Errorf("dynamodb config is required when provider is dynamodb")
		}
		if cfg.DynamoDB.TableName == "" {
			return fmt.Errorf("dynamodb.tableName is required")
		}
		if err := checkDuration("dynamodb.retentionTtl", cfg.DynamoDB.RetentionTTL); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown provider %q", cfg.Provider)
	}

	if len(cfg.CatalogDirs) == 0 {
		return fmt.Errorf("at least one catalogDir is required")
	}

	if cfg.LLM != nil && cfg.LLM.Enabled {
		if cfg.LLM.Model == "" {
			return fmt.Errorf("llm.model is required when llm is enabled")
		}
		if err := checkDuration("llm.timeout", cfg.LLM.Timeout); err != nil {
			return err
		}
	}
	if r := cfg.Resilience; r != nil {
		if err := checkDuration("resilience.openDuration", r.OpenDuration); err != nil {
			return err
		}
		if r.JitterFactor != nil && (*r.JitterFactor < 0 || *r.JitterFactor > 1) {
			return fmt.Errorf("resilience.jitterFactor must be between 0 and 1")
		}
	}
	if q := cfg.Queue; q != nil {
		if err := checkDuration("queue.recoveryInterval", q.RecoveryInterval); err != nil {
			return err
		}
		for qt, n := range q.Workers {
			if !knownQueueType(qt) {
				return fmt.Errorf("queue.workers: unknown queue type %q", qt)
			}
			if n < 0 {
				return fmt.Errorf("queue.workers[%s] must not be negative", qt)
			}
		}
	}
	if s := cfg.Staging; s != nil {
		if s.DefaultTTLHours < 0 {
			return fmt.Errorf("staging.defaultTtlHours must not be negative")
		}
		if err := checkDuration("staging.autoApproveTimeout", s.AutoApproveTimeout); err != nil {
			return err
		}
	}
	if c := cfg.Conditions; c != nil {
		if c.Threshold != nil && (*c.Threshold < 0 || *c.Threshold > 1) {
			return fmt.Errorf("conditions.threshold must be between 0 and 1")
		}
		if err := checkDuration("conditions.cacheTtl", c.CacheTTL); err != nil {
			return err
		}
	}
	for i, s := range cfg.Notify {
		switch s.Type {
		case types.SinkLog, types.SinkEventBridge:
		case types.SinkWebhook:
			if s.URL == "" {
				return fmt.Errorf("notify[%d]: webhook url is required", i)
			}
		default:
			return fmt.Errorf("notify[%d]: unknown sink type %q", i, s.Type)
		}
	}
	if r := cfg.Reporter; r != nil {
		if err := checkDuration("reporter.interval", r.Interval); err != nil {
			return err
		}
	}
	if a := cfg.Archive; a != nil && a.Enabled {
		if a.DSN == "" && a.DSNSecret == "" {
			return fmt.Errorf("archive.dsn or archive.dsnSecret is required when archive is enabled")
		}
		if err := checkDuration("archive.interval", a.Interval); err != nil {
			return err
		}
	}
	return nil
}

func knownQueueType(qt types.QueueType) bool {
	for _, t := range types.AllQueueTypes {
		if t == qt {
			return true
		}
	}
	return false
}

func checkDuration(field, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive", field)
	}
	return nil
}

// Duration parses v, returning def when v is empty. Values are validated
// by Load, so a parse failure also falls back to def.
func Duration(v string, def time.Duration) time.Duration {
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
