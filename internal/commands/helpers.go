// Package commands implements the CLI subcommands for the narrator binary.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/dwsmith1983/narrator/internal/catalog"
	"github.com/dwsmith1983/narrator/internal/config"
	"github.com/dwsmith1983/narrator/internal/provider"
	ddbprov "github.com/dwsmith1983/narrator/internal/provider/dynamodb"
	"github.com/dwsmith1983/narrator/internal/provider/redis"
	"github.com/dwsmith1983/narrator/internal/provider/sqlite"
	"github.com/dwsmith1983/narrator/internal/queue"
	"github.com/dwsmith1983/narrator/internal/worker"
	"github.com/dwsmith1983/narrator/pkg/types"
)

// loadConfig reads the environment overrides, installs the JSON logger at
// the requested level and loads narrator.yaml, resolving secrets when the
// file references any.
func loadConfig(ctx context.Context) (*types.ProjectConfig, error) {
	env, err := config.ParseEnv()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: env.Level()})))

	cfg, err := config.Load(env.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if config.NeedsSecrets(cfg) {
		client, err := config.NewSecretsClient(ctx)
		if err != nil {
			return nil, err
		}
		if err := config.ResolveSecrets(ctx, client, cfg); err != nil {
			return nil, fmt.Errorf("resolving secrets: %w", err)
		}
	}
	return cfg, nil
}

// newProvider creates the configured storage provider.
func newProvider(cfg *types.ProjectConfig) (provider.Provider, error) {
	switch cfg.Provider {
	case config.ProviderSQLite:
		return sqlite.New(cfg.SQLite)
	case config.ProviderRedis:
		if cfg.Redis == nil {
			return nil, fmt.Errorf("redis config is required when provider is redis")
		}
		return redis.New(cfg.Redis), nil
	case config.ProviderDynamoDB:
		if cfg.DynamoDB == nil {
			return nil, fmt.Errorf("dynamodb config is required when provider is dynamodb")
		}
		return ddbprov.New(cfg.DynamoDB)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// startProvider creates and starts the configured provider.
func startProvider(ctx context.Context, cfg *types.ProjectConfig) (provider.Provider, error) {
	prov, err := newProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating provider: %w", err)
	}
	if err := prov.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting %s provider: %w", cfg.Provider, err)
	}
	return prov, nil
}

// loadCatalog loads every configured catalog directory.
func loadCatalog(cfg *types.ProjectConfig) (*catalog.Catalog, error) {
	cat := catalog.New()
	for _, dir := range cfg.CatalogDirs {
		if err := cat.LoadDir(dir); err != nil {
			return nil, fmt.Errorf("loading catalog from %s: %w", dir, err)
		}
	}
	return cat, nil
}

// queueOptions returns the queue options shared by every stage queue. An
// SQS wake queue is used when configured so that separate processes wake
// each other's workers.
func queueOptions(ctx context.Context, cfg *types.ProjectConfig, logger *slog.Logger) ([]queue.Option, error) {
	opts := []queue.Option{queue.WithLogger(logger)}
	if cfg.Queue == nil || cfg.Queue.WakeQueueURL == "" {
		return append(opts, queue.WithNotifier(queue.NewChannelNotifier())), nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	n := queue.NewSQSNotifier(sqs.NewFromConfig(awsCfg), cfg.Queue.WakeQueueURL, logger)
	return append(opts, queue.WithNotifier(n)), nil
}

func recoveryInterval(cfg *types.ProjectConfig) time.Duration {
	if cfg.Queue == nil {
		return worker.DefaultRecoveryInterval
	}
	return config.Duration(cfg.Queue.RecoveryInterval, worker.DefaultRecoveryInterval)
}
