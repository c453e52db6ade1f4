package config

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/narrator/pkg/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644))
	return dir
}

func TestLoad(t *testing.T) {
	dir := writeConfig(t, `provider: redis
redis:
  addr: localhost:6379
  keyPrefix: "narrator:"
llm:
  enabled: true
  model: gpt-4o-mini
  timeout: 20s
queue:
  recoveryInterval: 15s
  workers:
    PLAYER_ACTION: 2
    LLM_REQUEST: 4
staging:
  defaultTtlHours: 6
  useLlm: true
conditions:
  threshold: 0.8
  cacheTtl: 5m
notify:
  - type: log
  - type: webhook
    url: https://example.test/hook
catalogDirs:
  - ./worlds
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ProviderRedis, cfg.Provider)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "narrator:", cfg.Redis.KeyPrefix)
	assert.Equal(t, 4, cfg.Queue.Workers[types.QueueLlmRequest])
	assert.Equal(t, 6, cfg.Staging.DefaultTTLHours)
	assert.InDelta(t, 0.8, *cfg.Conditions.Threshold, 1e-9)
	assert.Len(t, cfg.Notify, 2)
	assert.Equal(t, []string{filepath.Join(dir, "worlds")}, cfg.CatalogDirs)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml"))
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing provider", "catalogDirs: [./w]\n", "provider is required"},
		{"unknown provider", "provider: mongo\ncatalogDirs: [./w]\n", "unknown provider"},
		{"missing redis", "provider: redis\ncatalogDirs: [./w]\n", "redis config is required"},
		{"missing sqlite path", "provider: sqlite\ncatalogDirs: [./w]\n", "sqlite.path is required"},
		{"missing table", "provider: dynamodb\ndynamodb:\n  region: us-east-1\ncatalogDirs: [./w]\n", "dynamodb.tableName is required"},
		{"bad retention", "provider: dynamodb\ndynamodb:\n  tableName: t\n  retentionTtl: soon\ncatalogDirs: [./w]\n", "dynamodb.retentionTtl"},
		{"no catalog", "provider: sqlite\nsqlite:\n  path: x.db\n", "at least one catalogDir"},
		{"llm without model", "provider: sqlite\nsqlite:\n  path: x.db\ncatalogDirs: [./w]\nllm:\n  enabled: true\n", "llm.model is required"},
		{"bad recovery", "provider: sqlite\nsqlite:\n  path: x.db\ncatalogDirs: [./w]\nqueue:\n  recoveryInterval: -1s\n", "must be positive"},
		{"unknown queue", "provider: sqlite\nsqlite:\n  path: x.db\ncatalogDirs: [./w]\nqueue:\n  workers:\n    TELEPORT: 1\n", "unknown queue type"},
		{"threshold range", "provider: sqlite\nsqlite:\n  path: x.db\ncatalogDirs: [./w]\nconditions:\n  threshold: 1.5\n", "conditions.threshold"},
		{"webhook url", "provider: sqlite\nsqlite:\n  path: x.db\ncatalogDirs: [./w]\nnotify:\n  - type: webhook\n", "webhook url is required"},
		{"unknown sink", "provider: sqlite\nsqlite:\n  path: x.db\ncatalogDirs: [./w]\nnotify:\n  - type: pigeon\n", "unknown sink type"},
		{"archive dsn", "provider: sqlite\nsqlite:\n  path: x.db\ncatalogDirs: [./w]\narchive:\n  enabled: true\n", "archive.dsn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NARRATOR_LLM_API_KEY", "sk-env")
	t.Setenv("NARRATOR_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("NARRATOR_LOG_LEVEL", "DEBUG")

	cfg, err := Parse([]byte("provider: sqlite\nsqlite:\n  path: x.db\ncatalogDirs: [./w]\nllm:\n  apiKey: sk-file\n"))
	require.NoError(t, err)
	assert.Equal(t, "sk-env", cfg.LLM.APIKey)
	require.NotNil(t, cfg.Telemetry)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "collector:4317", cfg.Telemetry.Endpoint)

	o, err := ParseEnv()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, o.Level())
	assert.Equal(t, ".", o.ConfigDir)
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, Duration("", 5*time.Second))
	assert.Equal(t, time.Minute, Duration("1m", 5*time.Second))
	assert.Equal(t, 5*time.Second, Duration("bogus", 5*time.Second))
}

type fakeSecrets struct {
	values map[string]string
	calls  []string
}

func (f *fakeSecrets) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	id := aws.ToString(in.SecretId)
	f.calls = append(f.calls, id)
	v, ok := f.values[id]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
}

func TestResolveSecrets(t *testing.T) {
	ctx := context.Background()
	client := &fakeSecrets{values: map[string]string{"llm-key": "sk-secret", "archive-dsn": "postgres://db"}}
	cfg := &types.ProjectConfig{
		LLM:     &types.LLMConfig{APIKeySecret: "llm-key"},
		Archive: &types.ArchiveConfig{Enabled: true, DSNSecret: "archive-dsn"},
	}
	require.True(t, NeedsSecrets(cfg))

	require.NoError(t, ResolveSecrets(ctx, client, cfg))
	assert.Equal(t, "sk-secret", cfg.LLM.APIKey)
	assert.Equal(t, "postgres://db", cfg.Archive.DSN)
	assert.False(t, NeedsSecrets(cfg))

	require.NoError(t, ResolveSecrets(ctx, client, cfg))
	assert.Len(t, client.calls, 2, "inline values are not fetched again")

	missing := &types.ProjectConfig{LLM: &types.LLMConfig{APIKeySecret: "nope"}}
	err := ResolveSecrets(ctx, client, missing)
	assert.ErrorContains(t, err, "llm.apiKeySecret")
}
