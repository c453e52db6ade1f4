package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/dwsmith1983/narrator/pkg/types"
)

// SecretsAPI is the subset of the Secrets Manager client used by ResolveSecrets.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, input *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// NewSecretsClient builds a Secrets Manager client from the default AWS config.
func NewSecretsClient(ctx context.Context) (SecretsAPI, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return secretsmanager.NewFromConfig(cfg), nil
}

// NeedsSecrets reports whether cfg references any secret that is not
// already set inline.
func NeedsSecrets(cfg *types.ProjectConfig) bool {
	if cfg.LLM != nil && cfg.LLM.APIKey == "" && cfg.LLM.APIKeySecret != "" {
		return true
	}
	return cfg.Archive != nil && cfg.Archive.Enabled && cfg.Archive.DSN == "" && cfg.Archive.DSNSecret != ""
}

// ResolveSecrets fills the LLM API key and the archive DSN from Secrets
// Manager. Inline values are left alone.
func ResolveSecrets(ctx context.Context, client SecretsAPI, cfg *types.ProjectConfig) error {
	if cfg.LLM != nil && cfg.LLM.APIKey == "" && cfg.LLM.APIKeySecret != "" {
		v, err := fetchSecret(ctx, client, cfg.LLM.APIKeySecret)
		if err != nil {
			return fmt.Errorf("llm.apiKeySecret: %w", err)
		}
		cfg.LLM.APIKey = v
	}
	if a := cfg.Archive; a != nil && a.Enabled && a.DSN == "" && a.DSNSecret != "" {
		v, err := fetchSecret(ctx, client, a.DSNSecret)
		if err != nil {
			return fmt.Errorf("archive.dsnSecret: %w", err)
		}
		a.DSN = v
	}
	return nil
}

func fetchSecret(ctx context.Context, client SecretsAPI, id string) (string, error) {
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(id)})
	if err != nil {
		return "", fmt.Errorf("fetching secret %s: %w", id, err)
	}
	if out.SecretString == nil || *out.SecretString == "" {
		return "", fmt.Errorf("secret %s has no string value", id)
	}
	return *out.SecretString, nil
}
