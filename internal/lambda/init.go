// Package lambda provides shared initialization and handlers for the
// narrator Lambda functions.
package lambda

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/dwsmith1983/narrator/internal/provider"
	"github.com/dwsmith1983/narrator/internal/provider/dynamodb"
	"github.com/dwsmith1983/narrator/internal/queue"
	"github.com/dwsmith1983/narrator/internal/worker"
	"github.com/dwsmith1983/narrator/pkg/types"
)

// Deps holds shared dependencies for Lambda handlers.
type Deps struct {
	Provider provider.Provider
	Queues   *worker.Queues
	Logger   *slog.Logger
}

// Init creates shared dependencies from environment variables.
// Reads: TABLE_NAME, AWS_REGION, RETENTION_TTL, WAKE_QUEUE_URL
func Init(ctx context.Context) (*Deps, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	tableName := os.Getenv("TABLE_NAME")
	region := os.Getenv("AWS_REGION")
	if tableName == "" {
		return nil, fmt.Errorf("TABLE_NAME environment variable required")
	}
	if region == "" {
		return nil, fmt.Errorf("AWS_REGION environment variable required")
	}

	prov, err := dynamodb.New(&types.DynamoDBConfig{
		TableName:    tableName,
		Region:       region,
		RetentionTTL: envOrDefault("RETENTION_TTL", "168h"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating DynamoDB provider: %w", err)
	}

	// Workers in other processes are woken through the shared SQS queue.
	qopts := []queue.Option{queue.WithLogger(logger)}
	if url := os.Getenv("WAKE_QUEUE_URL"); url != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		qopts = append(qopts, queue.WithNotifier(queue.NewSQSNotifier(sqs.NewFromConfig(awsCfg), url, logger)))
	}

	return &Deps{
		Provider: prov,
		Queues:   worker.NewQueues(prov, qopts...),
		Logger:   logger,
	}, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
