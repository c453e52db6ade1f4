package staging

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dwsmith1983/narrator/pkg/types"
)

const instrumentationName = "github.com/dwsmith1983/narrator/internal/staging"

var (
	tracer = otel.Tracer(instrumentationName)
	meter  = otel.Meter(instrumentationName)

	proposalsCounter, _ = meter.Int64Counter("narrator.staging.proposals",
		metric.WithDescription("Staging proposals generated"))
	fallbacksCounter, _ = meter.Int64Counter("narrator.staging.llm_fallbacks",
		metric.WithDescription("Proposals that fell back to rules after an AI failure"))
	approvalsCounter, _ = meter.Int64Counter("narrator.staging.approvals",
		metric.WithDescription("Stagings approved"))
)

func recordProposal(ctx context.Context, region string) {
	proposalsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("region", region)))
}

func recordFallback(ctx context.Context, region string) {
	fallbacksCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("region", region)))
}

func recordApproval(ctx context.Context, source types.StagingSource) {
	approvalsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("source", string(source))))
}
