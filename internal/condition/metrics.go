package condition

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/dwsmith1983/narrator/internal/condition"

var (
	tracer = otel.Tracer(instrumentationName)
	meter  = otel.Meter(instrumentationName)

	evaluationsCounter, _ = meter.Int64Counter("narrator.condition.evaluations",
		metric.WithDescription("Custom conditions judged by the AI"))
	cacheHitsCounter, _ = meter.Int64Counter("narrator.condition.cache_hits",
		metric.WithDescription("Custom condition verdicts served from cache"))
)

func recordEvaluation(ctx context.Context, met bool, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	evaluationsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("met", strconv.FormatBool(met)),
	))
}
