package worker

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dwsmith1983/narrator/pkg/types"
)

const instrumentationName = "github.com/dwsmith1983/narrator/internal/worker"

var (
	tracer = otel.Tracer(instrumentationName)
	meter  = otel.Meter(instrumentationName)

	itemsProcessed, _ = meter.Int64Counter("narrator.worker.items",
		metric.WithDescription("Queue items processed by workers"))
	itemDuration, _ = meter.Float64Histogram("narrator.worker.duration",
		metric.WithDescription("Handler latency"), metric.WithUnit("s"))
	reportsSent, _ = meter.Int64Counter("narrator.worker.status_reports",
		metric.WithDescription("Status reports sent to directors"))
)

func recordProcessed(ctx context.Context, qt types.QueueType, ok bool, d time.Duration) {
	outcome := "completed"
	if !ok {
		outcome = "failed"
	}
	attrs := metric.WithAttributes(attribute.String("queue", string(qt)), attribute.String("outcome", outcome))
	itemsProcessed.Add(ctx, 1, attrs)
	itemDuration.Record(ctx, d.Seconds(), attrs)
}
