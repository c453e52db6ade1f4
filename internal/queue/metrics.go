package queue

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dwsmith1983/narrator/pkg/types"
)

var meter = otel.Meter("github.com/dwsmith1983/narrator/internal/queue")

var (
	enqueuedCounter, _ = meter.Int64Counter("narrator.queue.enqueued",
		metric.WithDescription("Items written to the queue"))
	claimedCounter, _ = meter.Int64Counter("narrator.queue.claimed",
		metric.WithDescription("Items claimed by a worker"))
	finishedCounter, _ = meter.Int64Counter("narrator.queue.finished",
		metric.WithDescription("Items that reached a terminal status"))
)

func recordEnqueued(ctx context.Context, qt types.QueueType) {
	enqueuedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", string(qt))))
}

func recordClaimed(ctx context.Context, qt types.QueueType) {
	claimedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", string(qt))))
}

func recordFinished(ctx context.Context, qt types.QueueType, status types.QueueStatus) {
	finishedCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("queue", string(qt)),
		attribute.String("status", string(status)),
	))
}
