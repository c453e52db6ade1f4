package resilience

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/dwsmith1983/narrator/internal/resilience"

type instruments struct {
	attempts   metric.Int64Counter
	retries    metric.Int64Counter
	rejections metric.Int64Counter
	failures   metric.Int64Counter
	state      metric.Int64Gauge
}

func newInstruments(mp metric.MeterProvider) instruments {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)
	var in instruments
	// Instrument construction only fails on invalid names; the no-op
	// instruments returned alongside the error are safe to use.
	in.attempts, _ = meter.Int64Counter("narrator.resilience.attempts",
		metric.WithDescription("Attempts made through the resilient caller"))
	in.retries, _ = meter.Int64Counter("narrator.resilience.retries",
		metric.WithDescription("Attempts that were retried after a transient failure"))
	in.rejections, _ = meter.Int64Counter("narrator.resilience.rejections",
		metric.WithDescription("Calls rejected by an open circuit breaker"))
	in.failures, _ = meter.Int64Counter("narrator.resilience.failures",
		metric.WithDescription("Calls that returned an error to the caller"))
	in.state, _ = meter.Int64Gauge("narrator.resilience.breaker_state",
		metric.WithDescription("Circuit breaker mode (0 closed, 1 open, 2 half-open)"))
	return in
}

func opAttrs(breaker, op string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("breaker", breaker),
		attribute.String("operation", op),
	)
}

func (in instruments) recordState(ctx context.Context, breaker string, m Mode) {
	in.state.Record(ctx, int64(m), metric.WithAttributes(attribute.String("breaker", breaker)))
}
