package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ContextSleep is the default SleepFunc.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CallerOption configures a Caller.
type CallerOption func(*Caller)

// WithSleep overrides how the caller waits between attempts.
func WithSleep(fn SleepFunc) CallerOption {
	return func(c *Caller) { c.sleep = fn }
}

// WithSeed makes jitter deterministic.
func WithSeed(seed int64) CallerOption {
	return func(c *Caller) { c.rnd = rand.New(rand.NewSource(seed)) }
}

// WithLogger sets the logger used for retry messages.
func WithLogger(l *slog.Logger) CallerOption {
	return func(c *Caller) { c.logger = l }
}

// WithMeterProvider sets the meter provider for call metrics.
func WithMeterProvider(mp metric.MeterProvider) CallerOption {
	return func(c *Caller) { c.meterProvider = mp }
}

// WithTracerProvider sets the tracer provider for call spans.
func WithTracerProvider(tp trace.TracerProvider) CallerOption {
	return func(c *Caller) { c.tracer = tp.Tracer(instrumentationName) }
}

// Caller runs idempotent operations through a shared Breaker with
// retry-with-backoff.
type Caller struct {
	breaker       *Breaker
	retry         RetryConfig
	sleep         SleepFunc
	logger        *slog.Logger
	tracer        trace.Tracer
	meterProvider metric.MeterProvider
	metrics       instruments

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// NewCaller creates a Caller. Several callers may share one breaker.
func NewCaller(breaker *Breaker, retry RetryConfig, opts ...CallerOption) *Caller {
	if retry.MaxRetries < 0 {
		retry.MaxRetries = 0
	}
	if retry.BaseDelay <= 0 {
		retry.BaseDelay = time.Second
	}
	if retry.MaxDelay <= 0 {
		retry.MaxDelay = 30 * time.Second
	}
	c := &Caller{
		breaker: breaker,
		retry:   retry,
		sleep:   ContextSleep,
		logger:  slog.Default(),
		tracer:  otel.Tracer(instrumentationName),
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.metrics = newInstruments(c.meterProvider)
	return c
}

// Breaker returns the breaker guarding this caller.
func (c *Caller) Breaker() *Breaker { return c.breaker }

// Backoff returns the jittered delay used after the given failed attempt.
func (c *Caller) Backoff(attempt int) time.Duration {
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.retry.Backoff(attempt, c.rnd.Float64)
}

// Call runs fn until it succeeds, fails with a non-retryable error, or the
// retry budget is spent. An open breaker rejects without invoking fn.
func (c *Caller) Call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	name := c.breaker.Name()
	ctx, span := c.tracer.Start(ctx, "resilience.call", trace.WithAttributes(
		attribute.String("breaker", name),
		attribute.String("operation", op),
	))
	defer span.End()

	if err := c.breaker.Allow(); err != nil {
		c.metrics.rejections.Add(ctx, 1, opAttrs(name, op))
		span.SetStatus(codes.Error, "circuit open")
		return fmt.Errorf("%s: %w", op, err)
	}

	maxAttempts := c.retry.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			c.breaker.release()
			return fmt.Errorf("%s: %w", op, err)
		}

		c.metrics.attempts.Add(ctx, 1, opAttrs(name, op))
		err := fn(ctx)
		if err == nil {
			c.breaker.RecordSuccess()
			c.metrics.recordState(ctx, name, c.breaker.State())
			span.SetAttributes(attribute.Int("attempts", attempt))
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			c.logger.Warn("non-retryable failure", "operation", op, "attempt", attempt, "error", err)
			break
		}
		if attempt == maxAttempts {
			break
		}

		delay := c.Backoff(attempt)
		c.metrics.retries.Add(ctx, 1, opAttrs(name, op))
		c.logger.Info("retrying after failure", "operation", op, "attempt", attempt, "delay", delay, "error", err)
		if err := c.sleep(ctx, delay); err != nil {
			c.breaker.release()
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	c.breaker.RecordFailure()
	c.metrics.failures.Add(ctx, 1, opAttrs(name, op))
	c.metrics.recordState(ctx, name, c.breaker.State())
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return lastErr
}

// Do is Call for operations that produce a value.
func Do[T any](ctx context.Context, c *Caller, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := c.Call(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
