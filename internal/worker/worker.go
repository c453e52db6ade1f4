// Package worker runs the pipeline stages: one long-running loop per queue
// type that claims items, hands them to a stage handler and records the
// outcome durably.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dwsmith1983/narrator/internal/queue"
)

// DefaultRecoveryInterval bounds how long an idle worker sleeps without a
// wake signal.
const DefaultRecoveryInterval = 30 * time.Second

// Handler processes one claimed item. A returned error marks the item
// FAILED with the error text. Handlers enqueue follow-up items themselves.
type Handler[T any] interface {
	Handle(ctx context.Context, item *queue.Item[T]) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[T any] func(ctx context.Context, item *queue.Item[T]) error

func (f HandlerFunc[T]) Handle(ctx context.Context, item *queue.Item[T]) error { return f(ctx, item) }

// Runner is a long-running loop managed by a Pool.
type Runner interface {
	Name() string
	Run(ctx context.Context) error
}

// Option configures a Worker.
type Option func(*options)

type options struct {
	recovery time.Duration
	logger   *slog.Logger
}

// WithRecoveryInterval sets the idle wait bound and the storage error backoff.
func WithRecoveryInterval(d time.Duration) Option {
	return func(o *options) { o.recovery = d }
}

// WithLogger sets the worker logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Worker drains one queue through a Handler.
type Worker[T any] struct {
	name     string
	queue    *queue.Queue[T]
	handler  Handler[T]
	recovery time.Duration
	logger   *slog.Logger
}

// New creates a worker. name distinguishes several workers on one queue.
func New[T any](name string, q *queue.Queue[T], h Handler[T], opts ...Option) *Worker[T] {
	o := options{recovery: DefaultRecoveryInterval, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.recovery <= 0 {
		o.recovery = DefaultRecoveryInterval
	}
	return &Worker[T]{
		name:     name,
		queue:    q,
		handler:  h,
		recovery: o.recovery,
		logger:   o.logger.With("worker", name, "queue", q.Type()),
	}
}

func (w *Worker[T]) Name() string { return w.name }

// Run loops until ctx is done. It returns nil on cancellation; storage
// errors are logged and retried after one recovery interval.
func (w *Worker[T]) Run(ctx context.Context) error {
	w.logger.Info("worker started")
	defer w.logger.Info("worker stopped")
	for {
		if ctx.Err() != nil {
			return nil
		}
		worked, err := w.Step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, queue.ErrMalformedPayload) {
				w.logger.Warn("dropped malformed item", "error", err)
				continue
			}
			w.logger.Error("claim failed", "error", err)
			if !sleep(ctx, w.recovery) {
				return nil
			}
			continue
		}
		if !worked {
			if err := w.queue.WaitForWork(ctx, w.recovery); err != nil {
				return nil
			}
		}
	}
}

// Step claims and processes at most one item. It reports whether an item
// was claimed.
func (w *Worker[T]) Step(ctx context.Context) (bool, error) {
	item, err := w.queue.DequeueNext(ctx)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, nil
	}
	w.process(ctx, item)
	return true, nil
}

func (w *Worker[T]) process(ctx context.Context, item *queue.Item[T]) {
	ctx, span := tracer.Start(ctx, "worker.process", trace.WithAttributes(
		attribute.String("queue", string(item.Type)),
		attribute.String("item", item.ID),
	))
	defer span.End()

	start := time.Now()
	herr := w.safeHandle(ctx, item)

	// The outcome is recorded even when shutdown cancelled ctx mid-item.
	mctx := context.WithoutCancel(ctx)
	if herr != nil {
		span.RecordError(herr)
		span.SetStatus(codes.Error, "handler failed")
		w.logger.Warn("item failed", "id", item.ID, "error", herr)
		if err := w.queue.MarkFailed(mctx, item.ID, herr.Error()); err != nil {
			w.logger.Error("marking item failed", "id", item.ID, "error", err)
		}
		recordProcessed(mctx, item.Type, false, time.Since(start))
		return
	}
	if err := w.queue.MarkComplete(mctx, item.ID); err != nil {
		w.logger.Error("marking item complete", "id", item.ID, "error", err)
	}
	recordProcessed(mctx, item.Type, true, time.Since(start))
}

func (w *Worker[T]) safeHandle(ctx context.Context, item *queue.Item[T]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return w.handler.Handle(ctx, item)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// correlationOf returns the chain id for follow-up items: the incoming
// correlation id, or the item's own id at the head of a chain.
func correlationOf[T any](item *queue.Item[T]) queue.EnqueueOption {
	if item.CorrelationID != nil && *item.CorrelationID != "" {
		return queue.WithCorrelationID(*item.CorrelationID)
	}
	return queue.WithCorrelationID(item.ID)
}
