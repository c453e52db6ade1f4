// Package queue implements the durable multi-stage job queue: a typed FIFO per
// queue type with atomic claiming and monotonic status tracking.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dwsmith1983/narrator/internal/clock"
	"github.com/dwsmith1983/narrator/internal/provider"
	"github.com/dwsmith1983/narrator/pkg/types"
)

// ErrMalformedPayload is returned by DequeueNext when a claimed item could not
// be decoded. The item has already been marked FAILED.
var ErrMalformedPayload = errors.New("malformed queue payload")

// Item is a queue item with its payload decoded.
type Item[T any] struct {
	ID            string
	Type          types.QueueType
	Data          T
	Status        types.QueueStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Error         *string
	Result        json.RawMessage
	CorrelationID *string
}

// IsTerminal reports whether the item reached Completed or Failed.
func (i Item[T]) IsTerminal() bool {
	return i.Status == types.StatusCompleted || i.Status == types.StatusFailed
}

// DecodeResult unmarshals the stored result into v.
func (i Item[T]) DecodeResult(v any) error {
	if i.Result == nil {
		return fmt.Errorf("item %s has no result", i.ID)
	}
	return json.Unmarshal(i.Result, v)
}

// Option configures a Queue.
type Option func(*options)

type options struct {
	notifier Notifier
	clock    clock.Clock
	logger   *slog.Logger
}

// WithNotifier sets the wake signal used by Enqueue and WaitForWork.
func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithClock sets the clock used for item timestamps.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the queue logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// EnqueueOption configures a single Enqueue call.
type EnqueueOption func(*types.QueueItem)

// WithCorrelationID tags the item with an external correlation id so it can
// be cancelled or awaited by the originating action.
func WithCorrelationID(id string) EnqueueOption {
	return func(q *types.QueueItem) { q.CorrelationID = &id }
}

// Queue is a typed view over one queue type in a QueueStore.
type Queue[T any] struct {
	store     provider.QueueStore
	queueType types.QueueType
	notifier  Notifier
	clock     clock.Clock
	logger    *slog.Logger
}

// New creates a typed queue bound to queueType.
func New[T any](store provider.QueueStore, queueType types.QueueType, opts ...Option) *Queue[T] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.notifier == nil {
		o.notifier = NewChannelNotifier()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return &Queue[T]{
		store:     store,
		queueType: queueType,
		notifier:  o.notifier,
		clock:     clock.OrSystem(o.clock),
		logger:    o.logger,
	}
}

// Type returns the queue type this queue is bound to.
func (q *Queue[T]) Type() types.QueueType { return q.queueType }

// Enqueue durably writes a PENDING item and wakes an idle worker. The
// payload is immutable once written.
func (q *Queue[T]) Enqueue(ctx context.Context, payload T, opts ...EnqueueOption) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding %s payload: %w", q.queueType, err)
	}
	now := q.clock.Now()
	item := types.QueueItem{
		ID:        ulid.Make().String(),
		Type:      q.queueType,
		Payload:   data,
		Status:    types.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, opt := range opts {
		opt(&item)
	}
	if err := q.store.Enqueue(ctx, item); err != nil {
		return "", fmt.Errorf("enqueueing %s item: %w", q.queueType, err)
	}
	recordEnqueued(ctx, q.queueType)
	q.notifier.Notify(ctx, q.queueType)
	return item.ID, nil
}

// DequeueNext claims the oldest PENDING item. It returns nil when the queue
// is empty. Two concurrent callers never receive the same item.
func (q *Queue[T]) DequeueNext(ctx context.Context) (*Item[T], error) {
	raw, err := q.store.ClaimNext(ctx, q.queueType, q.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("claiming %s item: %w", q.queueType, err)
	}
	if raw == nil {
		return nil, nil
	}
	recordClaimed(ctx, q.queueType)

	item, err := decode[T](*raw)
	if err != nil {
		msg := err.Error()
		if ferr := q.store.Transition(ctx, raw.ID, types.StatusProcessing, types.StatusFailed, &msg, q.clock.Now()); ferr != nil {
			q.logger.Error("failed to fail malformed item", "queue", q.queueType, "id", raw.ID, "error", ferr)
		}
		recordFinished(ctx, q.queueType, types.StatusFailed)
		return nil, fmt.Errorf("%w: item %s: %w", ErrMalformedPayload, raw.ID, err)
	}
	return item, nil
}

// MarkComplete moves a PROCESSING item to COMPLETED.
func (q *Queue[T]) MarkComplete(ctx context.Context, id string) error {
	return q.transition(ctx, id, types.StatusProcessing, types.StatusCompleted, nil)
}

// MarkFailed moves a PROCESSING item to FAILED with an error message. FAILED
// is terminal; the item is never re-enqueued automatically.
func (q *Queue[T]) MarkFailed(ctx context.Context, id, message string) error {
	return q.transition(ctx, id, types.StatusProcessing, types.StatusFailed, &message)
}

func (q *Queue[T]) transition(ctx context.Context, id string, from, to types.QueueStatus, msg *string) error {
	if err := ValidateTransition(from, to); err != nil {
		return err
	}
	if err := q.store.Transition(ctx, id, from, to, msg, q.clock.Now()); err != nil {
		return fmt.Errorf("marking %s item %s %s: %w", q.queueType, id, to, err)
	}
	recordFinished(ctx, q.queueType, to)
	return nil
}

// SetResult attaches a result payload to an item.
func (q *Queue[T]) SetResult(ctx context.Context, id string, result any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	if err := q.store.SetResult(ctx, id, data, q.clock.Now()); err != nil {
		return fmt.Errorf("setting result on %s: %w", id, err)
	}
	return nil
}

// SetResultOnce attaches a result only if the item has none. Losing a race
// returns an error wrapping provider.ErrConflict.
func (q *Queue[T]) SetResultOnce(ctx context.Context, id string, result any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	if err := q.store.SetResultOnce(ctx, id, data, q.clock.Now()); err != nil {
		return fmt.Errorf("setting result on %s: %w", id, err)
	}
	return nil
}

// Get returns one item, or nil if it does not exist.
func (q *Queue[T]) Get(ctx context.Context, id string) (*Item[T], error) {
	raw, err := q.store.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return decode[T](*raw)
}

// ListByType returns the newest items of this queue type. Items whose
// payload cannot be decoded are skipped.
func (q *Queue[T]) ListByType(ctx context.Context, limit int) ([]Item[T], error) {
	raws, err := q.store.ListByType(ctx, q.queueType, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Item[T], 0, len(raws))
	for _, raw := range raws {
		item, err := decode[T](raw)
		if err != nil {
			q.logger.Warn("skipping undecodable item", "queue", q.queueType, "id", raw.ID, "error", err)
			continue
		}
		out = append(out, *item)
	}
	return out, nil
}

// PendingCount returns the number of PENDING items of this queue type.
func (q *Queue[T]) PendingCount(ctx context.Context) (int, error) {
	return q.store.PendingCount(ctx, q.queueType)
}

// CancelByCorrelation removes PENDING items tagged with correlationID.
// Cancelling twice is not an error; the second call removes nothing.
func (q *Queue[T]) CancelByCorrelation(ctx context.Context, correlationID string) (int, error) {
	n, err := q.store.CancelByCorrelation(ctx, correlationID)
	if err != nil {
		return 0, fmt.Errorf("cancelling correlation %s: %w", correlationID, err)
	}
	return n, nil
}

// WaitForWork suspends until new work is signalled, the timeout elapses,
// or ctx is done.
func (q *Queue[T]) WaitForWork(ctx context.Context, timeout time.Duration) error {
	return q.notifier.Wait(ctx, q.queueType, timeout)
}

// Await polls until the item reaches a terminal status. Callers bound the
// wait with ctx; the queue itself never blocks on a result.
func (q *Queue[T]) Await(ctx context.Context, id string, poll time.Duration) (*Item[T], error) {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		item, err := q.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, fmt.Errorf("item %s: %w", id, provider.ErrNotFound)
		}
		if item.IsTerminal() {
			return item, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func decode[T any](raw types.QueueItem) (*Item[T], error) {
	var data T
	if err := json.Unmarshal(raw.Payload, &data); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", raw.Type, err)
	}
	return &Item[T]{
		ID:            raw.ID,
		Type:          raw.Type,
		Data:          data,
		Status:        raw.Status,
		CreatedAt:     raw.CreatedAt,
		UpdatedAt:     raw.UpdatedAt,
		Error:         raw.Error,
		Result:        raw.Result,
		CorrelationID: raw.CorrelationID,
	}, nil
}
