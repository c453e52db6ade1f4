package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/narrator/internal/provider"
	"github.com/dwsmith1983/narrator/internal/testutil"
	"github.com/dwsmith1983/narrator/pkg/types"
)

type action struct {
	PlayerID string `json:"playerId"`
	Text     string `json:"text"`
}

func newTestQueue(t *testing.T) (*Queue[action], *testutil.MockProvider, *testutil.FakeClock) {
	t.Helper()
	prov := testutil.NewMockProvider()
	clk := testutil.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	return New[action](prov, types.QueuePlayerAction, WithClock(clk)), prov, clk
}

func TestQueue_EnqueueDequeueFIFO(t *testing.T) {
	q, _, clk := newTestQueue(t)
	ctx := context.Background()

	first, err := q.Enqueue(ctx, action{PlayerID: "p1", Text: "open the door"})
	require.NoError(t, err)
	clk.Advance(time.Second)
	second, err := q.Enqueue(ctx, action{PlayerID: "p2", Text: "look around"})
	require.NoError(t, err)

	item, err := q.DequeueNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, first, item.ID)
	assert.Equal(t, types.StatusProcessing, item.Status)
	assert.Equal(t, "open the door", item.Data.Text)

	item, err = q.DequeueNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, item.ID)

	item, err = q.DequeueNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, item, "empty queue returns nil")
}

func TestQueue_SameTimestampKeepsEnqueueOrder(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := q.Enqueue(ctx, action{PlayerID: "p"})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for _, want := range ids {
		item, err := q.DequeueNext(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, item.ID)
	}
}

func TestQueue_QueueTypesAreIsolated(t *testing.T) {
	prov := testutil.NewMockProvider()
	actions := New[action](prov, types.QueuePlayerAction)
	broadcasts := New[action](prov, types.QueueBroadcast)
	ctx := context.Background()

	_, err := actions.Enqueue(ctx, action{PlayerID: "p1"})
	require.NoError(t, err)

	item, err := broadcasts.DequeueNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, item)

	n, err := actions.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestQueue_CompleteAndFail(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	okID, _ := q.Enqueue(ctx, action{PlayerID: "p1"})
	badID, _ := q.Enqueue(ctx, action{PlayerID: "p2"})

	_, _ = q.DequeueNext(ctx)
	_, _ = q.DequeueNext(ctx)

	require.NoError(t, q.SetResult(ctx, okID, map[string]string{"reply": "done"}))
	require.NoError(t, q.MarkComplete(ctx, okID))
	require.NoError(t, q.MarkFailed(ctx, badID, "llm unavailable"))

	ok, err := q.Get(ctx, okID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, ok.Status)
	var result map[string]string
	require.NoError(t, ok.DecodeResult(&result))
	assert.Equal(t, "done", result["reply"])
	assert.Nil(t, ok.Error)

	bad, err := q.Get(ctx, badID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, bad.Status)
	require.NotNil(t, bad.Error)
	assert.Equal(t, "llm unavailable", *bad.Error)
}

func TestQueue_TransitionsAreMonotonic(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	id, _ := q.Enqueue(ctx, action{PlayerID: "p1"})

	err := q.MarkComplete(ctx, id)
	require.Error(t, err, "pending items cannot complete without being claimed")
	assert.True(t, errors.Is(err, provider.ErrConflict))

	_, _ = q.DequeueNext(ctx)
	require.NoError(t, q.MarkFailed(ctx, id, "boom"))

	err = q.MarkComplete(ctx, id)
	assert.True(t, errors.Is(err, provider.ErrConflict), "failed is terminal")
}

func TestQueue_ConcurrentClaimsNeverShareItems(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	const items = 50
	for i := 0; i < items; i++ {
		_, err := q.Enqueue(ctx, action{PlayerID: "p"})
		require.NoError(t, err)
	}

	var (
		mu      sync.Mutex
		claimed = map[string]int{}
		wg      sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, err := q.DequeueNext(ctx)
				if err != nil || item == nil {
					return
				}
				mu.Lock()
				claimed[item.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, items)
	for id, n := range claimed {
		assert.Equal(t, 1, n, "item %s claimed more than once", id)
	}
}

func TestQueue_CancelByCorrelationIsIdempotent(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	_, _ = q.Enqueue(ctx, action{PlayerID: "p1"}, WithCorrelationID("ui-42"))
	_, _ = q.Enqueue(ctx, action{PlayerID: "p1"}, WithCorrelationID("ui-42"))
	keep, _ := q.Enqueue(ctx, action{PlayerID: "p2"}, WithCorrelationID("ui-43"))

	n, err := q.CancelByCorrelation(ctx, "ui-42")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = q.CancelByCorrelation(ctx, "ui-42")
	require.NoError(t, err)
	assert.Zero(t, n)

	item, err := q.DequeueNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, keep, item.ID)
	require.NotNil(t, item.CorrelationID)
	assert.Equal(t, "ui-43", *item.CorrelationID)
}

func TestQueue_CancelLeavesClaimedItems(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	id, _ := q.Enqueue(ctx, action{PlayerID: "p1"}, WithCorrelationID("ui-1"))
	_, _ = q.DequeueNext(ctx)

	n, err := q.CancelByCorrelation(ctx, "ui-1")
	require.NoError(t, err)
	assert.Zero(t, n)

	item, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusProcessing, item.Status)
}

func TestQueue_MalformedPayloadFailsItem(t *testing.T) {
	prov := testutil.NewMockProvider()
	q := New[action](prov, types.QueuePlayerAction)
	ctx := context.Background()

	require.NoError(t, prov.Enqueue(ctx, types.QueueItem{
		ID:        "bad",
		Type:      types.QueuePlayerAction,
		Payload:   []byte(`"not an object"`),
		Status:    types.StatusPending,
		CreatedAt: time.Now(),
	}))

	item, err := q.DequeueNext(ctx)
	assert.Nil(t, item)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedPayload))

	raw, err := prov.GetItem(ctx, "bad")
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, raw.Status)
	assert.NotNil(t, raw.Error)
}

func TestQueue_ListByTypeNewestFirst(t *testing.T) {
	q, _, clk := newTestQueue(t)
	ctx := context.Background()

	a, _ := q.Enqueue(ctx, action{Text: "a"})
	clk.Advance(time.Minute)
	b, _ := q.Enqueue(ctx, action{Text: "b"})

	items, err := q.ListByType(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, b, items[0].ID)
	assert.Equal(t, a, items[1].ID)

	items, err = q.ListByType(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestQueue_Await(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	id, _ := q.Enqueue(ctx, action{PlayerID: "p1"})
	go func() {
		item, _ := q.DequeueNext(ctx)
		_ = q.SetResult(ctx, item.ID, "answer")
		_ = q.MarkComplete(ctx, item.ID)
	}()

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	item, err := q.Await(waitCtx, id, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, item.Status)
	var got string
	require.NoError(t, item.DecodeResult(&got))
	assert.Equal(t, "answer", got)
}

func TestQueue_SetResultOnceKeepsFirst(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()
	id, err := q.Enqueue(ctx, action{PlayerID: "p1"})
	require.NoError(t, err)

	require.NoError(t, q.SetResultOnce(ctx, id, "accept"))
	err = q.SetResultOnce(ctx, id, "reject")
	assert.ErrorIs(t, err, provider.ErrConflict)

	item, err := q.Get(ctx, id)
	require.NoError(t, err)
	var got string
	require.NoError(t, item.DecodeResult(&got))
	assert.Equal(t, "accept", got)

	assert.ErrorIs(t, q.SetResultOnce(ctx, "missing", "x"), provider.ErrNotFound)
}

func TestQueue_AwaitTimesOut(t *testing.T) {
	q, _, _ := newTestQueue(t)
	id, _ := q.Enqueue(context.Background(), action{PlayerID: "p1"})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := q.Await(ctx, id, 5*time.Millisecond)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestQueue_WaitForWorkWakesOnEnqueue(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	done := make(chan time.Duration, 1)
	go func() {
		start := time.Now()
		_ = q.WaitForWork(ctx, 5*time.Second)
		done <- time.Since(start)
	}()
	time.Sleep(20 * time.Millisecond)
	_, err := q.Enqueue(ctx, action{PlayerID: "p1"})
	require.NoError(t, err)

	select {
	case elapsed := <-done:
		assert.Less(t, elapsed, 5*time.Second)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken by enqueue")
	}
}
