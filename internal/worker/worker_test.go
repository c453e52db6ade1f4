package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dwsmith1983/narrator/internal/queue"
	"github.com/dwsmith1983/narrator/internal/testutil"
	"github.com/dwsmith1983/narrator/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWorker_Step(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMockProvider()
	q := queue.New[PlayerAction](store, types.QueuePlayerAction)

	okID, err := q.Enqueue(ctx, PlayerAction{WorldID: "w1", Content: "look"})
	require.NoError(t, err)
	badID, err := q.Enqueue(ctx, PlayerAction{WorldID: "w1", Content: "bad"})
	require.NoError(t, err)

	var seen []string
	w := New("t", q, HandlerFunc[PlayerAction](func(_ context.Context, item *queue.Item[PlayerAction]) error {
		seen = append(seen, item.Data.Content)
		if item.Data.Content == "bad" {
			return errors.New("cannot narrate that")
		}
		return nil
	}))

	for range 2 {
		worked, err := w.Step(ctx)
		require.NoError(t, err)
		assert.True(t, worked)
	}
	worked, err := w.Step(ctx)
	require.NoError(t, err)
	assert.False(t, worked)
	assert.Equal(t, []string{"look", "bad"}, seen)

	ok, err := q.Get(ctx, okID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, ok.Status)

	bad, err := q.Get(ctx, badID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, bad.Status)
	require.NotNil(t, bad.Error)
	assert.Equal(t, "cannot narrate that", *bad.Error)
}

func TestWorker_PanicMarksFailed(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMockProvider()
	q := queue.New[Broadcast](store, types.QueueBroadcast)
	id, err := q.Enqueue(ctx, Broadcast{WorldID: "w1"})
	require.NoError(t, err)

	w := New("t", q, HandlerFunc[Broadcast](func(context.Context, *queue.Item[Broadcast]) error {
		panic("boom")
	}))
	_, err = w.Step(ctx)
	require.NoError(t, err)

	item, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, item.Status)
	assert.Contains(t, *item.Error, "handler panic: boom")
}

func TestWorker_MalformedPayload(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMockProvider()
	now := time.Now()
	require.NoError(t, store.Enqueue(ctx, types.QueueItem{
		ID: "raw-1", Type: types.QueueBroadcast, Payload: json.RawMessage(`"not an object"`),
		Status: types.StatusPending, CreatedAt: now, UpdatedAt: now,
	}))
	q := queue.New[Broadcast](store, types.QueueBroadcast)
	w := New("t", q, HandlerFunc[Broadcast](func(context.Context, *queue.Item[Broadcast]) error {
		t.Fatal("handler must not run")
		return nil
	}))

	_, err := w.Step(ctx)
	assert.ErrorIs(t, err, queue.ErrMalformedPayload)
	raw, err := store.GetItem(ctx, "raw-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, raw.Status)
}

func TestWorker_RunUntilCancelled(t *testing.T) {
	store := testutil.NewMockProvider()
	q := queue.New[PlayerAction](store, types.QueuePlayerAction)
	w := New("t", q, HandlerFunc[PlayerAction](func(context.Context, *queue.Item[PlayerAction]) error { return nil }),
		WithRecoveryInterval(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	_, err := q.Enqueue(context.Background(), PlayerAction{WorldID: "w1"})
	require.NoError(t, err)
	testutil.WaitForItems(t, store, types.QueuePlayerAction, types.StatusCompleted, 1, 2*time.Second)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorker_ClaimErrorsBackOff(t *testing.T) {
	store := testutil.NewMockProvider()
	store.FailClaims(errors.New("storage down"))
	q := queue.New[PlayerAction](store, types.QueuePlayerAction)
	w := New("t", q, HandlerFunc[PlayerAction](func(context.Context, *queue.Item[PlayerAction]) error { return nil }),
		WithRecoveryInterval(30*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	testutil.WaitForClaimCount(t, store, 2, 2*time.Second)
	cancel()
	require.NoError(t, <-done)
	assert.Less(t, store.ClaimCount(), int64(50), "claim errors must not spin")
}

type errRunner struct{ err error }

func (errRunner) Name() string { return "failing" }

func (r errRunner) Run(context.Context) error { return r.err }

func TestPool(t *testing.T) {
	store := testutil.NewMockProvider()
	qs := NewQueues(store)
	noop := HandlerFunc[Broadcast](func(context.Context, *queue.Item[Broadcast]) error { return nil })

	p := NewPool(nil)
	p.Add(New("b1", qs.Broadcast, noop, WithRecoveryInterval(10*time.Millisecond)),
		New("b2", qs.Broadcast, noop, WithRecoveryInterval(10*time.Millisecond)))
	assert.Equal(t, 2, p.Size())
	p.Start(context.Background())

	for range 5 {
		_, err := qs.Broadcast.Enqueue(context.Background(), Broadcast{WorldID: "w1"})
		require.NoError(t, err)
	}
	testutil.WaitForItems(t, store, types.QueueBroadcast, types.StatusCompleted, 5, 2*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, p.Stop(ctx))
}

func TestPool_RunnerErrorStopsPool(t *testing.T) {
	store := testutil.NewMockProvider()
	qs := NewQueues(store)
	noop := HandlerFunc[Broadcast](func(context.Context, *queue.Item[Broadcast]) error { return nil })

	p := NewPool(nil)
	p.Add(New("b1", qs.Broadcast, noop, WithRecoveryInterval(10*time.Millisecond)), errRunner{err: errors.New("bad config")})

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failing: bad config")
}

func TestStageWorkers(t *testing.T) {
	qs := NewQueues(testutil.NewMockProvider())
	noop := func() Handlers {
		return Handlers{
			PlayerAction:   HandlerFunc[PlayerAction](func(context.Context, *queue.Item[PlayerAction]) error { return nil }),
			LlmRequest:     HandlerFunc[LlmRequest](func(context.Context, *queue.Item[LlmRequest]) error { return nil }),
			Approval:       HandlerFunc[Approval](func(context.Context, *queue.Item[Approval]) error { return nil }),
			DirectorAction: HandlerFunc[DirectorAction](func(context.Context, *queue.Item[DirectorAction]) error { return nil }),
			StagingRequest: HandlerFunc[StagingRequest](func(context.Context, *queue.Item[StagingRequest]) error { return nil }),
			Broadcast:      HandlerFunc[Broadcast](func(context.Context, *queue.Item[Broadcast]) error { return nil }),
		}
	}

	runners := StageWorkers(qs, noop(), map[types.QueueType]int{
		types.QueuePlayerAction: 3,
		types.QueueBroadcast:    0,
	})
	assert.Len(t, runners, 7)
	assert.Equal(t, "PLAYER_ACTION-3", runners[2].Name())

	h := noop()
	h.Approval = nil
	assert.Len(t, StageWorkers(qs, h, nil), 5)
}
