package providertest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/narrator/internal/provider"
	"github.com/dwsmith1983/narrator/pkg/types"
)

var base = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func newItem(id string, qt types.QueueType, created time.Time) types.QueueItem {
	return types.QueueItem{
		ID:        id,
		Type:      qt,
		Payload:   json.RawMessage(`{"id":"` + id + `"}`),
		Status:    types.StatusPending,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

// TestQueueFIFO verifies claims return the oldest pending item first,
// regardless of insertion order.
func TestQueueFIFO(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	qt := types.QueueType("CT_FIFO")

	require.NoError(t, prov.Enqueue(ctx, newItem("ct-fifo-2", qt, base.Add(2*time.Second))))
	require.NoError(t, prov.Enqueue(ctx, newItem("ct-fifo-0", qt, base)))
	require.NoError(t, prov.Enqueue(ctx, newItem("ct-fifo-1", qt, base.Add(time.Second))))

	for i := 0; i < 3; i++ {
		got, err := prov.ClaimNext(ctx, qt, base.Add(time.Minute))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, fmt.Sprintf("ct-fifo-%d", i), got.ID)
		assert.Equal(t, types.StatusProcessing, got.Status)
		assert.JSONEq(t, `{"id":"`+got.ID+`"}`, string(got.Payload))
	}

	got, err := prov.ClaimNext(ctx, qt, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, got)
}

// TestQueueClaimRace verifies exactly one of many concurrent claimers wins a
// single pending item.
func TestQueueClaimRace(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	qt := types.QueueType("CT_RACE")
	require.NoError(t, prov.Enqueue(ctx, newItem("ct-race", qt, base)))

	var (
		wins atomic.Int32
		wg   sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := prov.ClaimNext(ctx, qt, base.Add(time.Second))
			if err == nil && got != nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

// TestQueueConcurrentDrain verifies concurrent workers drain a queue without
// claiming any item twice.
func TestQueueConcurrentDrain(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	qt := types.QueueType("CT_DRAIN")
	const n = 20
	for i := 0; i < n; i++ {
		require.NoError(t, prov.Enqueue(ctx, newItem(fmt.Sprintf("ct-drain-%02d", i), qt, base.Add(time.Duration(i)*time.Millisecond))))
	}

	var (
		mu      sync.Mutex
		claimed = map[string]int{}
		wg      sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				got, err := prov.ClaimNext(ctx, qt, base.Add(time.Second))
				if err != nil || got == nil {
					return
				}
				mu.Lock()
				claimed[got.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, n)
	for id, c := range claimed {
		assert.Equal(t, 1, c, "item %s claimed %d times", id, c)
	}
}

// TestQueueTransition verifies conditional status transitions.
func TestQueueTransition(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	qt := types.QueueType("CT_TRANSITION")
	require.NoError(t, prov.Enqueue(ctx, newItem("ct-tr", qt, base)))

	err := prov.Transition(ctx, "ct-tr", types.StatusProcessing, types.StatusCompleted, nil, base)
	assert.True(t, errors.Is(err, provider.ErrConflict), "stale from status is rejected")

	_, err = prov.ClaimNext(ctx, qt, base)
	require.NoError(t, err)

	later := base.Add(5 * time.Second)
	require.NoError(t, prov.Transition(ctx, "ct-tr", types.StatusProcessing, types.StatusCompleted, nil, later))

	got, err := prov.GetItem(ctx, "ct-tr")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, types.StatusCompleted, got.Status)
	assert.True(t, later.Equal(got.UpdatedAt))
	assert.True(t, base.Equal(got.CreatedAt))

	err = prov.Transition(ctx, "ct-missing", types.StatusProcessing, types.StatusFailed, nil, later)
	assert.True(t, errors.Is(err, provider.ErrNotFound))
}

// TestQueueSetResultOnce verifies exactly one of many concurrent writers
// records a result and every other writer gets ErrConflict.
func TestQueueSetResultOnce(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	qt := types.QueueType("CT_ONCE")
	require.NoError(t, prov.Enqueue(ctx, newItem("ct-once", qt, base)))

	var (
		wins, conflicts atomic.Int32
		winner          atomic.Int32
		wg              sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result := json.RawMessage(fmt.Sprintf(`{"writer":%d}`, i))
			err := prov.SetResultOnce(ctx, "ct-once", result, base.Add(time.Second))
			switch {
			case err == nil:
				wins.Add(1)
				winner.Store(int32(i))
			case errors.Is(err, provider.ErrConflict):
				conflicts.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(9), conflicts.Load())

	got, err := prov.GetItem(ctx, "ct-once")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.JSONEq(t, fmt.Sprintf(`{"writer":%d}`, winner.Load()), string(got.Result))

	err = prov.SetResultOnce(ctx, "ct-once-missing", json.RawMessage(`{}`), base)
	assert.True(t, errors.Is(err, provider.ErrNotFound))
}

// TestQueueListFinishedSince verifies terminal items page in update order
// from a (time, id) cursor and that a later result moves an item forward.
func TestQueueListFinishedSince(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	qt := types.QueueType("CT_FINISHED")
	for i := 0; i < 4; i++ {
		require.NoError(t, prov.Enqueue(ctx, newItem(fmt.Sprintf("ct-fin-%d", i), qt, base.Add(time.Duration(i)*time.Millisecond))))
		_, err := prov.ClaimNext(ctx, qt, base)
		require.NoError(t, err)
	}
	msg := "boom"
	require.NoError(t, prov.Transition(ctx, "ct-fin-0", types.StatusProcessing, types.StatusCompleted, nil, base.Add(3*time.Second)))
	require.NoError(t, prov.Transition(ctx, "ct-fin-1", types.StatusProcessing, types.StatusFailed, &msg, base.Add(time.Second)))
	require.NoError(t, prov.Transition(ctx, "ct-fin-2", types.StatusProcessing, types.StatusCompleted, nil, base.Add(time.Second)))

	ids := func(items []types.QueueItem) []string {
		out := []string{}
		for _, it := range items {
			out = append(out, it.ID)
		}
		return out
	}

	all, err := prov.ListFinishedSince(ctx, qt, base, "", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"ct-fin-1", "ct-fin-2", "ct-fin-0"}, ids(all), "processing item is excluded")

	page, err := prov.ListFinishedSince(ctx, qt, base.Add(time.Second), "ct-fin-1", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"ct-fin-2"}, ids(page), "ties on update time resume by id")

	page, err = prov.ListFinishedSince(ctx, qt, base.Add(3*time.Second), "ct-fin-0", 0)
	require.NoError(t, err)
	assert.Empty(t, page)

	require.NoError(t, prov.SetResult(ctx, "ct-fin-1", json.RawMessage(`{"late":true}`), base.Add(5*time.Second)))
	page, err = prov.ListFinishedSince(ctx, qt, base.Add(3*time.Second), "ct-fin-0", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"ct-fin-1"}, ids(page))
}

// TestQueueOptionalFields verifies absent and empty optional fields survive a
// round trip distinctly.
func TestQueueOptionalFields(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	qt := types.QueueType("CT_OPTIONAL")

	bare := newItem("ct-opt-bare", qt, base)
	require.NoError(t, prov.Enqueue(ctx, bare))

	empty := ""
	tagged := newItem("ct-opt-tagged", qt, base.Add(time.Second))
	tagged.CorrelationID = &empty
	require.NoError(t, prov.Enqueue(ctx, tagged))

	got, err := prov.GetItem(ctx, "ct-opt-bare")
	require.NoError(t, err)
	assert.Nil(t, got.CorrelationID)
	assert.Nil(t, got.Error)
	assert.Nil(t, got.Result)

	got, err = prov.GetItem(ctx, "ct-opt-tagged")
	require.NoError(t, err)
	require.NotNil(t, got.CorrelationID)
	assert.Equal(t, "", *got.CorrelationID)

	_, err = prov.ClaimNext(ctx, qt, base)
	require.NoError(t, err)
	require.NoError(t, prov.Transition(ctx, "ct-opt-bare", types.StatusProcessing, types.StatusFailed, &empty, base))
	require.NoError(t, prov.SetResult(ctx, "ct-opt-bare", json.RawMessage(`{"reply":"","tokens":0}`), base))

	got, err = prov.GetItem(ctx, "ct-opt-bare")
	require.NoError(t, err)
	require.NotNil(t, got.Error, "empty error message is kept, not dropped")
	assert.Equal(t, "", *got.Error)
	assert.JSONEq(t, `{"reply":"","tokens":0}`, string(got.Result))

	missing, err := prov.GetItem(ctx, "ct-opt-none")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

// TestQueueListAndCount verifies newest-first listing and pending counts.
func TestQueueListAndCount(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	qt := types.QueueType("CT_LIST")
	for i := 0; i < 4; i++ {
		require.NoError(t, prov.Enqueue(ctx, newItem(fmt.Sprintf("ct-list-%d", i), qt, base.Add(time.Duration(i)*time.Second))))
	}
	_, err := prov.ClaimNext(ctx, qt, base)
	require.NoError(t, err)

	count, err := prov.PendingCount(ctx, qt)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	items, err := prov.ListByType(ctx, qt, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "ct-list-3", items[0].ID)
	assert.Equal(t, "ct-list-2", items[1].ID)

	items, err = prov.ListByType(ctx, qt, 0)
	require.NoError(t, err)
	assert.Len(t, items, 4)
}

// TestQueueCancelByCorrelation verifies cancellation removes only pending
// items and is idempotent.
func TestQueueCancelByCorrelation(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	qt := types.QueueType("CT_CANCEL")
	corr := "ct-corr-1"

	for i := 0; i < 3; i++ {
		item := newItem(fmt.Sprintf("ct-cancel-%d", i), qt, base.Add(time.Duration(i)*time.Second))
		item.CorrelationID = &corr
		require.NoError(t, prov.Enqueue(ctx, item))
	}
	claimed, err := prov.ClaimNext(ctx, qt, base)
	require.NoError(t, err)
	require.Equal(t, "ct-cancel-0", claimed.ID)

	n, err := prov.CancelByCorrelation(ctx, corr)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = prov.CancelByCorrelation(ctx, corr)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := prov.GetItem(ctx, "ct-cancel-0")
	require.NoError(t, err)
	require.NotNil(t, got, "claimed item is not cancelled")
	gone, err := prov.GetItem(ctx, "ct-cancel-1")
	require.NoError(t, err)
	assert.Nil(t, gone)

	count, err := prov.PendingCount(ctx, qt)
	require.NoError(t, err)
	assert.Zero(t, count)
}
