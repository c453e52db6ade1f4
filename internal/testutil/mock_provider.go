// Package testutil provides shared test utilities for narrator.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dwsmith1983/narrator/internal/provider"
	"github.com/dwsmith1983/narrator/pkg/types"
)

// Compile-time interface satisfaction check.
var _ provider.Provider = (*MockProvider)(nil)

// MockProvider is an in-memory Provider implementation for testing.
type MockProvider struct {
	mu       sync.Mutex
	items    map[string]types.QueueItem
	stagings map[string]types.Staging
	current  map[string]string // region id -> staging id

	claimCount atomic.Int64 // incremented on each ClaimNext call
	claimErr   error
}

// NewMockProvider creates a new in-memory mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		items:    make(map[string]types.QueueItem),
		stagings: make(map[string]types.Staging),
		current:  make(map[string]string),
	}
}

func (m *MockProvider) Start(context.Context) error { return nil }
func (m *MockProvider) Stop(context.Context) error  { return nil }
func (m *MockProvider) Ping(context.Context) error  { return nil }

// FailClaims makes every subsequent ClaimNext return err (nil restores).
func (m *MockProvider) FailClaims(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claimErr = err
}

// ClaimCount reports how many times ClaimNext was called.
func (m *MockProvider) ClaimCount() int64 { return m.claimCount.Load() }

func (m *MockProvider) Enqueue(_ context.Context, item types.QueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.items[item.ID]; exists {
		return fmt.Errorf("item %s: %w", item.ID, provider.ErrConflict)
	}
	m.items[item.ID] = cloneItem(item)
	return nil
}

func (m *MockProvider) ClaimNext(_ context.Context, queueType types.QueueType, now time.Time) (*types.QueueItem, error) {
	m.claimCount.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return nil, m.claimErr
	}

	var oldest *types.QueueItem
	for id := range m.items {
		it := m.items[id]
		if it.Type != queueType || it.Status != types.StatusPending {
			continue
		}
		if oldest == nil || itemBefore(it, *oldest) {
			oldest = &it
		}
	}
	if oldest == nil {
		return nil, nil
	}
	oldest.Status = types.StatusProcessing
	oldest.UpdatedAt = now
	m.items[oldest.ID] = *oldest
	out := cloneItem(*oldest)
	return &out, nil
}

func (m *MockProvider) GetItem(_ context.Context, id string) (*types.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	out := cloneItem(it)
	return &out, nil
}

func (m *MockProvider) Transition(_ context.Context, id string, from, to types.QueueStatus, errMsg *string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return fmt.Errorf("item %s: %w", id, provider.ErrNotFound)
	}
	if it.Status != from {
		return fmt.Errorf("item %s is %s, not %s: %w", id, it.Status, from, provider.ErrConflict)
	}
	it.Status = to
	it.UpdatedAt = now
	if errMsg != nil {
		msg := *errMsg
		it.Error = &msg
	}
	m.items[id] = it
	return nil
}

func (m *MockProvider) SetResult(_ context.Context, id string, result json.RawMessage, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return fmt.Errorf("item %s: %w", id, provider.ErrNotFound)
	}
	it.Result = append(json.RawMessage(nil), result...)
	it.UpdatedAt = now
	m.items[id] = it
	return nil
}

func (m *MockProvider) SetResultOnce(_ context.Context, id string, result json.RawMessage, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return fmt.Errorf("item %s: %w", id, provider.ErrNotFound)
	}
	if it.Result != nil {
		return fmt.Errorf("item %s already has a result: %w", id, provider.ErrConflict)
	}
	it.Result = append(json.RawMessage{}, result...)
	it.UpdatedAt = now
	m.items[id] = it
	return nil
}

func (m *MockProvider) ListByType(_ context.Context, queueType types.QueueType, limit int) ([]types.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.QueueItem
	for _, it := range m.items {
		if it.Type == queueType {
			out = append(out, cloneItem(it))
		}
	}
	sort.Slice(out, func(i, j int) bool { return itemBefore(out[j], out[i]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockProvider) ListFinishedSince(_ context.Context, queueType types.QueueType, since time.Time, afterID string, limit int) ([]types.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.QueueItem
	for _, it := range m.items {
		if it.Type == queueType && it.IsTerminal() && provider.AfterCursor(it, since, afterID) {
			out = append(out, cloneItem(it))
		}
	}
	sort.Slice(out, func(i, j int) bool { return !provider.AfterCursor(out[i], out[j].UpdatedAt, out[j].ID) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockProvider) PendingCount(_ context.Context, queueType types.QueueType) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, it := range m.items {
		if it.Type == queueType && it.Status == types.StatusPending {
			n++
		}
	}
	return n, nil
}

func (m *MockProvider) CancelByCorrelation(_ context.Context, correlationID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, it := range m.items {
		if it.Status == types.StatusPending && it.CorrelationID != nil && *it.CorrelationID == correlationID {
			delete(m.items, id)
			n++
		}
	}
	return n, nil
}

// Items returns a snapshot of every stored queue item.
func (m *MockProvider) Items() []types.QueueItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.QueueItem, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, cloneItem(it))
	}
	sort.Slice(out, func(i, j int) bool { return itemBefore(out[i], out[j]) })
	return out
}

func (m *MockProvider) SaveApprovedStaging(_ context.Context, s types.Staging) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.stagings[s.ID]; exists {
		return fmt.Errorf("staging %s: %w", s.ID, provider.ErrConflict)
	}
	for id, existing := range m.stagings {
		if existing.RegionID == s.RegionID && existing.IsActive {
			existing.IsActive = false
			m.stagings[id] = existing
		}
	}
	s.IsActive = true
	m.stagings[s.ID] = cloneStaging(s)
	m.current[s.RegionID] = s.ID
	return nil
}

func (m *MockProvider) GetCurrentStaging(_ context.Context, regionID string) (*types.Staging, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.current[regionID]
	if !ok {
		return nil, nil
	}
	s := cloneStaging(m.stagings[id])
	return &s, nil
}

func (m *MockProvider) GetStaging(_ context.Context, id string) (*types.Staging, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stagings[id]
	if !ok {
		return nil, nil
	}
	out := cloneStaging(s)
	return &out, nil
}

func (m *MockProvider) ListStagingHistory(_ context.Context, regionID string, limit int) ([]types.Staging, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Staging
	for _, s := range m.stagings {
		if s.RegionID == regionID {
			out = append(out, cloneStaging(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ApprovedAt.Equal(out[j].ApprovedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].ApprovedAt.After(out[j].ApprovedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func itemBefore(a, b types.QueueItem) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func cloneItem(it types.QueueItem) types.QueueItem {
	out := it
	out.Payload = append(json.RawMessage(nil), it.Payload...)
	if it.Result != nil {
		out.Result = append(json.RawMessage(nil), it.Result...)
	}
	return out
}

func cloneStaging(s types.Staging) types.Staging {
	out := s
	out.NPCs = append([]types.StagedNpc(nil), s.NPCs...)
	return out
}
