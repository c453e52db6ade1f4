// Package provider defines the storage backend interfaces for narrator.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dwsmith1983/narrator/internal/narrative"
	"github.com/dwsmith1983/narrator/pkg/types"
)

var (
	// ErrNotFound is returned when updating a record that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional write loses to a concurrent one.
	ErrConflict = errors.New("conflicting update")
)

// QueueStore is the durable backing store for the persistent queue.
type QueueStore interface {
	Enqueue(ctx context.Context, item types.QueueItem) error
	// ClaimNext atomically flips the oldest PENDING item of the given type to
	// PROCESSING and returns it. It returns nil when nothing is pending.
	ClaimNext(ctx context.Context, queueType types.QueueType, now time.Time) (*types.QueueItem, error)
	GetItem(ctx context.Context, id string) (*types.QueueItem, error)
	// Transition moves an item from one status to another, failing with
	// ErrConflict when the stored status is not from.
	Transition(ctx context.Context, id string, from, to types.QueueStatus, errMsg *string, now time.Time) error
	SetResult(ctx context.Context, id string, result json.RawMessage, now time.Time) error
	// SetResultOnce stores result only when the item has none yet. A second
	// call fails with ErrConflict; exactly one of several racing callers wins.
	SetResultOnce(ctx context.Context, id string, result json.RawMessage, now time.Time) error
	// ListByType returns items of a type, newest first.
	ListByType(ctx context.Context, queueType types.QueueType, limit int) ([]types.QueueItem, error)
	// ListFinishedSince returns COMPLETED and FAILED items of a type ordered by
	// update time then id, starting strictly after the cursor (since, afterID).
	// A non-positive limit returns every match.
	ListFinishedSince(ctx context.Context, queueType types.QueueType, since time.Time, afterID string, limit int) ([]types.QueueItem, error)
	PendingCount(ctx context.Context, queueType types.QueueType) (int, error)
	// CancelByCorrelation deletes PENDING items carrying the correlation id
	// and returns how many were removed.
	CancelByCorrelation(ctx context.Context, correlationID string) (int, error)
}

// AfterCursor reports whether an item sorts strictly after the finished-items
// cursor (since, afterID).
func AfterCursor(item types.QueueItem, since time.Time, afterID string) bool {
	if item.UpdatedAt.Equal(since) {
		return item.ID > afterID
	}
	return item.UpdatedAt.After(since)
}

// StagingStore persists stagings and the per-region current pointer.
type StagingStore interface {
	// SaveApprovedStaging deactivates every staging of the region, stores the
	// new one with its NPCs and points the region at it, as one atomic unit.
	SaveApprovedStaging(ctx context.Context, staging types.Staging) error
	GetCurrentStaging(ctx context.Context, regionID string) (*types.Staging, error)
	GetStaging(ctx context.Context, id string) (*types.Staging, error)
	// ListStagingHistory returns stagings of a region, newest approval first.
	ListStagingHistory(ctx context.Context, regionID string, limit int) ([]types.Staging, error)
}

// Provider is a storage backend serving both the queue and stagings.
type Provider interface {
	QueueStore
	StagingStore

	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Ping(ctx context.Context) error
}

// WorldRepository resolves worlds and their narrative state.
type WorldRepository interface {
	GetWorld(ctx context.Context, id string) (*types.World, error)
	GetWorldState(ctx context.Context, worldID string) (*types.WorldState, error)
	SaveWorldState(ctx context.Context, state types.WorldState) error
}

// RegionRepository resolves regions and the NPC relationships staged in them.
type RegionRepository interface {
	GetRegion(ctx context.Context, id string) (*types.Region, error)
	ListRegionRelations(ctx context.Context, regionID string) ([]types.NpcRegionRelation, error)
}

// CharacterRepository resolves characters by id.
type CharacterRepository interface {
	GetCharacter(ctx context.Context, id string) (*types.Character, error)
}

// NarrativeEventRepository resolves director-designed narrative events.
type NarrativeEventRepository interface {
	GetEvent(ctx context.Context, id string) (*narrative.Event, error)
	ListActiveEvents(ctx context.Context, worldID string) ([]narrative.Event, error)
}
