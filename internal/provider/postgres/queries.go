package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dwsmith1983/narrator/pkg/types"
)

// ListArchivedItems returns archived items of a type, newest first.
func (a *Archive) ListArchivedItems(ctx context.Context, queueType types.QueueType, limit int) ([]types.QueueItem, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := a.pool.Query(ctx, `
		SELECT id, queue_type, status, payload, result, error, correlation_id, created_at, updated_at
		FROM queue_items
		WHERE queue_type = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, string(queueType), limit)
	if err != nil {
		return nil, fmt.Errorf("list archived %s: %w", queueType, err)
	}
	defer rows.Close()

	var out []types.QueueItem
	for rows.Next() {
		var (
			it               types.QueueItem
			qt, status       string
			payload, result  []byte
			created, updated time.Time
		)
		if err := rows.Scan(&it.ID, &qt, &status, &payload, &result, &it.Error, &it.CorrelationID, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan archived item: %w", err)
		}
		it.Type = types.QueueType(qt)
		it.Status = types.QueueStatus(status)
		it.Payload = json.RawMessage(payload)
		if result != nil {
			it.Result = json.RawMessage(result)
		}
		it.CreatedAt = created.UTC()
		it.UpdatedAt = updated.UTC()
		out = append(out, it)
	}
	return out, rows.Err()
}

// ListArchivedStagings returns archived stagings of a region, newest approval first.
func (a *Archive) ListArchivedStagings(ctx context.Context, regionID string, limit int) ([]types.Staging, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := a.pool.Query(ctx, `
		SELECT id, region_id, location_id, world_id, game_time, approved_at,
			ttl_hours, approved_by, source, guidance, is_active, npcs
		FROM stagings
		WHERE region_id = $1
		ORDER BY approved_at DESC, id DESC
		LIMIT $2
	`, regionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list archived stagings %s: %w", regionID, err)
	}
	defer rows.Close()

	var out []types.Staging
	for rows.Next() {
		var (
			st     types.Staging
			source string
			npcs   []byte
		)
		if err := rows.Scan(&st.ID, &st.RegionID, &st.LocationID, &st.WorldID, &st.GameTime, &st.ApprovedAt,
			&st.TTLHours, &st.ApprovedBy, &source, &st.Guidance, &st.IsActive, &npcs); err != nil {
			return nil, fmt.Errorf("scan archived staging: %w", err)
		}
		st.Source = types.StagingSource(source)
		st.GameTime = st.GameTime.UTC()
		st.ApprovedAt = st.ApprovedAt.UTC()
		if err := json.Unmarshal(npcs, &st.NPCs); err != nil {
			return nil, fmt.Errorf("unmarshal staging npcs: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
