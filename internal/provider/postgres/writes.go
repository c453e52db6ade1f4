package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dwsmith1983/narrator/pkg/types"
)

// UpsertQueueItem upserts a finished queue item.
func (a *Archive) UpsertQueueItem(ctx context.Context, item types.QueueItem) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO queue_items (id, queue_type, status, payload, result, error, correlation_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status      = EXCLUDED.status,
			result      = EXCLUDED.result,
			error       = EXCLUDED.error,
			updated_at  = EXCLUDED.updated_at,
			archived_at = NOW()
	`, item.ID, string(item.Type), string(item.Status), []byte(item.Payload), []byte(item.Result),
		item.Error, item.CorrelationID, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert queue item %s: %w", item.ID, err)
	}
	return nil
}

// UpsertStaging upserts a staging with its NPC rows.
func (a *Archive) UpsertStaging(ctx context.Context, st types.Staging) error {
	npcs, err := json.Marshal(st.NPCs)
	if err != nil {
		return fmt.Errorf("marshal staging npcs: %w", err)
	}
	_, err = a.pool.Exec(ctx, `
		INSERT INTO stagings (id, region_id, location_id, world_id, game_time, approved_at,
			ttl_hours, approved_by, source, guidance, is_active, npcs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			is_active   = EXCLUDED.is_active,
			archived_at = NOW()
	`, st.ID, st.RegionID, st.LocationID, st.WorldID, st.GameTime, st.ApprovedAt,
		st.TTLHours, st.ApprovedBy, string(st.Source), st.Guidance, st.IsActive, npcs)
	if err != nil {
		return fmt.Errorf("upsert staging %s: %w", st.ID, err)
	}
	return nil
}

// GetCursor returns the archival cursor for a scope and data type, or "".
func (a *Archive) GetCursor(ctx context.Context, scope, dataType string) (string, error) {
	var val string
	err := a.pool.QueryRow(ctx,
		"SELECT cursor_value FROM archive_cursors WHERE scope = $1 AND data_type = $2",
		scope, dataType).Scan(&val)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get cursor %s/%s: %w", scope, dataType, err)
	}
	return val, nil
}

// SetCursor upserts the archival cursor for a scope and data type.
func (a *Archive) SetCursor(ctx context.Context, scope, dataType, cursorValue string) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO archive_cursors (scope, data_type, cursor_value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (scope, data_type) DO UPDATE SET
			cursor_value = EXCLUDED.cursor_value,
			updated_at   = NOW()
	`, scope, dataType, cursorValue)
	if err != nil {
		return fmt.Errorf("set cursor %s/%s: %w", scope, dataType, err)
	}
	return nil
}
