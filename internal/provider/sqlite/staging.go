package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dwsmith1983/narrator/internal/provider"
	"github.com/dwsmith1983/narrator/pkg/types"
)

const stagingColumns = `id, region_id, location_id, world_id, game_time, approved_at, ttl_hours, approved_by, source, guidance, is_active`

// SaveApprovedStaging replaces the region's active staging in one transaction.
func (p *SQLiteProvider) SaveApprovedStaging(ctx context.Context, s types.Staging) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin approve %s: %w", s.ID, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE stagings SET is_active = 0 WHERE region_id = ? AND is_active = 1`, s.RegionID,
	); err != nil {
		return fmt.Errorf("deactivate region %s: %w", s.RegionID, err)
	}

	res, err := tx.ExecContext(ctx, `
INSERT INTO stagings (`+stagingColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
ON CONFLICT (id) DO NOTHING`,
		s.ID,
		s.RegionID,
		s.LocationID,
		s.WorldID,
		toNanos(s.GameTime),
		toNanos(s.ApprovedAt),
		s.TTLHours,
		s.ApprovedBy,
		string(s.Source),
		nullString(s.Guidance),
	)
	if err != nil {
		return fmt.Errorf("insert staging %s: %w", s.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("staging %s: %w", s.ID, provider.ErrConflict)
	}

	for i, npc := range s.NPCs {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO staged_npcs (staging_id, position, character_id, name, sprite_asset, portrait_asset, is_present, is_hidden, reasoning)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ID, i, npc.CharacterID, npc.Name,
			nullString(npc.SpriteAsset), nullString(npc.PortraitAsset),
			boolInt(npc.IsPresent), boolInt(npc.IsHiddenFromPlayers), npc.Reasoning,
		); err != nil {
			return fmt.Errorf("insert npc %s for staging %s: %w", npc.CharacterID, s.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO current_stagings (region_id, staging_id) VALUES (?, ?)
ON CONFLICT (region_id) DO UPDATE SET staging_id = excluded.staging_id`,
		s.RegionID, s.ID,
	); err != nil {
		return fmt.Errorf("point region %s at %s: %w", s.RegionID, s.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit approve %s: %w", s.ID, err)
	}
	return nil
}

// GetCurrentStaging returns the staging the region points at, or nil.
func (p *SQLiteProvider) GetCurrentStaging(ctx context.Context, regionID string) (*types.Staging, error) {
	var id string
	err := p.db.QueryRowContext(ctx, `SELECT staging_id FROM current_stagings WHERE region_id = ?`, regionID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("current staging %s: %w", regionID, err)
	}
	return p.GetStaging(ctx, id)
}

// GetStaging returns the staging with its NPCs, or nil.
func (p *SQLiteProvider) GetStaging(ctx context.Context, id string) (*types.Staging, error) {
	s, err := scanStaging(p.db.QueryRowContext(ctx, `SELECT `+stagingColumns+` FROM stagings WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get staging %s: %w", id, err)
	}
	if err := p.loadNPCs(ctx, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListStagingHistory returns the region's stagings, newest approval first.
func (p *SQLiteProvider) ListStagingHistory(ctx context.Context, regionID string, limit int) ([]types.Staging, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := p.db.QueryContext(ctx, `
SELECT `+stagingColumns+` FROM stagings
WHERE region_id = ?
ORDER BY approved_at DESC, id DESC
LIMIT ?`, regionID, limit)
	if err != nil {
		return nil, fmt.Errorf("staging history %s: %w", regionID, err)
	}
	var out []types.Staging
	for rows.Next() {
		s, err := scanStaging(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan staging: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// NPC rows are read after the cursor is closed; the pool holds one connection.
	for i := range out {
		if err := p.loadNPCs(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanStaging(row rowScanner) (types.Staging, error) {
	var (
		s        types.Staging
		gameTime int64
		approved int64
		source   string
		guidance sql.NullString
		active   int
	)
	err := row.Scan(&s.ID, &s.RegionID, &s.LocationID, &s.WorldID, &gameTime, &approved,
		&s.TTLHours, &s.ApprovedBy, &source, &guidance, &active)
	if err != nil {
		return types.Staging{}, err
	}
	s.GameTime = fromNanos(gameTime)
	s.ApprovedAt = fromNanos(approved)
	s.Source = types.StagingSource(source)
	s.Guidance = stringPtr(guidance)
	s.IsActive = active == 1
	return s, nil
}

func (p *SQLiteProvider) loadNPCs(ctx context.Context, s *types.Staging) error {
	rows, err := p.db.QueryContext(ctx, `
SELECT character_id, name, sprite_asset, portrait_asset, is_present, is_hidden, reasoning
FROM staged_npcs WHERE staging_id = ? ORDER BY position`, s.ID)
	if err != nil {
		return fmt.Errorf("load npcs for %s: %w", s.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			npc              types.StagedNpc
			sprite, portrait sql.NullString
			present, hidden  int
		)
		if err := rows.Scan(&npc.CharacterID, &npc.Name, &sprite, &portrait, &present, &hidden, &npc.Reasoning); err != nil {
			return fmt.Errorf("scan npc for %s: %w", s.ID, err)
		}
		npc.SpriteAsset = stringPtr(sprite)
		npc.PortraitAsset = stringPtr(portrait)
		npc.IsPresent = present == 1
		npc.IsHiddenFromPlayers = hidden == 1
		s.NPCs = append(s.NPCs, npc)
	}
	return rows.Err()
}
