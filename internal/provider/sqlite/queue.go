package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dwsmith1983/narrator/internal/provider"
	"github.com/dwsmith1983/narrator/pkg/types"
)

const itemColumns = `id, queue_type, payload, status, created_at, updated_at, error, result, correlation_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (types.QueueItem, error) {
	var (
		it          types.QueueItem
		qt, status  string
		payload     string
		created     int64
		updated     int64
		errMsg      sql.NullString
		result      sql.NullString
		correlation sql.NullString
	)
	if err := row.Scan(&it.ID, &qt, &payload, &status, &created, &updated, &errMsg, &result, &correlation); err != nil {
		return types.QueueItem{}, err
	}
	it.Type = types.QueueType(qt)
	it.Status = types.QueueStatus(status)
	it.Payload = json.RawMessage(payload)
	it.CreatedAt = fromNanos(created)
	it.UpdatedAt = fromNanos(updated)
	it.Error = stringPtr(errMsg)
	if result.Valid {
		it.Result = json.RawMessage(result.String)
	}
	it.CorrelationID = stringPtr(correlation)
	return it, nil
}

// Enqueue inserts a new item. Duplicate ids fail with ErrConflict.
func (p *SQLiteProvider) Enqueue(ctx context.Context, item types.QueueItem) error {
	var result sql.NullString
	if item.Result != nil {
		result = sql.NullString{String: string(item.Result), Valid: true}
	}
	res, err := p.db.ExecContext(ctx, `
INSERT INTO queue_items (`+itemColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`,
		item.ID,
		string(item.Type),
		string(item.Payload),
		string(item.Status),
		toNanos(item.CreatedAt),
		toNanos(item.UpdatedAt),
		nullString(item.Error),
		result,
		nullString(item.CorrelationID),
	)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", item.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("enqueue %s: %w", item.ID, provider.ErrConflict)
	}
	return nil
}

// ClaimNext flips the oldest pending item to PROCESSING in one statement.
func (p *SQLiteProvider) ClaimNext(ctx context.Context, queueType types.QueueType, now time.Time) (*types.QueueItem, error) {
	row := p.db.QueryRowContext(ctx, `
UPDATE queue_items
SET status = ?, updated_at = ?
WHERE id = (
	SELECT id FROM queue_items
	WHERE queue_type = ? AND status = ?
	ORDER BY created_at, id
	LIMIT 1
) AND status = ?
RETURNING `+itemColumns,
		string(types.StatusProcessing),
		toNanos(now),
		string(queueType),
		string(types.StatusPending),
		string(types.StatusPending),
	)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", queueType, err)
	}
	return &it, nil
}

// GetItem returns the item or nil when it does not exist.
func (p *SQLiteProvider) GetItem(ctx context.Context, id string) (*types.QueueItem, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE id = ?`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	return &it, nil
}

// Transition performs a conditional status update.
func (p *SQLiteProvider) Transition(ctx context.Context, id string, from, to types.QueueStatus, errMsg *string, now time.Time) error {
	res, err := p.db.ExecContext(ctx, `
UPDATE queue_items
SET status = ?, updated_at = ?, error = COALESCE(?, error)
WHERE id = ? AND status = ?`,
		string(to), toNanos(now), nullString(errMsg), id, string(from),
	)
	if err != nil {
		return fmt.Errorf("transition %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	return p.missingOrConflict(ctx, id, from)
}

// SetResult stores the item's result payload.
func (p *SQLiteProvider) SetResult(ctx context.Context, id string, result json.RawMessage, now time.Time) error {
	res, err := p.db.ExecContext(ctx, `UPDATE queue_items SET result = ?, updated_at = ? WHERE id = ?`,
		string(result), toNanos(now), id)
	if err != nil {
		return fmt.Errorf("set result %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("item %s: %w", id, provider.ErrNotFound)
	}
	return nil
}

// SetResultOnce stores the result unless one is already recorded.
func (p *SQLiteProvider) SetResultOnce(ctx context.Context, id string, result json.RawMessage, now time.Time) error {
	res, err := p.db.ExecContext(ctx, `UPDATE queue_items SET result = ?, updated_at = ? WHERE id = ? AND result IS NULL`,
		string(result), toNanos(now), id)
	if err != nil {
		return fmt.Errorf("set result %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	var one int
	err = p.db.QueryRowContext(ctx, `SELECT 1 FROM queue_items WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("item %s: %w", id, provider.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read item %s: %w", id, err)
	}
	return fmt.Errorf("item %s already has a result: %w", id, provider.ErrConflict)
}

func (p *SQLiteProvider) missingOrConflict(ctx context.Context, id string, from types.QueueStatus) error {
	var status string
	err := p.db.QueryRowContext(ctx, `SELECT status FROM queue_items WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("item %s: %w", id, provider.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read item %s: %w", id, err)
	}
	return fmt.Errorf("item %s is %s, not %s: %w", id, status, from, provider.ErrConflict)
}

// ListByType returns items newest first. A non-positive limit returns all.
func (p *SQLiteProvider) ListByType(ctx context.Context, queueType types.QueueType, limit int) ([]types.QueueItem, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := p.db.QueryContext(ctx, `
SELECT `+itemColumns+` FROM queue_items
WHERE queue_type = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`, string(queueType), limit)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", queueType, err)
	}
	defer rows.Close()

	var out []types.QueueItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", queueType, err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// ListFinishedSince pages terminal items in update order after the cursor.
func (p *SQLiteProvider) ListFinishedSince(ctx context.Context, queueType types.QueueType, since time.Time, afterID string, limit int) ([]types.QueueItem, error) {
	if limit <= 0 {
		limit = -1
	}
	ts := toNanos(since)
	rows, err := p.db.QueryContext(ctx, `
SELECT `+itemColumns+` FROM queue_items
WHERE queue_type = ? AND status IN (?, ?)
  AND (updated_at > ? OR (updated_at = ? AND id > ?))
ORDER BY updated_at, id
LIMIT ?`,
		string(queueType), string(types.StatusCompleted), string(types.StatusFailed),
		ts, ts, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list finished %s: %w", queueType, err)
	}
	defer rows.Close()

	var out []types.QueueItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", queueType, err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// PendingCount counts pending items of a type.
func (p *SQLiteProvider) PendingCount(ctx context.Context, queueType types.QueueType) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queue_items WHERE queue_type = ? AND status = ?`,
		string(queueType), string(types.StatusPending),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", queueType, err)
	}
	return n, nil
}

// CancelByCorrelation deletes pending items carrying the correlation id.
func (p *SQLiteProvider) CancelByCorrelation(ctx context.Context, correlationID string) (int, error) {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM queue_items WHERE correlation_id = ? AND status = ?`,
		correlationID, string(types.StatusPending),
	)
	if err != nil {
		return 0, fmt.Errorf("cancel %s: %w", correlationID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cancel %s: %w", correlationID, err)
	}
	return int(n), nil
}
