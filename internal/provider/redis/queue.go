package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dwsmith1983/narrator/internal/provider"
	"github.com/dwsmith1983/narrator/pkg/types"
)

func encodeItem(item types.QueueItem) []any {
	fields := []any{
		"id", item.ID,
		"type", string(item.Type),
		"payload", string(item.Payload),
		"status", string(item.Status),
		"createdAt", strconv.FormatInt(item.CreatedAt.UTC().UnixNano(), 10),
		"updatedAt", strconv.FormatInt(item.UpdatedAt.UTC().UnixNano(), 10),
		"member", orderMember(item.CreatedAt, item.ID),
	}
	if item.Error != nil {
		fields = append(fields, "error", *item.Error)
	}
	if item.Result != nil {
		fields = append(fields, "result", string(item.Result))
	}
	if item.CorrelationID != nil {
		fields = append(fields, "correlationId", *item.CorrelationID)
	}
	return fields
}

func decodeItem(h map[string]string) (types.QueueItem, error) {
	created, err := strconv.ParseInt(h["createdAt"], 10, 64)
	if err != nil {
		return types.QueueItem{}, fmt.Errorf("item %s createdAt: %w", h["id"], err)
	}
	updated, err := strconv.ParseInt(h["updatedAt"], 10, 64)
	if err != nil {
		return types.QueueItem{}, fmt.Errorf("item %s updatedAt: %w", h["id"], err)
	}
	it := types.QueueItem{
		ID:        h["id"],
		Type:      types.QueueType(h["type"]),
		Payload:   json.RawMessage(h["payload"]),
		Status:    types.QueueStatus(h["status"]),
		CreatedAt: time.Unix(0, created).UTC(),
		UpdatedAt: time.Unix(0, updated).UTC(),
	}
	if v, ok := h["error"]; ok {
		it.Error = &v
	}
	if v, ok := h["result"]; ok {
		it.Result = json.RawMessage(v)
	}
	if v, ok := h["correlationId"]; ok {
		it.CorrelationID = &v
	}
	return it, nil
}

// pairsToMap converts an HGETALL reply returned from a script.
func pairsToMap(vals []any) map[string]string {
	out := make(map[string]string, len(vals)/2)
	for i := 0; i+1 < len(vals); i += 2 {
		k, _ := vals[i].(string)
		v, _ := vals[i+1].(string)
		out[k] = v
	}
	return out
}

// Enqueue stores a new item and indexes it. Duplicate ids fail with ErrConflict.
func (p *RedisProvider) Enqueue(ctx context.Context, item types.QueueItem) error {
	keys := []string{p.itemKey(item.ID), p.pendingKey(item.Type), p.typeIndexKey(item.Type)}
	if item.CorrelationID != nil {
		keys = append(keys, p.correlationKey(*item.CorrelationID))
	}
	args := append([]any{
		orderMember(item.CreatedAt, item.ID), item.ID, string(item.Status),
		p.finishedKey(item.Type), orderMember(item.UpdatedAt, item.ID),
	}, encodeItem(item)...)

	n, err := p.enqueueScript.Run(ctx, p.client, keys, args...).Int()
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", item.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("enqueue %s: %w", item.ID, provider.ErrConflict)
	}
	return nil
}

// ClaimNext pops the oldest pending member and flips its item to PROCESSING.
func (p *RedisProvider) ClaimNext(ctx context.Context, queueType types.QueueType, now time.Time) (*types.QueueItem, error) {
	vals, err := p.claimScript.Run(ctx, p.client,
		[]string{p.pendingKey(queueType)},
		p.itemPrefix(),
		string(types.StatusPending),
		string(types.StatusProcessing),
		strconv.FormatInt(now.UTC().UnixNano(), 10),
	).Slice()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", queueType, err)
	}
	it, err := decodeItem(pairsToMap(vals))
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// GetItem returns the item or nil when it does not exist.
func (p *RedisProvider) GetItem(ctx context.Context, id string) (*types.QueueItem, error) {
	h, err := p.client.HGetAll(ctx, p.itemKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	if len(h) == 0 {
		return nil, nil
	}
	it, err := decodeItem(h)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// Transition performs a conditional status update.
func (p *RedisProvider) Transition(ctx context.Context, id string, from, to types.QueueStatus, errMsg *string, now time.Time) error {
	hasErr, msg := "0", ""
	if errMsg != nil {
		hasErr, msg = "1", *errMsg
	}
	n, err := p.transitionScript.Run(ctx, p.client,
		[]string{p.itemKey(id)},
		string(from), string(to),
		strconv.FormatInt(now.UTC().UnixNano(), 10),
		hasErr, msg,
		p.pendingPrefix(),
		p.finishedPrefix(), orderMember(now, id),
	).Int()
	if err != nil {
		return fmt.Errorf("transition %s: %w", id, err)
	}
	switch n {
	case -1:
		return fmt.Errorf("item %s: %w", id, provider.ErrNotFound)
	case 0:
		return fmt.Errorf("item %s is not %s: %w", id, from, provider.ErrConflict)
	}
	return nil
}

// SetResult stores the item's result payload.
func (p *RedisProvider) SetResult(ctx context.Context, id string, result json.RawMessage, now time.Time) error {
	n, err := p.resultScript.Run(ctx, p.client,
		[]string{p.itemKey(id)},
		string(result),
		strconv.FormatInt(now.UTC().UnixNano(), 10),
		p.finishedPrefix(), orderMember(now, id),
	).Int()
	if err != nil {
		return fmt.Errorf("set result %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("item %s: %w", id, provider.ErrNotFound)
	}
	return nil
}

// SetResultOnce stores the result unless one is already recorded.
func (p *RedisProvider) SetResultOnce(ctx context.Context, id string, result json.RawMessage, now time.Time) error {
	n, err := p.resultOnce.Run(ctx, p.client,
		[]string{p.itemKey(id)},
		string(result),
		strconv.FormatInt(now.UTC().UnixNano(), 10),
		p.finishedPrefix(), orderMember(now, id),
	).Int()
	if err != nil {
		return fmt.Errorf("set result %s: %w", id, err)
	}
	switch n {
	case -1:
		return fmt.Errorf("item %s: %w", id, provider.ErrNotFound)
	case 0:
		return fmt.Errorf("item %s already has a result: %w", id, provider.ErrConflict)
	}
	return nil
}

// ListByType returns items newest first. A non-positive limit returns all.
func (p *RedisProvider) ListByType(ctx context.Context, queueType types.QueueType, limit int) ([]types.QueueItem, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	members, err := p.client.ZRevRange(ctx, p.typeIndexKey(queueType), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", queueType, err)
	}
	return p.loadMembers(ctx, queueType, members)
}

// ListFinishedSince reads the finished set from just past the cursor member.
func (p *RedisProvider) ListFinishedSince(ctx context.Context, queueType types.QueueType, since time.Time, afterID string, limit int) ([]types.QueueItem, error) {
	by := &goredis.ZRangeBy{Min: "(" + orderMember(since, afterID), Max: "+"}
	if limit > 0 {
		by.Count = int64(limit)
	}
	members, err := p.client.ZRangeByLex(ctx, p.finishedKey(queueType), by).Result()
	if err != nil {
		return nil, fmt.Errorf("list finished %s: %w", queueType, err)
	}
	return p.loadMembers(ctx, queueType, members)
}

// loadMembers fetches the items behind index members in one pipeline,
// skipping members whose item is gone.
func (p *RedisProvider) loadMembers(ctx context.Context, queueType types.QueueType, members []string) ([]types.QueueItem, error) {
	pipe := p.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(members))
	for i, m := range members {
		cmds[i] = pipe.HGetAll(ctx, p.itemKey(memberID(m)))
	}
	if len(cmds) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("load %s items: %w", queueType, err)
		}
	}

	var out []types.QueueItem
	for _, cmd := range cmds {
		h := cmd.Val()
		if len(h) == 0 {
			continue
		}
		it, err := decodeItem(h)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

// PendingCount counts pending items of a type.
func (p *RedisProvider) PendingCount(ctx context.Context, queueType types.QueueType) (int, error) {
	n, err := p.client.ZCard(ctx, p.pendingKey(queueType)).Result()
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", queueType, err)
	}
	return int(n), nil
}

// CancelByCorrelation deletes pending items carrying the correlation id.
func (p *RedisProvider) CancelByCorrelation(ctx context.Context, correlationID string) (int, error) {
	n, err := p.cancelScript.Run(ctx, p.client,
		[]string{p.correlationKey(correlationID)},
		p.itemPrefix(), p.pendingPrefix(), p.typeIndexPrefix(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("cancel %s: %w", correlationID, err)
	}
	return n, nil
}
