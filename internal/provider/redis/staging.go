package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dwsmith1983/narrator/internal/provider"
	"github.com/dwsmith1983/narrator/pkg/types"
)

// A staging is active exactly when its region's current pointer names it, so
// approving a new staging deactivates the previous one in the same write.

// SaveApprovedStaging stores the staging and repoints its region atomically.
func (p *RedisProvider) SaveApprovedStaging(ctx context.Context, s types.Staging) error {
	s.IsActive = true
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling staging: %w", err)
	}
	n, err := p.approveScript.Run(ctx, p.client,
		[]string{p.stagingKey(s.ID), p.historyKey(s.RegionID), p.currentKey(s.RegionID)},
		data, orderMember(s.ApprovedAt, s.ID), s.ID,
	).Int()
	if err != nil {
		return fmt.Errorf("approve staging %s: %w", s.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("staging %s: %w", s.ID, provider.ErrConflict)
	}
	return nil
}

// GetCurrentStaging returns the staging the region points at, or nil.
func (p *RedisProvider) GetCurrentStaging(ctx context.Context, regionID string) (*types.Staging, error) {
	id, err := p.currentID(ctx, regionID)
	if err != nil || id == "" {
		return nil, err
	}
	return p.GetStaging(ctx, id)
}

// GetStaging returns the staging or nil when it does not exist.
func (p *RedisProvider) GetStaging(ctx context.Context, id string) (*types.Staging, error) {
	data, err := p.client.Get(ctx, p.stagingKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get staging %s: %w", id, err)
	}
	var s types.Staging
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshaling staging %s: %w", id, err)
	}
	current, err := p.currentID(ctx, s.RegionID)
	if err != nil {
		return nil, err
	}
	s.IsActive = current == s.ID
	return &s, nil
}

// ListStagingHistory returns the region's stagings, newest approval first.
func (p *RedisProvider) ListStagingHistory(ctx context.Context, regionID string, limit int) ([]types.Staging, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	members, err := p.client.ZRevRange(ctx, p.historyKey(regionID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("staging history %s: %w", regionID, err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = p.stagingKey(memberID(m))
	}
	vals, err := p.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("staging history %s: %w", regionID, err)
	}
	current, err := p.currentID(ctx, regionID)
	if err != nil {
		return nil, err
	}

	out := make([]types.Staging, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var s types.Staging
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, fmt.Errorf("unmarshaling staging: %w", err)
		}
		s.IsActive = current == s.ID
		out = append(out, s)
	}
	return out, nil
}

func (p *RedisProvider) currentID(ctx context.Context, regionID string) (string, error) {
	id, err := p.client.Get(ctx, p.currentKey(regionID)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("current staging %s: %w", regionID, err)
	}
	return id, nil
}
