package redis

import (
	"fmt"
	"strings"
	"time"

	"github.com/dwsmith1983/narrator/pkg/types"
)

// Sorted sets hold every member at score 0 so ordering is lexicographic on
// the member, which starts with a zero-padded nanosecond timestamp.
func orderMember(t time.Time, id string) string {
	return fmt.Sprintf("%020d:%s", t.UTC().UnixNano(), id)
}

func memberID(member string) string {
	if i := strings.IndexByte(member, ':'); i >= 0 {
		return member[i+1:]
	}
	return member
}

func (p *RedisProvider) itemPrefix() string { return p.prefix + "item:" }

func (p *RedisProvider) itemKey(id string) string { return p.itemPrefix() + id }

func (p *RedisProvider) pendingPrefix() string { return p.prefix + "pending:" }

func (p *RedisProvider) pendingKey(qt types.QueueType) string { return p.pendingPrefix() + string(qt) }

func (p *RedisProvider) typeIndexPrefix() string { return p.prefix + "items:" }

func (p *RedisProvider) typeIndexKey(qt types.QueueType) string {
	return p.typeIndexPrefix() + string(qt)
}

func (p *RedisProvider) finishedPrefix() string { return p.prefix + "finished:" }

func (p *RedisProvider) finishedKey(qt types.QueueType) string {
	return p.finishedPrefix() + string(qt)
}

func (p *RedisProvider) correlationKey(correlationID string) string {
	return p.prefix + "corr:" + correlationID
}

func (p *RedisProvider) stagingKey(id string) string { return p.prefix + "staging:" + id }

func (p *RedisProvider) historyKey(regionID string) string { return p.prefix + "history:" + regionID }

func (p *RedisProvider) currentKey(regionID string) string { return p.prefix + "current:" + regionID }
