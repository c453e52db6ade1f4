package redis

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/narrator/pkg/types"
)

func TestOrderMemberSortsByTime(t *testing.T) {
	early := orderMember(time.Unix(5, 0), "zzz")
	late := orderMember(time.Unix(50, 0), "aaa")
	assert.Less(t, early, late)
	assert.Equal(t, "zzz", memberID(early))
	assert.Equal(t, "id:with:colons", memberID(orderMember(time.Unix(1, 0), "id:with:colons")))
}

func TestEncodeDecodeItemKeepsOptionalDistinct(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 123, time.UTC)
	empty := ""
	item := types.QueueItem{
		ID:            "q-1",
		Type:          types.QueueLlmRequest,
		Payload:       json.RawMessage(`{"a":[]}`),
		Status:        types.StatusFailed,
		CreatedAt:     now,
		UpdatedAt:     now,
		Error:         &empty,
		CorrelationID: nil,
	}

	fields := encodeItem(item)
	got, err := decodeItem(pairsToMap(fields))
	require.NoError(t, err)

	require.NotNil(t, got.Error)
	assert.Equal(t, "", *got.Error)
	assert.Nil(t, got.CorrelationID)
	assert.Nil(t, got.Result)
	assert.JSONEq(t, `{"a":[]}`, string(got.Payload))
	assert.True(t, now.Equal(got.CreatedAt))
}

func TestKeysUsePrefix(t *testing.T) {
	p := NewFromClient(nil, "")
	assert.Equal(t, "narrator:item:x", p.itemKey("x"))
	assert.Equal(t, "narrator:pending:BROADCAST", p.pendingKey(types.QueueBroadcast))
	assert.Equal(t, "narrator:current:r1", p.currentKey("r1"))
	assert.Equal(t, "narrator:finished:BROADCAST", p.finishedKey(types.QueueBroadcast))
}

func TestFinishedCursorIsExclusiveLowerBound(t *testing.T) {
	at := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	cursor := orderMember(at, "01B")
	assert.Less(t, orderMember(at, "01A"), cursor)
	assert.Greater(t, orderMember(at, "01C"), cursor)
	assert.Greater(t, orderMember(at.Add(time.Nanosecond), "01A"), cursor)
}
