package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dwsmith1983/narrator/pkg/types"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to types.QueueStatus
		want     bool
	}{
		{types.StatusPending, types.StatusProcessing, true},
		{types.StatusProcessing, types.StatusCompleted, true},
		{types.StatusProcessing, types.StatusFailed, true},
		{types.StatusPending, types.StatusCompleted, false},
		{types.StatusCompleted, types.StatusProcessing, false},
		{types.StatusFailed, types.StatusPending, false},
		{types.StatusProcessing, types.StatusPending, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestValidateTransition(t *testing.T) {
	assert.NoError(t, ValidateTransition(types.StatusPending, types.StatusProcessing))
	assert.EqualError(t, ValidateTransition(types.StatusFailed, types.StatusCompleted),
		"invalid queue transition from FAILED to COMPLETED")
}
