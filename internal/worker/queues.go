package worker

import (
	"github.com/dwsmith1983/narrator/internal/provider"
	"github.com/dwsmith1983/narrator/internal/queue"
	"github.com/dwsmith1983/narrator/pkg/types"
)

// Queues holds one typed queue per pipeline stage over a shared store and
// wake signal.
type Queues struct {
	PlayerAction   *queue.Queue[PlayerAction]
	LlmRequest     *queue.Queue[LlmRequest]
	Approval       *queue.Queue[Approval]
	DirectorAction *queue.Queue[DirectorAction]
	StagingRequest *queue.Queue[StagingRequest]
	Broadcast      *queue.Queue[Broadcast]
}

// NewQueues binds every stage queue to store. Pass queue.WithNotifier to
// share a wake signal.
func NewQueues(store provider.QueueStore, opts ...queue.Option) *Queues {
	return &Queues{
		PlayerAction:   queue.New[PlayerAction](store, types.QueuePlayerAction, opts...),
		LlmRequest:     queue.New[LlmRequest](store, types.QueueLlmRequest, opts...),
		Approval:       queue.New[Approval](store, types.QueueDmApproval, opts...),
		DirectorAction: queue.New[DirectorAction](store, types.QueueDirectorAction, opts...),
		StagingRequest: queue.New[StagingRequest](store, types.QueueStagingRequest, opts...),
		Broadcast:      queue.New[Broadcast](store, types.QueueBroadcast, opts...),
	}
}
