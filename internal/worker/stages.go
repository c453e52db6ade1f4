package worker

import (
	"fmt"

	"github.com/dwsmith1983/narrator/pkg/types"
)

// Handlers holds one handler per pipeline stage. Nil stages get no worker.
type Handlers struct {
	PlayerAction   Handler[PlayerAction]
	LlmRequest     Handler[LlmRequest]
	Approval       Handler[Approval]
	DirectorAction Handler[DirectorAction]
	StagingRequest Handler[StagingRequest]
	Broadcast      Handler[Broadcast]
}

// StageWorkers builds counts[qt] workers per stage, one when unset.
// ASSET_GENERATION never gets a worker.
func StageWorkers(qs *Queues, h Handlers, counts map[types.QueueType]int, opts ...Option) []Runner {
	var out []Runner
	add := func(qt types.QueueType, build func(name string) Runner) {
		n, ok := counts[qt]
		if !ok {
			n = 1
		}
		for i := range n {
			out = append(out, build(fmt.Sprintf("%s-%d", qt, i+1)))
		}
	}
	if h.PlayerAction != nil {
		add(types.QueuePlayerAction, func(name string) Runner { return New(name, qs.PlayerAction, h.PlayerAction, opts...) })
	}
	if h.LlmRequest != nil {
		add(types.QueueLlmRequest, func(name string) Runner { return New(name, qs.LlmRequest, h.LlmRequest, opts...) })
	}
	if h.Approval != nil {
		add(types.QueueDmApproval, func(name string) Runner { return New(name, qs.Approval, h.Approval, opts...) })
	}
	if h.DirectorAction != nil {
		add(types.QueueDirectorAction, func(name string) Runner { return New(name, qs.DirectorAction, h.DirectorAction, opts...) })
	}
	if h.StagingRequest != nil {
		add(types.QueueStagingRequest, func(name string) Runner { return New(name, qs.StagingRequest, h.StagingRequest, opts...) })
	}
	if h.Broadcast != nil {
		add(types.QueueBroadcast, func(name string) Runner { return New(name, qs.Broadcast, h.Broadcast, opts...) })
	}
	return out
}
