package worker

import (
	"context"
	"fmt"

	"github.com/dwsmith1983/narrator/internal/llm"
	"github.com/dwsmith1983/narrator/internal/queue"
	"github.com/dwsmith1983/narrator/pkg/types"
)

// LlmRequestHandler calls the AI and queues the reply for director approval.
// LLM should be an llm.ResilientProvider so every caller shares one breaker.
type LlmRequestHandler struct {
	LLM    llm.Provider
	Queues *Queues
}

func (h *LlmRequestHandler) Handle(ctx context.Context, item *queue.Item[LlmRequest]) error {
	req := item.Data
	var (
		resp *types.LlmResponse
		err  error
	)
	if len(req.Tools) > 0 {
		resp, err = h.LLM.GenerateWithTools(ctx, req.Request, req.Tools)
	} else {
		resp, err = h.LLM.Generate(ctx, req.Request)
	}
	if err != nil {
		return fmt.Errorf("generating response: %w", err)
	}
	if err := h.Queues.LlmRequest.SetResult(ctx, item.ID, resp); err != nil {
		return err
	}
	_, err = h.Queues.Approval.Enqueue(ctx, Approval{
		WorldID:      req.WorldID,
		Source:       req,
		ProposedText: resp.Content,
		ToolCalls:    resp.ToolCalls,
	}, correlationOf(item))
	return err
}
