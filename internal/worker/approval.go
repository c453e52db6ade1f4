package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/dwsmith1983/narrator/internal/clock"
	"github.com/dwsmith1983/narrator/internal/notify"
	"github.com/dwsmith1983/narrator/internal/queue"
)

// ErrNoDirector fails items that need a director when none is connected.
var ErrNoDirector = errors.New("no director connected")

// ApprovalHandler shows a pending AI reply to the world's director.
type ApprovalHandler struct {
	Sink  notify.Sink
	Clock clock.Clock
}

func (h *ApprovalHandler) Handle(ctx context.Context, item *queue.Item[Approval]) error {
	a := item.Data
	ok, err := h.Sink.HasDirectorConnected(ctx, a.WorldID)
	if err != nil {
		return fmt.Errorf("checking director session: %w", err)
	}
	if !ok {
		return fmt.Errorf("world %s: %w", a.WorldID, ErrNoDirector)
	}
	msg, err := notify.NewMessage(notify.KindApprovalRequired, a.WorldID, ApprovalRequired{
		RequestID:    item.ID,
		PlayerID:     a.Source.Action.PlayerID,
		Action:       a.Source.Action.Content,
		ProposedText: a.ProposedText,
		ToolCalls:    a.ToolCalls,
		Suggestions:  a.Source.Suggestions,
		Attempt:      a.Source.Attempt,
	}, clock.OrSystem(h.Clock).Now())
	if err != nil {
		return err
	}
	return h.Sink.SendToDirector(ctx, a.WorldID, msg)
}
