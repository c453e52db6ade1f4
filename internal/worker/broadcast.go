package worker

import (
	"context"

	"github.com/dwsmith1983/narrator/internal/clock"
	"github.com/dwsmith1983/narrator/internal/notify"
	"github.com/dwsmith1983/narrator/internal/queue"
)

// BroadcastHandler delivers a message to every player in a world.
type BroadcastHandler struct {
	Sink  notify.Sink
	Clock clock.Clock
}

func (h *BroadcastHandler) Handle(ctx context.Context, item *queue.Item[Broadcast]) error {
	b := item.Data
	return h.Sink.BroadcastToPlayers(ctx, b.WorldID, notify.Message{
		Kind:      b.Kind,
		WorldID:   b.WorldID,
		Payload:   b.Body,
		Timestamp: clock.OrSystem(h.Clock).Now(),
	})
}
