package notify

import (
	"context"
	"log/slog"
)

// LogSink writes every message to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log sink. A nil logger uses slog.Default.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) SendToDirector(ctx context.Context, worldID string, msg Message) error {
	s.logger.InfoContext(ctx, "to director", "world", worldID, "kind", msg.Kind, "payload", string(msg.Payload))
	return nil
}

func (s *LogSink) BroadcastToPlayers(ctx context.Context, worldID string, msg Message) error {
	s.logger.InfoContext(ctx, "to players", "world", worldID, "kind", msg.Kind, "payload", string(msg.Payload))
	return nil
}
