// Package notify delivers pipeline messages to directors and players and
// tracks which worlds have live sessions.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// MessageKind names the payload carried by a Message.
type MessageKind string

// MessageKind values.
const (
	KindApprovalRequired MessageKind = "approval_required"
	KindNarration        MessageKind = "narration"
	KindStagingRequired  MessageKind = "staging_required"
	KindStagingReady     MessageKind = "staging_ready"
	KindEventTriggered   MessageKind = "event_triggered"
	KindStatusReport     MessageKind = "status_report"
)

// Message is one outbound notification. Payload is the JSON body the
// connection layer forwards unchanged.
type Message struct {
	Kind      MessageKind     `json:"kind"`
	WorldID   string          `json:"worldId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage marshals payload into a Message stamped with now.
func NewMessage(kind MessageKind, worldID string, payload any, now time.Time) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshaling %s payload: %w", kind, err)
	}
	return Message{Kind: kind, WorldID: worldID, Payload: data, Timestamp: now}, nil
}

// Publisher sends messages out of the core. It never owns socket framing.
type Publisher interface {
	Name() string
	SendToDirector(ctx context.Context, worldID string, msg Message) error
	BroadcastToPlayers(ctx context.Context, worldID string, msg Message) error
}

// SessionRegistry reports which worlds have connected clients.
type SessionRegistry interface {
	ListActiveWorldIDs(ctx context.Context) ([]string, error)
	HasDirectorConnected(ctx context.Context, worldID string) (bool, error)
}

// Sink is the full notification port used by workers.
type Sink interface {
	Publisher
	SessionRegistry
}
