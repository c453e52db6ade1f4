package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
)

// DefaultEventSource is the event source used when none is configured.
const DefaultEventSource = "narrator"

// EventBridgeAPI is the subset of the EventBridge client used by EventBridgeSink.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, input *eventbridge.PutEventsInput, opts ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridgeSink publishes messages to an event bus. The connection layer
// subscribes with rules on detail-type and worldId.
type EventBridgeSink struct {
	client EventBridgeAPI
	bus    string
	source string
}

// EventBridgeOption configures an EventBridgeSink.
type EventBridgeOption func(*EventBridgeSink)

// WithEventBridgeClient sets a custom client (useful for testing).
func WithEventBridgeClient(c EventBridgeAPI) EventBridgeOption {
	return func(s *EventBridgeSink) { s.client = c }
}

// NewEventBridgeSink creates a sink for the named bus. An empty bus name
// targets the account's default bus.
func NewEventBridgeSink(ctx context.Context, bus, source string, opts ...EventBridgeOption) (*EventBridgeSink, error) {
	if source == "" {
		source = DefaultEventSource
	}
	s := &EventBridgeSink{bus: bus, source: source}
	for _, o := range opts {
		o(s)
	}
	if s.client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		s.client = eventbridge.NewFromConfig(cfg)
	}
	return s, nil
}

func (s *EventBridgeSink) Name() string { return "eventbridge" }

func (s *EventBridgeSink) SendToDirector(ctx context.Context, worldID string, msg Message) error {
	return s.put(ctx, AudienceDirector, worldID, msg)
}

func (s *EventBridgeSink) BroadcastToPlayers(ctx context.Context, worldID string, msg Message) error {
	return s.put(ctx, AudiencePlayers, worldID, msg)
}

func (s *EventBridgeSink) put(ctx context.Context, audience, worldID string, msg Message) error {
	detail, err := json.Marshal(webhookEnvelope{Audience: audience, WorldID: worldID, Message: msg})
	if err != nil {
		return fmt.Errorf("marshaling event detail: %w", err)
	}
	entry := ebtypes.PutEventsRequestEntry{
		Source:     aws.String(s.source),
		DetailType: aws.String(string(msg.Kind)),
		Detail:     aws.String(string(detail)),
	}
	if s.bus != "" {
		entry.EventBusName = aws.String(s.bus)
	}
	if !msg.Timestamp.IsZero() {
		entry.Time = aws.Time(msg.Timestamp)
	}

	out, err := s.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: []ebtypes.PutEventsRequestEntry{entry}})
	if err != nil {
		return fmt.Errorf("putting event: %w", err)
	}
	if out.FailedEntryCount > 0 {
		code, reason := "unknown", ""
		if len(out.Entries) > 0 {
			code = aws.ToString(out.Entries[0].ErrorCode)
			reason = aws.ToString(out.Entries[0].ErrorMessage)
		}
		return fmt.Errorf("event rejected: %s %s", code, reason)
	}
	return nil
}
