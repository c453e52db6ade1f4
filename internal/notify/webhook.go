package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// Webhook delivery defaults.
const (
	webhookTimeout      = 10 * time.Second
	webhookTripAfter    = 5
	webhookOpenDuration = 30 * time.Second
)

// Audience values sent in the webhook envelope.
const (
	AudienceDirector = "director"
	AudiencePlayers  = "players"
)

type webhookEnvelope struct {
	Audience string  `json:"audience"`
	WorldID  string  `json:"worldId"`
	Message  Message `json:"message"`
}

// WebhookSink posts messages as JSON to a URL. Repeated failures open a
// circuit breaker so a dead endpoint does not slow every delivery.
type WebhookSink struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// WebhookOption configures a WebhookSink.
type WebhookOption func(*WebhookSink)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(s *WebhookSink) { s.client = c }
}

// WithWebhookLogger sets the logger used for breaker transitions.
func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(s *WebhookSink) { s.logger = l }
}

// NewWebhookSink creates a webhook sink for url.
func NewWebhookSink(url string, opts ...WebhookOption) *WebhookSink {
	s := &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: webhookTimeout},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "webhook",
		MaxRequests: 1,
		Timeout:     webhookOpenDuration,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= webhookTripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("webhook breaker state changed", "url", s.url, "from", from.String(), "to", to.String())
		},
	})
	return s
}

func (s *WebhookSink) Name() string { return "webhook" }

// State returns the breaker state.
func (s *WebhookSink) State() gobreaker.State { return s.breaker.State() }

func (s *WebhookSink) SendToDirector(ctx context.Context, worldID string, msg Message) error {
	return s.send(ctx, webhookEnvelope{Audience: AudienceDirector, WorldID: worldID, Message: msg})
}

func (s *WebhookSink) BroadcastToPlayers(ctx context.Context, worldID string, msg Message) error {
	return s.send(ctx, webhookEnvelope{Audience: AudiencePlayers, WorldID: worldID, Message: msg})
}

func (s *WebhookSink) send(ctx context.Context, env webhookEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling webhook body: %w", err)
	}
	if _, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.doPost(ctx, data)
	}); err != nil {
		return fmt.Errorf("webhook POST failed: %w", err)
	}
	return nil
}

func (s *WebhookSink) doPost(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
