package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dwsmith1983/narrator/pkg/types"
)

var _ Sink = (*Dispatcher)(nil)

// Dispatcher fans messages out to every publisher and answers session
// queries from a single registry.
type Dispatcher struct {
	registry   SessionRegistry
	publishers []Publisher
	logger     *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger used for delivery failures.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher creates a dispatcher over the given publishers.
func NewDispatcher(registry SessionRegistry, publishers []Publisher, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry:   registry,
		publishers: publishers,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FromConfig builds a dispatcher from sink configs. With no configs it
// falls back to a single LogSink.
func FromConfig(ctx context.Context, registry SessionRegistry, configs []types.SinkConfig, logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pubs := make([]Publisher, 0, len(configs))
	for _, cfg := range configs {
		p, err := newPublisher(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("creating %s sink: %w", cfg.Type, err)
		}
		pubs = append(pubs, p)
	}
	if len(pubs) == 0 {
		pubs = append(pubs, NewLogSink(logger))
	}
	return NewDispatcher(registry, pubs, WithLogger(logger)), nil
}

func newPublisher(ctx context.Context, cfg types.SinkConfig, logger *slog.Logger) (Publisher, error) {
	switch cfg.Type {
	case types.SinkLog:
		return NewLogSink(logger), nil
	case types.SinkWebhook:
		if cfg.URL == "" {
			return nil, fmt.Errorf("webhook URL required")
		}
		return NewWebhookSink(cfg.URL, WithWebhookLogger(logger)), nil
	case types.SinkEventBridge:
		return NewEventBridgeSink(ctx, cfg.EventBusName, cfg.Source)
	default:
		return nil, fmt.Errorf("unknown sink type %q", cfg.Type)
	}
}

func (d *Dispatcher) Name() string { return "dispatcher" }

// SendToDirector delivers msg through every publisher. Failures are logged
// and joined; one failing publisher does not stop the others.
func (d *Dispatcher) SendToDirector(ctx context.Context, worldID string, msg Message) error {
	return d.fanOut(ctx, "director", func(p Publisher) error {
		return p.SendToDirector(ctx, worldID, msg)
	})
}

// BroadcastToPlayers delivers msg to the world's players through every publisher.
func (d *Dispatcher) BroadcastToPlayers(ctx context.Context, worldID string, msg Message) error {
	return d.fanOut(ctx, "players", func(p Publisher) error {
		return p.BroadcastToPlayers(ctx, worldID, msg)
	})
}

func (d *Dispatcher) ListActiveWorldIDs(ctx context.Context) ([]string, error) {
	return d.registry.ListActiveWorldIDs(ctx)
}

func (d *Dispatcher) HasDirectorConnected(ctx context.Context, worldID string) (bool, error) {
	return d.registry.HasDirectorConnected(ctx, worldID)
}

func (d *Dispatcher) fanOut(ctx context.Context, audience string, send func(Publisher) error) error {
	var errs []error
	for _, p := range d.publishers {
		if err := send(p); err != nil {
			d.logger.ErrorContext(ctx, "notification delivery failed", "sink", p.Name(), "audience", audience, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}
