package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/dwsmith1983/narrator/internal/clock"
	"github.com/dwsmith1983/narrator/internal/notify"
	"github.com/dwsmith1983/narrator/internal/provider"
	"github.com/dwsmith1983/narrator/pkg/types"
)

// Reporter defaults.
const (
	DefaultReportInterval = time.Minute
	failedScanLimit       = 50
	failedReportLimit     = 10
)

// StatusReport is the body of a status report sent to a director.
type StatusReport struct {
	Pending map[types.QueueType]int `json:"pending"`
	Failed  []FailedItem            `json:"failed,omitempty"`
}

// FailedItem is a failed queue item shown to the director.
type FailedItem struct {
	ID        string          `json:"id"`
	Type      types.QueueType `json:"type"`
	Error     string          `json:"error"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// StatusReporter periodically tells each connected director how much work
// is pending and which items failed, so failures never go unseen.
type StatusReporter struct {
	store    provider.QueueStore
	sink     notify.Sink
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger
}

// NewStatusReporter creates a reporter.
func NewStatusReporter(store provider.QueueStore, sink notify.Sink, interval time.Duration, logger *slog.Logger) *StatusReporter {
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusReporter{store: store, sink: sink, interval: interval, clock: clock.System{}, logger: logger}
}

func (r *StatusReporter) Name() string { return "status-reporter" }

func (r *StatusReporter) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			r.Report(ctx)
		}
	}
}

// Report sends one round of status reports.
func (r *StatusReporter) Report(ctx context.Context) {
	worlds, err := r.sink.ListActiveWorldIDs(ctx)
	if err != nil {
		r.logger.Error("listing active worlds", "error", err)
		return
	}
	for _, worldID := range worlds {
		if ctx.Err() != nil {
			return
		}
		ok, err := r.sink.HasDirectorConnected(ctx, worldID)
		if err != nil || !ok {
			continue
		}
		report, err := r.build(ctx, worldID)
		if err != nil {
			r.logger.Error("building status report", "world", worldID, "error", err)
			continue
		}
		msg, err := notify.NewMessage(notify.KindStatusReport, worldID, report, r.clock.Now())
		if err != nil {
			continue
		}
		if err := r.sink.SendToDirector(ctx, worldID, msg); err != nil {
			r.logger.Warn("sending status report", "world", worldID, "error", err)
			continue
		}
		reportsSent.Add(ctx, 1)
	}
}

// build counts pending items store-wide and lists the world's recent
// failures. Pending counts are not per world; the store only indexes by type.
func (r *StatusReporter) build(ctx context.Context, worldID string) (StatusReport, error) {
	report := StatusReport{Pending: make(map[types.QueueType]int)}
	for _, qt := range types.AllQueueTypes {
		n, err := r.store.PendingCount(ctx, qt)
		if err != nil {
			return report, err
		}
		report.Pending[qt] = n

		items, err := r.store.ListByType(ctx, qt, failedScanLimit)
		if err != nil {
			return report, err
		}
		for _, it := range items {
			if it.Status != types.StatusFailed || payloadWorld(it.Payload) != worldID {
				continue
			}
			f := FailedItem{ID: it.ID, Type: it.Type, UpdatedAt: it.UpdatedAt}
			if it.Error != nil {
				f.Error = *it.Error
			}
			report.Failed = append(report.Failed, f)
		}
	}
	if len(report.Failed) > failedReportLimit {
		report.Failed = report.Failed[:failedReportLimit]
	}
	return report, nil
}

func payloadWorld(payload json.RawMessage) string {
	var head struct {
		WorldID string `json:"worldId"`
	}
	_ = json.Unmarshal(payload, &head)
	return head.WorldID
}
