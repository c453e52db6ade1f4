// Package archiver provides a background process that copies finished queue
// items and staging history into Postgres for durable long-term storage.
package archiver

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dwsmith1983/narrator/internal/provider"
	"github.com/dwsmith1983/narrator/pkg/types"
)

const (
	defaultInterval = 5 * time.Minute
	defaultBatch    = 100
	cursorScope     = "queue"
	// maxIDSentinel sorts after any ULID, so a bare timestamp cursor skips
	// every item at that instant.
	maxIDSentinel = "\U0010FFFF"
)

var epoch = time.Unix(0, 0).UTC()

// Destination defines the write interface for the archival backend.
type Destination interface {
	UpsertQueueItem(ctx context.Context, item types.QueueItem) error
	UpsertStaging(ctx context.Context, staging types.Staging) error
	GetCursor(ctx context.Context, scope, dataType string) (string, error)
	SetCursor(ctx context.Context, scope, dataType, cursorValue string) error
}

// RegionLister returns the regions whose staging history is archived.
type RegionLister func(ctx context.Context) ([]string, error)

// Archiver periodically archives provider data to Postgres.
type Archiver struct {
	source   provider.Provider
	dest     Destination
	regions  RegionLister
	interval time.Duration
	batch    int
	logger   *slog.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a new Archiver. regions may be nil to skip staging history.
func New(source provider.Provider, dest Destination, regions RegionLister, interval time.Duration, logger *slog.Logger) *Archiver {
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		source:   source,
		dest:     dest,
		regions:  regions,
		interval: interval,
		batch:    defaultBatch,
		logger:   logger,
	}
}

// Start begins the archiver background loop.
func (a *Archiver) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Add(1)
	go a.loop(ctx)
	a.logger.Info("archiver started", "interval", a.interval)
}

// Stop signals the archiver to stop and waits for it to finish.
func (a *Archiver) Stop(_ context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	a.logger.Info("archiver stopped")
}

func (a *Archiver) loop(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	// Run once immediately on start
	a.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Tick(ctx)
		}
	}
}

// Tick runs one archival pass.
func (a *Archiver) Tick(ctx context.Context) {
	for _, qt := range types.AllQueueTypes {
		if ctx.Err() != nil {
			return
		}
		a.archiveQueue(ctx, qt)
	}
	if a.regions == nil {
		return
	}
	regions, err := a.regions(ctx)
	if err != nil {
		a.logger.Error("archiver: list regions failed", "error", err)
		return
	}
	for _, region := range regions {
		if ctx.Err() != nil {
			return
		}
		a.archiveStagings(ctx, region)
	}
}

// archiveQueue copies finished items past the stored cursor a page at a time.
// The cursor advances only past items that were written successfully.
func (a *Archiver) archiveQueue(ctx context.Context, qt types.QueueType) {
	cursor, err := a.dest.GetCursor(ctx, cursorScope, string(qt))
	if err != nil {
		a.logger.Error("archiver: get cursor failed", "queue", qt, "error", err)
		return
	}
	since, afterID, err := parseCursor(cursor)
	if err != nil {
		a.logger.Warn("archiver: ignoring malformed cursor", "queue", qt, "cursor", cursor)
		since, afterID = epoch, ""
	}

	for ctx.Err() == nil {
		items, err := a.source.ListFinishedSince(ctx, qt, since, afterID, a.batch)
		if err != nil {
			a.logger.Error("archiver: list items failed", "queue", qt, "error", err)
			return
		}
		if len(items) == 0 {
			return
		}

		n := 0
		for _, it := range items {
			if err := a.dest.UpsertQueueItem(ctx, it); err != nil {
				a.logger.Error("archiver: upsert item failed", "queue", qt, "item", it.ID, "error", err)
				break
			}
			since, afterID = it.UpdatedAt, it.ID
			n++
		}
		if n > 0 {
			if err := a.dest.SetCursor(ctx, cursorScope, string(qt), formatCursor(since, afterID)); err != nil {
				a.logger.Error("archiver: set cursor failed", "queue", qt, "error", err)
				return
			}
		}
		if n < len(items) || len(items) < a.batch {
			return
		}
	}
}

// Cursors are "<unix nanos>/<item id>". A bare timestamp is accepted and
// resumes after every item updated at that instant.
func formatCursor(t time.Time, id string) string {
	return strconv.FormatInt(t.UnixNano(), 10) + "/" + id
}

func parseCursor(s string) (time.Time, string, error) {
	if s == "" {
		return epoch, "", nil
	}
	ts, id, found := strings.Cut(s, "/")
	n, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Time{}, "", err
	}
	if !found {
		id = maxIDSentinel
	}
	return time.Unix(0, n).UTC(), id, nil
}

func (a *Archiver) archiveStagings(ctx context.Context, regionID string) {
	history, err := a.source.ListStagingHistory(ctx, regionID, 0)
	if err != nil {
		a.logger.Error("archiver: list stagings failed", "region", regionID, "error", err)
		return
	}
	for _, st := range history {
		if err := a.dest.UpsertStaging(ctx, st); err != nil {
			a.logger.Error("archiver: upsert staging failed", "region", regionID, "staging", st.ID, "error", err)
		}
	}
}
