package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dwsmith1983/narrator/internal/clock"
	"github.com/dwsmith1983/narrator/internal/notify"
	"github.com/dwsmith1983/narrator/internal/queue"
	"github.com/dwsmith1983/narrator/internal/staging"
)

// StagingRequestHandler answers a region entry. A valid staging is shown
// to players at once; otherwise the director gets a proposal. Without a
// director, or once AutoApproveAfter passes unanswered, the rule-based
// proposal is approved automatically.
type StagingRequestHandler struct {
	Staging          *staging.Engine
	Sink             notify.Sink
	Queues           *Queues
	AutoApprove      bool
	AutoApproveAfter time.Duration // zero waits for the director indefinitely
	Clock            clock.Clock
	Logger           *slog.Logger

	mu      sync.Mutex
	pending map[string]pendingStaging // region id -> awaiting director
}

type pendingStaging struct {
	req      StagingRequest
	deadline time.Time
}

func (h *StagingRequestHandler) now() time.Time { return clock.OrSystem(h.Clock).Now() }

func (h *StagingRequestHandler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func (h *StagingRequestHandler) Handle(ctx context.Context, item *queue.Item[StagingRequest]) error {
	r := item.Data
	current, err := h.Staging.GetCurrentStaging(ctx, r.RegionID, r.GameTime)
	if err != nil {
		return err
	}
	if current != nil {
		return enqueueStagingReady(ctx, h.Queues, current, correlationOf(item))
	}

	director, err := h.Sink.HasDirectorConnected(ctx, r.WorldID)
	if err != nil {
		return fmt.Errorf("checking director session: %w", err)
	}
	if !director {
		if !h.AutoApprove {
			return fmt.Errorf("region %s needs staging: %w", r.RegionID, ErrNoDirector)
		}
		return h.autoApprove(ctx, r, correlationOf(item))
	}

	p, err := h.Staging.GenerateProposal(ctx, proposalRequest(r))
	if err != nil {
		return err
	}
	msg, err := notify.NewMessage(notify.KindStagingRequired, r.WorldID, StagingProposal{
		RequestID:  item.ID,
		RegionID:   p.RegionID,
		LocationID: p.LocationID,
		GameTime:   p.GameTime,
		RuleBased:  p.RuleBased,
		LLMBased:   p.LLMBased,
		UsedLLM:    p.UsedLLM,
	}, h.now())
	if err != nil {
		return err
	}
	if err := h.Sink.SendToDirector(ctx, r.WorldID, msg); err != nil {
		return err
	}
	if h.AutoApprove && h.AutoApproveAfter > 0 {
		h.mu.Lock()
		if h.pending == nil {
			h.pending = make(map[string]pendingStaging)
		}
		h.pending[r.RegionID] = pendingStaging{req: r, deadline: h.now().Add(h.AutoApproveAfter)}
		h.mu.Unlock()
	}
	return nil
}

func (h *StagingRequestHandler) autoApprove(ctx context.Context, r StagingRequest, opts ...queue.EnqueueOption) error {
	s, err := h.Staging.AutoApprove(ctx, proposalRequest(r))
	if err != nil {
		return err
	}
	h.logger().Info("staging auto-approved", "region", r.RegionID, "staging", s.ID)
	return enqueueStagingReady(ctx, h.Queues, s, opts...)
}

// Sweep auto-approves regions whose director did not answer before the
// deadline. Regions that got a valid staging meanwhile are dropped.
func (h *StagingRequestHandler) Sweep(ctx context.Context) {
	now := h.now()
	var due []pendingStaging
	h.mu.Lock()
	for region, p := range h.pending {
		if !now.Before(p.deadline) {
			due = append(due, p)
			delete(h.pending, region)
		}
	}
	h.mu.Unlock()

	for _, p := range due {
		current, err := h.Staging.GetCurrentStaging(ctx, p.req.RegionID, p.req.GameTime)
		if err != nil {
			h.logger().Error("auto-approve check failed", "region", p.req.RegionID, "error", err)
			continue
		}
		if current != nil {
			continue
		}
		if err := h.autoApprove(ctx, p.req); err != nil {
			h.logger().Error("auto-approve failed", "region", p.req.RegionID, "error", err)
		}
	}
}

// Pending returns how many regions await a director decision.
func (h *StagingRequestHandler) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// Sweeper returns a Runner that calls Sweep every interval.
func (h *StagingRequestHandler) Sweeper(interval time.Duration) Runner {
	return &sweeper{h: h, interval: interval}
}

type sweeper struct {
	h        *StagingRequestHandler
	interval time.Duration
}

func (s *sweeper) Name() string { return "staging-auto-approve" }

func (s *sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.h.Sweep(ctx)
		}
	}
}

func proposalRequest(r StagingRequest) staging.ProposalRequest {
	return staging.ProposalRequest{
		WorldID:    r.WorldID,
		RegionID:   r.RegionID,
		LocationID: r.LocationID,
		GameTime:   r.GameTime,
		Guidance:   r.Guidance,
	}
}
