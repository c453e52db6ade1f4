package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dwsmith1983/narrator/internal/narrative"
	"github.com/dwsmith1983/narrator/internal/notify"
	"github.com/dwsmith1983/narrator/internal/provider"
	"github.com/dwsmith1983/narrator/internal/queue"
	"github.com/dwsmith1983/narrator/internal/staging"
	"github.com/dwsmith1983/narrator/pkg/types"
)

// ErrAlreadyDecided rejects a second decision on the same approval.
var ErrAlreadyDecided = errors.New("approval already decided")

// DefaultDirectorID is recorded as the approver when an action names none.
const DefaultDirectorID = "director"

// DirectorActionHandler applies director decisions.
type DirectorActionHandler struct {
	Queues  *Queues
	Staging *staging.Engine
	Worlds  provider.WorldRepository
	Events  provider.NarrativeEventRepository
}

func (h *DirectorActionHandler) Handle(ctx context.Context, item *queue.Item[DirectorAction]) error {
	a := item.Data
	if a.WorldID == "" {
		return fmt.Errorf("director action needs a world id")
	}
	switch d := a.Decision.(type) {
	case *ApprovalDecision:
		return h.approval(ctx, item, d)
	case *StagingDecision:
		return h.stage(ctx, item, d)
	case *TriggerEventDecision:
		return h.triggerEvent(ctx, item, d)
	case *DirectNpcControl:
		return h.directNpc(ctx, item, d)
	default:
		return fmt.Errorf("unsupported director decision %T", a.Decision)
	}
}

func (h *DirectorActionHandler) approval(ctx context.Context, item *queue.Item[DirectorAction], d *ApprovalDecision) error {
	appr, err := h.Queues.Approval.Get(ctx, d.RequestID)
	if err != nil {
		return fmt.Errorf("loading approval %s: %w", d.RequestID, err)
	}
	if appr == nil {
		return fmt.Errorf("approval %s: %w", d.RequestID, provider.ErrNotFound)
	}
	if appr.Data.WorldID != item.Data.WorldID {
		return fmt.Errorf("approval %s belongs to world %s", d.RequestID, appr.Data.WorldID)
	}
	if appr.Result != nil {
		return fmt.Errorf("approval %s: %w", d.RequestID, ErrAlreadyDecided)
	}

	src := appr.Data.Source
	chain := queue.WithCorrelationID(appr.ID)
	if appr.CorrelationID != nil {
		chain = queue.WithCorrelationID(*appr.CorrelationID)
	}
	var followUp func() error
	switch d.Decision {
	case types.DecisionAccept, types.DecisionModify:
		text := appr.Data.ProposedText
		if d.Decision == types.DecisionModify {
			text = strings.TrimSpace(d.ModifiedText)
			if text == "" {
				return fmt.Errorf("modify decision needs modified text")
			}
		}
		b, err := newBroadcast(src.WorldID, notify.KindNarration, Narration{PlayerID: src.Action.PlayerID, Text: text})
		if err != nil {
			return err
		}
		followUp = func() error {
			_, err := h.Queues.Broadcast.Enqueue(ctx, b, chain)
			return err
		}
	case types.DecisionReject:
		retry := src
		retry.Request = withFeedback(src.Request, appr.Data.ProposedText, d.Feedback)
		retry.Attempt = src.Attempt + 1
		followUp = func() error {
			_, err := h.Queues.LlmRequest.Enqueue(ctx, retry, chain)
			return err
		}
	default:
		return fmt.Errorf("unknown approval decision %q", d.Decision)
	}

	// The decision is recorded before any follow-up exists, so of two
	// racing decisions only the one that records first takes effect.
	if err := h.Queues.Approval.SetResultOnce(ctx, appr.ID, d); err != nil {
		if errors.Is(err, provider.ErrConflict) {
			return fmt.Errorf("approval %s: %w", d.RequestID, ErrAlreadyDecided)
		}
		return err
	}
	return followUp()
}

func (h *DirectorActionHandler) stage(ctx context.Context, item *queue.Item[DirectorAction], d *StagingDecision) error {
	approver := item.Data.DirectorID
	if approver == "" {
		approver = DefaultDirectorID
	}
	s, err := h.Staging.Approve(ctx, staging.ApproveRequest{
		WorldID:    item.Data.WorldID,
		RegionID:   d.RegionID,
		LocationID: d.LocationID,
		GameTime:   d.GameTime,
		NPCs:       d.NPCs,
		TTLHours:   d.TTLHours,
		Source:     d.Source,
		ApprovedBy: approver,
		Guidance:   d.Guidance,
	})
	if err != nil {
		return err
	}
	return enqueueStagingReady(ctx, h.Queues, s, correlationOf(item))
}

func (h *DirectorActionHandler) triggerEvent(ctx context.Context, item *queue.Item[DirectorAction], d *TriggerEventDecision) error {
	ev, err := h.Events.GetEvent(ctx, d.EventID)
	if err != nil {
		return fmt.Errorf("loading event %s: %w", d.EventID, err)
	}
	if ev == nil || ev.WorldID != item.Data.WorldID {
		return fmt.Errorf("event %s: %w", d.EventID, provider.ErrNotFound)
	}
	state, err := h.Worlds.GetWorldState(ctx, ev.WorldID)
	if err != nil {
		return fmt.Errorf("loading world state: %w", err)
	}
	if state == nil {
		return fmt.Errorf("world state %s: %w", ev.WorldID, provider.ErrNotFound)
	}

	effects := append([]narrative.EventEffect(nil), ev.Effects...)
	effects = append(effects, &narrative.CompleteEvent{EventID: ev.ID, Outcome: d.Outcome})
	next, changes := narrative.ApplyEffects(*state, effects)
	if err := h.Worlds.SaveWorldState(ctx, next); err != nil {
		return fmt.Errorf("saving world state: %w", err)
	}

	b, err := newBroadcast(ev.WorldID, notify.KindEventTriggered, EventTriggered{
		EventID:     ev.ID,
		Name:        ev.Name,
		Description: ev.Description,
		Outcome:     d.Outcome,
		Changes:     changes,
	})
	if err != nil {
		return err
	}
	_, err = h.Queues.Broadcast.Enqueue(ctx, b, correlationOf(item))
	return err
}

func (h *DirectorActionHandler) directNpc(ctx context.Context, item *queue.Item[DirectorAction], d *DirectNpcControl) error {
	if strings.TrimSpace(d.Dialogue) == "" {
		return fmt.Errorf("direct NPC control needs dialogue")
	}
	b, err := newBroadcast(item.Data.WorldID, notify.KindNarration, Narration{Speaker: d.NpcName, Text: d.Dialogue})
	if err != nil {
		return err
	}
	_, err = h.Queues.Broadcast.Enqueue(ctx, b, correlationOf(item))
	return err
}

func enqueueStagingReady(ctx context.Context, qs *Queues, s *types.Staging, opts ...queue.EnqueueOption) error {
	visible := s.VisibleNPCs()
	if visible == nil {
		visible = []types.StagedNpc{}
	}
	b, err := newBroadcast(s.WorldID, notify.KindStagingReady, StagingReady{
		RegionID:   s.RegionID,
		LocationID: s.LocationID,
		StagingID:  s.ID,
		NPCs:       visible,
	})
	if err != nil {
		return err
	}
	_, err = qs.Broadcast.Enqueue(ctx, b, opts...)
	return err
}
