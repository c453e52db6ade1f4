package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/dwsmith1983/narrator/internal/condition"
	"github.com/dwsmith1983/narrator/internal/narrative"
	"github.com/dwsmith1983/narrator/internal/provider"
	"github.com/dwsmith1983/narrator/internal/queue"
	"github.com/dwsmith1983/narrator/internal/staging"
	"github.com/dwsmith1983/narrator/pkg/types"
)

const turnSaveAttempts = 3

// PlayerActionHandler turns a player action into an LLM_REQUEST. It
// evaluates the world's active narrative events against the action and
// advances the world's turn counter.
type PlayerActionHandler struct {
	Worlds     provider.WorldRepository
	Regions    provider.RegionRepository
	Characters provider.CharacterRepository
	Events     provider.NarrativeEventRepository
	Staging    *staging.Engine
	Conditions *condition.Evaluator // nil skips AI-judged conditions
	Queues     *Queues
	Logger     *slog.Logger
}

func (h *PlayerActionHandler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func (h *PlayerActionHandler) Handle(ctx context.Context, item *queue.Item[PlayerAction]) error {
	action := item.Data
	if action.WorldID == "" || action.RegionID == "" {
		return fmt.Errorf("player action needs world and region ids")
	}
	world, err := h.Worlds.GetWorld(ctx, action.WorldID)
	if err != nil {
		return fmt.Errorf("loading world: %w", err)
	}
	if world == nil {
		return fmt.Errorf("world %s: %w", action.WorldID, provider.ErrNotFound)
	}
	region, err := h.Regions.GetRegion(ctx, action.RegionID)
	if err != nil {
		return fmt.Errorf("loading region: %w", err)
	}
	if region == nil {
		return fmt.Errorf("region %s: %w", action.RegionID, provider.ErrNotFound)
	}
	current, err := h.Staging.GetCurrentStaging(ctx, region.ID, action.GameTime)
	if err != nil {
		return err
	}
	state, err := h.Worlds.GetWorldState(ctx, world.ID)
	if err != nil {
		return fmt.Errorf("loading world state: %w", err)
	}
	if state == nil {
		state = &types.WorldState{WorldID: world.ID}
	}

	suggestions, err := h.suggest(ctx, *state, region, current, action)
	if err != nil {
		return err
	}

	sc := scene{world: world, region: region, staging: current}
	req, tools := buildRequest(sc, action, suggestions)
	if _, err := h.Queues.LlmRequest.Enqueue(ctx, LlmRequest{
		WorldID:     world.ID,
		RegionID:    region.ID,
		Action:      action,
		Request:     req,
		Tools:       tools,
		Suggestions: suggestions,
		Attempt:     1,
	}, correlationOf(item)); err != nil {
		return err
	}

	if err := h.advanceTurn(ctx, world.ID); err != nil {
		h.logger().Warn("turn counter not advanced", "world", world.ID, "error", err)
	}
	return nil
}

func (h *PlayerActionHandler) suggest(ctx context.Context, state types.WorldState, region *types.Region, current *types.Staging, action PlayerAction) ([]narrative.Suggestion, error) {
	events, err := h.Events.ListActiveEvents(ctx, state.WorldID)
	if err != nil {
		return nil, fmt.Errorf("listing narrative events: %w", err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	tc := narrative.NewContext(state)
	tc.LocationID = region.LocationID
	tc.RecentAction = action.Content
	tc.DialogueTopics = action.DialogueTopics
	if !action.GameTime.IsZero() {
		tc.TimeContext = string(types.TimeOfDayAt(action.GameTime.Hour()))
	}

	if h.Conditions != nil {
		evalCtx := h.evaluationContext(ctx, state, region, current, tc.TimeContext)
		for _, ev := range events {
			if err := h.Conditions.Resolve(ctx, ev.Triggers, tc, evalCtx); err != nil {
				// Unjudged conditions stay unmet; the action still proceeds.
				h.logger().Warn("custom conditions not evaluated", "event", ev.ID, "error", err)
			}
		}
	}
	return narrative.Suggest(events, tc), nil
}

func (h *PlayerActionHandler) evaluationContext(ctx context.Context, state types.WorldState, region *types.Region, current *types.Staging, timeOfDay string) condition.EvaluationContext {
	ec := condition.EvaluationContext{TimeOfDay: timeOfDay, Location: region.Name}
	if current != nil {
		for _, n := range current.NPCs {
			if n.IsPresent {
				ec.NPCsPresent = append(ec.NPCsPresent, n.Name)
			}
		}
	}
	for name, qty := range state.Inventory {
		if qty > 0 {
			ec.Inventory = append(ec.Inventory, name+" x"+strconv.Itoa(qty))
		}
	}
	for flag, set := range state.Flags {
		if set {
			ec.Flags = append(ec.Flags, flag)
		}
	}
	for id, outcome := range state.CompletedEvents {
		name := id
		if ev, err := h.Events.GetEvent(ctx, id); err == nil && ev != nil {
			name = ev.Name
		}
		if outcome != "" {
			name += " (" + outcome + ")"
		}
		ec.RecentEvents = append(ec.RecentEvents, name)
	}
	if h.Characters != nil && current != nil {
		for _, n := range current.NPCs {
			if c, err := h.Characters.GetCharacter(ctx, n.CharacterID); err == nil && c != nil && c.Description != "" {
				ec.KnownCharacters = append(ec.KnownCharacters, c.Name+": "+c.Description)
			}
		}
	}
	slices.Sort(ec.Inventory)
	slices.Sort(ec.Flags)
	slices.Sort(ec.RecentEvents)
	return ec
}

// advanceTurn bumps the world's turn counter, retrying on version conflicts.
func (h *PlayerActionHandler) advanceTurn(ctx context.Context, worldID string) error {
	var err error
	for range turnSaveAttempts {
		var state *types.WorldState
		state, err = h.Worlds.GetWorldState(ctx, worldID)
		if err != nil || state == nil {
			return err
		}
		next := state.Clone()
		next.TurnCount++
		next.Version++
		if err = h.Worlds.SaveWorldState(ctx, next); !errors.Is(err, provider.ErrConflict) {
			return err
		}
	}
	return err
}
