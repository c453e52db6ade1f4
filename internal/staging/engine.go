// Package staging decides which NPCs are present in a region. Rule-based
// proposals are optionally refined by the AI, and a director approval makes
// a staging current for a bounded span of in-game time.
package staging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/dwsmith1983/narrator/internal/clock"
	"github.com/dwsmith1983/narrator/internal/llm"
	"github.com/dwsmith1983/narrator/internal/provider"
	"github.com/dwsmith1983/narrator/pkg/types"
)

// ErrValidation is returned for malformed proposal or approval requests.
var ErrValidation = errors.New("invalid staging request")

// SystemApprover is recorded as the approver of automatic approvals.
const SystemApprover = "system"

// DefaultTTLHours is the validity window used when neither the request nor
// the config sets one.
const DefaultTTLHours = 3

// Config holds engine settings.
type Config struct {
	DefaultTTLHours int
	UseLLM          bool
}

// ProposalRequest asks for NPC presence in a region at an in-game time.
type ProposalRequest struct {
	WorldID    string    `json:"worldId"`
	RegionID   string    `json:"regionId"`
	LocationID string    `json:"locationId"`
	GameTime   time.Time `json:"gameTime"`
	Guidance   string    `json:"guidance,omitempty"`
}

func (r ProposalRequest) validate() error {
	if r.RegionID == "" {
		return fmt.Errorf("%w: region id is required", ErrValidation)
	}
	if r.GameTime.IsZero() {
		return fmt.Errorf("%w: game time is required", ErrValidation)
	}
	return nil
}

// Proposal holds the rule-based suggestions and the AI-refined ones. When
// the AI is disabled or fails, LLMBased equals RuleBased.
type Proposal struct {
	WorldID    string              `json:"worldId"`
	RegionID   string              `json:"regionId"`
	LocationID string              `json:"locationId"`
	GameTime   time.Time           `json:"gameTime"`
	Guidance   string              `json:"guidance,omitempty"`
	RuleBased  []types.NpcProposal `json:"ruleBased"`
	LLMBased   []types.NpcProposal `json:"llmBased"`
	UsedLLM    bool                `json:"usedLlm"`
}

// ApproveRequest is a director's final staging decision.
type ApproveRequest struct {
	WorldID    string              `json:"worldId"`
	RegionID   string              `json:"regionId"`
	LocationID string              `json:"locationId"`
	GameTime   time.Time           `json:"gameTime"`
	NPCs       []types.ApprovedNpc `json:"npcs"`
	TTLHours   int                 `json:"ttlHours,omitempty"`
	Source     types.StagingSource `json:"source"`
	ApprovedBy string              `json:"approvedBy"`
	Guidance   *string             `json:"guidance,omitempty"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithLLM enables AI refinement through provider. Wrap it in a
// llm.ResilientProvider to share the backend's breaker.
func WithLLM(p llm.Provider) Option {
	return func(e *Engine) { e.llm = p }
}

// WithClock sets the wall clock used for approval timestamps.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine produces and approves stagings.
type Engine struct {
	store      provider.StagingStore
	regions    provider.RegionRepository
	characters provider.CharacterRepository
	llm        llm.Provider
	config     Config
	clock      clock.Clock
	logger     *slog.Logger
	inflight   singleflight.Group
}

// NewEngine creates a staging engine.
func NewEngine(store provider.StagingStore, regions provider.RegionRepository, characters provider.CharacterRepository, cfg Config, opts ...Option) *Engine {
	if cfg.DefaultTTLHours <= 0 {
		cfg.DefaultTTLHours = DefaultTTLHours
	}
	e := &Engine{
		store:      store,
		regions:    regions,
		characters: characters,
		config:     cfg,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.clock = clock.OrSystem(e.clock)
	return e
}

// GetCurrentStaging returns the region's staging if it is still valid at
// gameTime, or nil.
func (e *Engine) GetCurrentStaging(ctx context.Context, regionID string, gameTime time.Time) (*types.Staging, error) {
	s, err := e.store.GetCurrentStaging(ctx, regionID)
	if err != nil {
		return nil, fmt.Errorf("loading current staging for %s: %w", regionID, err)
	}
	if s == nil || !s.IsValid(gameTime) {
		return nil, nil
	}
	return s, nil
}

// GenerateProposal computes rule-based presence and, when enabled, asks the
// AI to refine it. AI failures fall back to the rule-based list. Concurrent
// calls for the same region, time and guidance share one computation.
func (e *Engine) GenerateProposal(ctx context.Context, req ProposalRequest) (*Proposal, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%s|%d|%s", req.RegionID, req.GameTime.Unix(), req.Guidance)
	// The shared computation outlives any one caller; each caller stops
	// waiting on its own context.
	ch := e.inflight.DoChan(key, func() (any, error) {
		return e.propose(context.WithoutCancel(ctx), req)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	p := *res.Val.(*Proposal)
	p.RuleBased = slices.Clone(p.RuleBased)
	p.LLMBased = slices.Clone(p.LLMBased)
	return &p, nil
}

// RegenerateSuggestions reruns the proposal with new director guidance and
// returns the refined list.
func (e *Engine) RegenerateSuggestions(ctx context.Context, req ProposalRequest) ([]types.NpcProposal, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	p, err := e.propose(ctx, req)
	if err != nil {
		return nil, err
	}
	return p.LLMBased, nil
}

func (e *Engine) propose(ctx context.Context, req ProposalRequest) (*Proposal, error) {
	region, err := e.regions.GetRegion(ctx, req.RegionID)
	if err != nil {
		return nil, fmt.Errorf("loading region %s: %w", req.RegionID, err)
	}
	if region == nil {
		return nil, fmt.Errorf("%w: unknown region %s", ErrValidation, req.RegionID)
	}
	if req.WorldID == "" {
		req.WorldID = region.WorldID
	}
	if req.LocationID == "" {
		req.LocationID = region.LocationID
	}

	rules, err := e.ruleBased(ctx, req)
	if err != nil {
		return nil, err
	}
	recordProposal(ctx, req.RegionID)

	p := &Proposal{
		WorldID:    req.WorldID,
		RegionID:   req.RegionID,
		LocationID: req.LocationID,
		GameTime:   req.GameTime,
		Guidance:   req.Guidance,
		RuleBased:  rules,
		LLMBased:   slices.Clone(rules),
	}
	if !e.config.UseLLM || e.llm == nil || len(rules) == 0 {
		return p, nil
	}

	refined, err := e.refineWithLLM(ctx, region, req, rules)
	if err != nil {
		e.logger.Warn("llm staging failed, using rule-based proposal", "region", req.RegionID, "error", err)
		recordFallback(ctx, req.RegionID)
		return p, nil
	}
	p.LLMBased = refined
	p.UsedLLM = true
	return p, nil
}

// ruleBased derives presence from the region's NPC relations. NPCs from the
// previous staging that have no relation are kept as absent.
func (e *Engine) ruleBased(ctx context.Context, req ProposalRequest) ([]types.NpcProposal, error) {
	relations, err := e.regions.ListRegionRelations(ctx, req.RegionID)
	if err != nil {
		return nil, fmt.Errorf("listing relations for region %s: %w", req.RegionID, err)
	}

	var out []types.NpcProposal
	seen := make(map[string]bool)
	excluded := make(map[string]bool)
	for _, rel := range relations {
		if seen[rel.CharacterID] || excluded[rel.CharacterID] {
			continue
		}
		present, reasoning, ok := ruleVerdict(rel, req.GameTime)
		if !ok {
			excluded[rel.CharacterID] = true
			continue
		}
		char, err := e.characters.GetCharacter(ctx, rel.CharacterID)
		if err != nil {
			return nil, fmt.Errorf("loading character %s: %w", rel.CharacterID, err)
		}
		if char == nil {
			e.logger.Warn("region relation references unknown character", "region", req.RegionID, "character", rel.CharacterID)
			continue
		}
		seen[rel.CharacterID] = true
		out = append(out, types.NpcProposal{
			CharacterID:   char.ID,
			Name:          char.Name,
			SpriteAsset:   char.SpriteAsset,
			PortraitAsset: char.PortraitAsset,
			IsPresent:     present,
			Reasoning:     reasoning,
		})
	}

	prev, err := e.store.GetCurrentStaging(ctx, req.RegionID)
	if err != nil {
		return nil, fmt.Errorf("loading current staging for %s: %w", req.RegionID, err)
	}
	if prev != nil {
		for _, n := range prev.NPCs {
			if seen[n.CharacterID] || excluded[n.CharacterID] {
				continue
			}
			seen[n.CharacterID] = true
			out = append(out, types.NpcProposal{
				CharacterID:   n.CharacterID,
				Name:          n.Name,
				SpriteAsset:   n.SpriteAsset,
				PortraitAsset: n.PortraitAsset,
				Reasoning:     previouslyStaged,
			})
		}
	}
	return out, nil
}

// Approve stores a new staging for the region and makes it current. Every
// earlier staging of the region stops being active in the same write.
func (e *Engine) Approve(ctx context.Context, req ApproveRequest) (*types.Staging, error) {
	if req.RegionID == "" || req.WorldID == "" {
		return nil, fmt.Errorf("%w: region and world ids are required", ErrValidation)
	}
	if req.GameTime.IsZero() {
		return nil, fmt.Errorf("%w: game time is required", ErrValidation)
	}
	if req.ApprovedBy == "" {
		return nil, fmt.Errorf("%w: approver is required", ErrValidation)
	}
	if req.Source == "" {
		req.Source = types.SourceDmCustomized
	}
	if req.TTLHours < 0 {
		return nil, fmt.Errorf("%w: ttl must not be negative", ErrValidation)
	}
	if req.TTLHours == 0 {
		req.TTLHours = e.config.DefaultTTLHours
	}

	npcs := make([]types.StagedNpc, 0, len(req.NPCs))
	for _, a := range req.NPCs {
		char, err := e.characters.GetCharacter(ctx, a.CharacterID)
		if err != nil {
			return nil, fmt.Errorf("loading character %s: %w", a.CharacterID, err)
		}
		if char == nil {
			return nil, fmt.Errorf("%w: unknown character %s", ErrValidation, a.CharacterID)
		}
		npcs = append(npcs, types.StagedNpc{
			CharacterID:         char.ID,
			Name:                char.Name,
			SpriteAsset:         char.SpriteAsset,
			PortraitAsset:       char.PortraitAsset,
			IsPresent:           a.IsPresent,
			IsHiddenFromPlayers: a.IsHiddenFromPlayers,
			Reasoning:           a.Reasoning,
		})
	}

	s := types.Staging{
		ID:         uuid.NewString(),
		RegionID:   req.RegionID,
		LocationID: req.LocationID,
		WorldID:    req.WorldID,
		GameTime:   req.GameTime,
		ApprovedAt: e.clock.Now(),
		TTLHours:   req.TTLHours,
		ApprovedBy: req.ApprovedBy,
		Source:     req.Source,
		Guidance:   req.Guidance,
		IsActive:   true,
		NPCs:       npcs,
	}
	if err := e.store.SaveApprovedStaging(ctx, s); err != nil {
		return nil, fmt.Errorf("saving staging for %s: %w", req.RegionID, err)
	}
	recordApproval(ctx, req.Source)
	e.logger.Info("staging approved", "region", s.RegionID, "staging", s.ID, "source", s.Source, "approvedBy", s.ApprovedBy, "npcs", len(s.NPCs))
	return &s, nil
}

// PreStage approves a staging ahead of the party's arrival.
func (e *Engine) PreStage(ctx context.Context, req ApproveRequest) (*types.Staging, error) {
	req.Source = types.SourcePreStaged
	return e.Approve(ctx, req)
}

// AutoApprove approves the rule-based proposal without a director.
func (e *Engine) AutoApprove(ctx context.Context, req ProposalRequest) (*types.Staging, error) {
	p, err := e.GenerateProposal(ctx, req)
	if err != nil {
		return nil, err
	}
	var guidance *string
	if req.Guidance != "" {
		guidance = &req.Guidance
	}
	return e.Approve(ctx, ApproveRequest{
		WorldID:    p.WorldID,
		RegionID:   p.RegionID,
		LocationID: p.LocationID,
		GameTime:   p.GameTime,
		NPCs:       ApprovedFromProposals(p.RuleBased),
		Source:     types.SourceAutoApproved,
		ApprovedBy: SystemApprover,
		Guidance:   guidance,
	})
}

// GetHistory returns the region's stagings, newest first.
func (e *Engine) GetHistory(ctx context.Context, regionID string, limit int) ([]types.Staging, error) {
	h, err := e.store.ListStagingHistory(ctx, regionID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing staging history for %s: %w", regionID, err)
	}
	return h, nil
}

// ApprovedFromProposals converts proposals into approval verdicts unchanged.
func ApprovedFromProposals(ps []types.NpcProposal) []types.ApprovedNpc {
	out := make([]types.ApprovedNpc, len(ps))
	for i, p := range ps {
		out[i] = types.ApprovedNpc{
			CharacterID:         p.CharacterID,
			IsPresent:           p.IsPresent,
			IsHiddenFromPlayers: p.IsHiddenFromPlayers,
			Reasoning:           p.Reasoning,
		}
	}
	return out
}
