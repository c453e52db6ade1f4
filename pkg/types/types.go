// Package types defines the public domain types for the narrator game-master core.
package types

import (
	"encoding/json"
	"time"
)

// QueueItem is one unit of durable work moving through a pipeline stage.
// Payload and Result are opaque to the queue.
type QueueItem struct {
	ID            string          `json:"id"`
	Type          QueueType       `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	Status        QueueStatus     `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	Error         *string         `json:"error,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	CorrelationID *string         `json:"correlationId,omitempty"`
}

// IsTerminal reports whether the item reached Completed or Failed.
func (q QueueItem) IsTerminal() bool {
	return q.Status == StatusCompleted || q.Status == StatusFailed
}

// Staging is an approved, time-bounded snapshot of which NPCs are present in a region.
type Staging struct {
	ID         string        `json:"id"`
	RegionID   string        `json:"regionId"`
	LocationID string        `json:"locationId"`
	WorldID    string        `json:"worldId"`
	GameTime   time.Time     `json:"gameTime"`
	ApprovedAt time.Time     `json:"approvedAt"`
	TTLHours   int           `json:"ttlHours"`
	ApprovedBy string        `json:"approvedBy"`
	Source     StagingSource `json:"source"`
	Guidance   *string       `json:"guidance,omitempty"`
	IsActive   bool          `json:"isActive"`
	NPCs       []StagedNpc   `json:"npcs"`
}

// ExpiresAt returns the in-game time at which the staging stops being valid.
func (s Staging) ExpiresAt() time.Time {
	return s.GameTime.Add(time.Duration(s.TTLHours) * time.Hour)
}

// IsValid reports whether the staging is active and still inside its TTL window.
func (s Staging) IsValid(gameNow time.Time) bool {
	return s.IsActive && gameNow.Before(s.ExpiresAt())
}

// VisibleNPCs returns the present NPCs players are allowed to see.
func (s Staging) VisibleNPCs() []StagedNpc {
	var out []StagedNpc
	for _, n := range s.NPCs {
		if n.IsPresent && !n.IsHiddenFromPlayers {
			out = append(out, n)
		}
	}
	return out
}

// StagedNpc is one NPC row attached to a staging.
type StagedNpc struct {
	CharacterID         string  `json:"characterId"`
	Name                string  `json:"name"`
	SpriteAsset         *string `json:"spriteAsset,omitempty"`
	PortraitAsset       *string `json:"portraitAsset,omitempty"`
	IsPresent           bool    `json:"isPresent"`
	IsHiddenFromPlayers bool    `json:"isHiddenFromPlayers"`
	Reasoning           string  `json:"reasoning"`
}

// NpcProposal is a suggested presence verdict for one NPC.
type NpcProposal struct {
	CharacterID         string  `json:"characterId"`
	Name                string  `json:"name"`
	SpriteAsset         *string `json:"spriteAsset,omitempty"`
	PortraitAsset       *string `json:"portraitAsset,omitempty"`
	IsPresent           bool    `json:"isPresent"`
	IsHiddenFromPlayers bool    `json:"isHiddenFromPlayers"`
	Reasoning           string  `json:"reasoning"`
}

// ApprovedNpc is the director's final verdict for one NPC.
type ApprovedNpc struct {
	CharacterID         string `json:"characterId"`
	IsPresent           bool   `json:"isPresent"`
	IsHiddenFromPlayers bool   `json:"isHiddenFromPlayers"`
	Reasoning           string `json:"reasoning,omitempty"`
}

// World is the top-level campaign container.
type World struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Tone        string `yaml:"tone,omitempty" json:"tone,omitempty"`
}

// Region is a stageable area inside a location.
type Region struct {
	ID          string `yaml:"id" json:"id"`
	WorldID     string `yaml:"worldId" json:"worldId"`
	LocationID  string `yaml:"locationId" json:"locationId"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Character is an NPC or player character.
type Character struct {
	ID            string  `yaml:"id" json:"id"`
	WorldID       string  `yaml:"worldId" json:"worldId"`
	Name          string  `yaml:"name" json:"name"`
	Description   string  `yaml:"description,omitempty" json:"description,omitempty"`
	SpriteAsset   *string `yaml:"spriteAsset,omitempty" json:"spriteAsset,omitempty"`
	PortraitAsset *string `yaml:"portraitAsset,omitempty" json:"portraitAsset,omitempty"`
}

// NpcRegionRelation ties an NPC to a region for rule-based staging.
type NpcRegionRelation struct {
	CharacterID string             `yaml:"characterId" json:"characterId"`
	RegionID    string             `yaml:"regionId" json:"regionId"`
	Type        RegionRelationType `yaml:"type" json:"type"`
	Shift       WorkShift          `yaml:"shift,omitempty" json:"shift,omitempty"`
	Frequency   string             `yaml:"frequency,omitempty" json:"frequency,omitempty"`
	TimeOfDay   TimeOfDay          `yaml:"timeOfDay,omitempty" json:"timeOfDay,omitempty"`
}

// ChatMessage is one turn of conversation sent to the AI.
type ChatMessage struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// LlmRequest is a single generation request.
type LlmRequest struct {
	SystemPrompt string        `json:"systemPrompt,omitempty"`
	Messages     []ChatMessage `json:"messages"`
	Temperature  *float64      `json:"temperature,omitempty"`
	MaxTokens    *int          `json:"maxTokens,omitempty"`
}

// ToolDefinition describes a function the AI may propose calling.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is a function call proposed by the AI.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// LlmResponse is the AI's reply.
type LlmResponse struct {
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"toolCalls,omitempty"`
	FinishReason string     `json:"finishReason,omitempty"`
}
