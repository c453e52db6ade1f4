package worker

import (
	"encoding/json"
	"time"

	"github.com/dwsmith1983/narrator/internal/narrative"
	"github.com/dwsmith1983/narrator/internal/notify"
	"github.com/dwsmith1983/narrator/pkg/types"
)

// PlayerAction is the PLAYER_ACTION payload: something a player did or said.
type PlayerAction struct {
	WorldID        string    `json:"worldId"`
	RegionID       string    `json:"regionId"`
	PlayerID       string    `json:"playerId"`
	CharacterName  string    `json:"characterName,omitempty"`
	ActionType     string    `json:"actionType"`
	Target         string    `json:"target,omitempty"`
	Content        string    `json:"content"`
	DialogueTopics []string  `json:"dialogueTopics,omitempty"`
	GameTime       time.Time `json:"gameTime"`
}

// Actor returns the name the narration uses for the acting player.
func (a PlayerAction) Actor() string {
	if a.CharacterName != "" {
		return a.CharacterName
	}
	return a.PlayerID
}

// LlmRequest is the LLM_REQUEST payload: a built prompt waiting for the AI.
type LlmRequest struct {
	WorldID     string                 `json:"worldId"`
	RegionID    string                 `json:"regionId"`
	Action      PlayerAction           `json:"action"`
	Request     types.LlmRequest       `json:"request"`
	Tools       []types.ToolDefinition `json:"tools,omitempty"`
	Suggestions []narrative.Suggestion `json:"suggestions,omitempty"`
	Attempt     int                    `json:"attempt"`
}

// Approval is the DM_APPROVAL payload: an AI response the director must
// accept, modify or reject before players see it.
type Approval struct {
	WorldID      string           `json:"worldId"`
	Source       LlmRequest       `json:"source"`
	ProposedText string           `json:"proposedText"`
	ToolCalls    []types.ToolCall `json:"toolCalls,omitempty"`
}

// ApprovalRequired is the body sent to the director for an Approval.
type ApprovalRequired struct {
	RequestID    string                 `json:"requestId"`
	PlayerID     string                 `json:"playerId"`
	Action       string                 `json:"action"`
	ProposedText string                 `json:"proposedText"`
	ToolCalls    []types.ToolCall       `json:"toolCalls,omitempty"`
	Suggestions  []narrative.Suggestion `json:"suggestions,omitempty"`
	Attempt      int                    `json:"attempt"`
}

// StagingRequest is the STAGING_REQUEST payload, raised when the party
// enters a region.
type StagingRequest struct {
	WorldID    string    `json:"worldId"`
	RegionID   string    `json:"regionId"`
	LocationID string    `json:"locationId,omitempty"`
	PlayerID   string    `json:"playerId,omitempty"`
	GameTime   time.Time `json:"gameTime"`
	Guidance   string    `json:"guidance,omitempty"`
}

// Broadcast is the BROADCAST payload: a message for every player in a world.
type Broadcast struct {
	WorldID string             `json:"worldId"`
	Kind    notify.MessageKind `json:"kind"`
	Body    json.RawMessage    `json:"body"`
}

// Narration is the body of a narration broadcast.
type Narration struct {
	PlayerID string `json:"playerId,omitempty"`
	Speaker  string `json:"speaker,omitempty"`
	Text     string `json:"text"`
}

// StagingReady is the body of a staging broadcast. Only NPCs players may
// see are listed.
type StagingReady struct {
	RegionID   string            `json:"regionId"`
	LocationID string            `json:"locationId"`
	StagingID  string            `json:"stagingId"`
	NPCs       []types.StagedNpc `json:"npcs"`
}

// EventTriggered is the body of a narrative event broadcast.
type EventTriggered struct {
	EventID     string   `json:"eventId"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Outcome     string   `json:"outcome,omitempty"`
	Changes     []string `json:"changes,omitempty"`
}

// StagingProposal is the body sent to the director when a region needs staging.
type StagingProposal struct {
	RequestID  string              `json:"requestId"`
	RegionID   string              `json:"regionId"`
	LocationID string              `json:"locationId"`
	GameTime   time.Time           `json:"gameTime"`
	RuleBased  []types.NpcProposal `json:"ruleBased"`
	LLMBased   []types.NpcProposal `json:"llmBased"`
	UsedLLM    bool                `json:"usedLlm"`
}

func newBroadcast(worldID string, kind notify.MessageKind, body any) (Broadcast, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return Broadcast{}, err
	}
	return Broadcast{WorldID: worldID, Kind: kind, Body: data}, nil
}
