package worker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dwsmith1983/narrator/pkg/types"
)

// DecisionType tags a director decision on the wire.
type DecisionType string

// DecisionType values.
const (
	DecisionApproval     DecisionType = "APPROVAL"
	DecisionStaging      DecisionType = "STAGING"
	DecisionTriggerEvent DecisionType = "TRIGGER_EVENT"
	DecisionDirectNpc    DecisionType = "DIRECT_NPC"
)

// Decision is one of the closed set of director decisions.
type Decision interface {
	Type() DecisionType
	isDecision()
}

// ApprovalDecision answers an Approval item.
type ApprovalDecision struct {
	RequestID    string             `json:"requestId"`
	Decision     types.DecisionKind `json:"decision"`
	ModifiedText string             `json:"modifiedText,omitempty"`
	Feedback     string             `json:"feedback,omitempty"`
}

func (*ApprovalDecision) Type() DecisionType { return DecisionApproval }
func (*ApprovalDecision) isDecision()        {}

// StagingDecision approves the NPCs present in a region.
type StagingDecision struct {
	RegionID   string              `json:"regionId"`
	LocationID string              `json:"locationId,omitempty"`
	GameTime   time.Time           `json:"gameTime"`
	NPCs       []types.ApprovedNpc `json:"npcs"`
	TTLHours   int                 `json:"ttlHours,omitempty"`
	Source     types.StagingSource `json:"source,omitempty"`
	Guidance   *string             `json:"guidance,omitempty"`
}

func (*StagingDecision) Type() DecisionType { return DecisionStaging }
func (*StagingDecision) isDecision()        {}

// TriggerEventDecision fires a narrative event and applies its effects.
type TriggerEventDecision struct {
	EventID string `json:"eventId"`
	Outcome string `json:"outcome,omitempty"`
}

func (*TriggerEventDecision) Type() DecisionType { return DecisionTriggerEvent }
func (*TriggerEventDecision) isDecision()        {}

// DirectNpcControl lets the director speak as an NPC directly.
type DirectNpcControl struct {
	NpcID    string `json:"npcId,omitempty"`
	NpcName  string `json:"npcName"`
	Dialogue string `json:"dialogue"`
}

func (*DirectNpcControl) Type() DecisionType { return DecisionDirectNpc }
func (*DirectNpcControl) isDecision()        {}

var decisionFactories = map[DecisionType]func() Decision{
	DecisionApproval:     func() Decision { return &ApprovalDecision{} },
	DecisionStaging:      func() Decision { return &StagingDecision{} },
	DecisionTriggerEvent: func() Decision { return &TriggerEventDecision{} },
	DecisionDirectNpc:    func() Decision { return &DirectNpcControl{} },
}

// DirectorAction is the DIRECTOR_ACTION payload.
type DirectorAction struct {
	WorldID    string   `json:"worldId"`
	DirectorID string   `json:"directorId,omitempty"`
	Decision   Decision `json:"decision"`
}

type directorActionWire struct {
	WorldID    string          `json:"worldId"`
	DirectorID string          `json:"directorId,omitempty"`
	Decision   json.RawMessage `json:"decision"`
}

// MarshalJSON writes the decision as {"type": TYPE, ...fields}.
func (a DirectorAction) MarshalJSON() ([]byte, error) {
	if a.Decision == nil {
		return nil, fmt.Errorf("director action has no decision")
	}
	body, err := json.Marshal(a.Decision)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	tag, _ := json.Marshal(a.Decision.Type())
	fields["type"] = tag
	decision, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return json.Marshal(directorActionWire{WorldID: a.WorldID, DirectorID: a.DirectorID, Decision: decision})
}

func (a *DirectorAction) UnmarshalJSON(data []byte) error {
	var w directorActionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var head struct {
		Type DecisionType `json:"type"`
	}
	if len(w.Decision) == 0 {
		return fmt.Errorf("director action: missing decision")
	}
	if err := json.Unmarshal(w.Decision, &head); err != nil {
		return fmt.Errorf("director action: %w", err)
	}
	factory, ok := decisionFactories[head.Type]
	if !ok {
		return fmt.Errorf("director action: unknown decision type %q", head.Type)
	}
	d := factory()
	if err := json.Unmarshal(w.Decision, d); err != nil {
		return fmt.Errorf("director action: decoding %s: %w", head.Type, err)
	}
	a.WorldID = w.WorldID
	a.DirectorID = w.DirectorID
	a.Decision = d
	return nil
}
