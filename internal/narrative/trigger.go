// Package narrative decides whether narrative events fire and applies their
// effects to world state.
package narrative

import (
	"encoding/json"
	"fmt"
)

// Trigger is one condition of a narrative event.
type Trigger struct {
	ID          string
	Description string
	IsRequired  bool
	Condition   TriggerCondition
}

type triggerJSON struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	IsRequired  bool            `json:"isRequired,omitempty"`
	Condition   json.RawMessage `json:"condition"`
}

// MarshalJSON encodes the condition as {"type": KIND, ...fields}.
func (t Trigger) MarshalJSON() ([]byte, error) {
	if t.Condition == nil {
		return nil, fmt.Errorf("trigger %q has no condition", t.ID)
	}
	cond, err := marshalTagged(string(t.Condition.Kind()), t.Condition)
	if err != nil {
		return nil, fmt.Errorf("encoding trigger %q: %w", t.ID, err)
	}
	return json.Marshal(triggerJSON{
		ID:          t.ID,
		Description: t.Description,
		IsRequired:  t.IsRequired,
		Condition:   cond,
	})
}

// UnmarshalJSON decodes a trigger, rejecting unknown condition kinds.
func (t *Trigger) UnmarshalJSON(data []byte) error {
	var raw triggerJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	kind, err := tagOf(raw.Condition)
	if err != nil {
		return fmt.Errorf("trigger %q: %w", raw.ID, err)
	}
	factory, ok := conditionFactories[TriggerKind(kind)]
	if !ok {
		return fmt.Errorf("trigger %q: unknown condition type %q", raw.ID, kind)
	}
	cond := factory()
	if err := json.Unmarshal(raw.Condition, cond); err != nil {
		return fmt.Errorf("trigger %q: decoding %s: %w", raw.ID, kind, err)
	}
	*t = Trigger{ID: raw.ID, Description: raw.Description, IsRequired: raw.IsRequired, Condition: cond}
	return nil
}

// label is what evaluation reports for the trigger.
func (t Trigger) label() string {
	if t.Description != "" {
		return t.Description
	}
	return t.ID
}

// marshalTagged encodes v as a JSON object with a leading "type" field.
func marshalTagged(tag string, v any) (json.RawMessage, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	fields["type"], _ = json.Marshal(tag)
	return json.Marshal(fields)
}

func tagOf(data json.RawMessage) (string, error) {
	var head struct {
		Type string `json:"type"`
	}
	if len(data) == 0 {
		return "", fmt.Errorf("missing object")
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", err
	}
	if head.Type == "" {
		return "", fmt.Errorf("missing type")
	}
	return head.Type, nil
}
