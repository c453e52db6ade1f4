package narrative

import (
	"encoding/json"
	"fmt"

	"github.com/dwsmith1983/narrator/pkg/types"
)

// EffectKind tags an EventEffect variant on the wire.
type EffectKind string

// EffectKind values enumerate every effect variant.
const (
	EffectSetFlag            EffectKind = "SET_FLAG"
	EffectClearFlag          EffectKind = "CLEAR_FLAG"
	EffectAddItem            EffectKind = "ADD_ITEM"
	EffectRemoveItem         EffectKind = "REMOVE_ITEM"
	EffectModifyRelationship EffectKind = "MODIFY_RELATIONSHIP"
	EffectModifyStat         EffectKind = "MODIFY_STAT"
	EffectCompleteEvent      EffectKind = "COMPLETE_EVENT"
)

// EventEffect is one change a fired event makes to world state. The set is
// closed: only types in this package implement it.
type EventEffect interface {
	Kind() EffectKind
	// apply mutates state and describes the change for the director.
	apply(state *types.WorldState) string
}

var effectFactories = map[EffectKind]func() EventEffect{
	EffectSetFlag:            func() EventEffect { return &SetFlag{} },
	EffectClearFlag:          func() EventEffect { return &ClearFlag{} },
	EffectAddItem:            func() EventEffect { return &AddItem{} },
	EffectRemoveItem:         func() EventEffect { return &RemoveItem{} },
	EffectModifyRelationship: func() EventEffect { return &ModifyRelationship{} },
	EffectModifyStat:         func() EventEffect { return &ModifyStat{} },
	EffectCompleteEvent:      func() EventEffect { return &CompleteEvent{} },
}

// SetFlag sets a flag to true.
type SetFlag struct {
	Flag string `json:"flag"`
}

func (*SetFlag) Kind() EffectKind { return EffectSetFlag }

func (e *SetFlag) apply(s *types.WorldState) string {
	if s.Flags == nil {
		s.Flags = make(map[string]bool)
	}
	s.Flags[e.Flag] = true
	return fmt.Sprintf("Set flag %q", e.Flag)
}

// ClearFlag sets a flag to false.
type ClearFlag struct {
	Flag string `json:"flag"`
}

func (*ClearFlag) Kind() EffectKind { return EffectClearFlag }

func (e *ClearFlag) apply(s *types.WorldState) string {
	delete(s.Flags, e.Flag)
	return fmt.Sprintf("Cleared flag %q", e.Flag)
}

// AddItem gives the party Quantity (default 1) of an item.
type AddItem struct {
	ItemName string `json:"itemName"`
	Quantity int    `json:"quantity,omitempty"`
}

func (*AddItem) Kind() EffectKind { return EffectAddItem }

func (e *AddItem) apply(s *types.WorldState) string {
	n := max(e.Quantity, 1)
	if s.Inventory == nil {
		s.Inventory = make(map[string]int)
	}
	s.Inventory[e.ItemName] += n
	return fmt.Sprintf("Gave %d x %s", n, e.ItemName)
}

// RemoveItem takes up to Quantity (default 1) of an item from the party.
type RemoveItem struct {
	ItemName string `json:"itemName"`
	Quantity int    `json:"quantity,omitempty"`
}

func (*RemoveItem) Kind() EffectKind { return EffectRemoveItem }

func (e *RemoveItem) apply(s *types.WorldState) string {
	have := s.Inventory[e.ItemName]
	if have == 0 {
		return fmt.Sprintf("Party has no %s to take", e.ItemName)
	}
	n := min(max(e.Quantity, 1), have)
	if have-n == 0 {
		delete(s.Inventory, e.ItemName)
	} else {
		s.Inventory[e.ItemName] = have - n
	}
	return fmt.Sprintf("Took %d x %s", n, e.ItemName)
}

// ModifyRelationship shifts how one character feels about another. The
// result is clamped to [-1, 1].
type ModifyRelationship struct {
	FromCharacterID string  `json:"fromCharacterId"`
	ToCharacterID   string  `json:"toCharacterId"`
	Change          float64 `json:"change"`
	Reason          string  `json:"reason,omitempty"`
}

func (*ModifyRelationship) Kind() EffectKind { return EffectModifyRelationship }

func (e *ModifyRelationship) apply(s *types.WorldState) string {
	if s.Relationships == nil {
		s.Relationships = make(map[string]float64)
	}
	key := types.RelationshipKey(e.FromCharacterID, e.ToCharacterID)
	v := min(max(s.Relationships[key]+e.Change, -1), 1)
	s.Relationships[key] = v
	desc := fmt.Sprintf("Relationship %s -> %s changed by %+.2f to %.2f", e.FromCharacterID, e.ToCharacterID, e.Change, v)
	if e.Reason != "" {
		desc += " (" + e.Reason + ")"
	}
	return desc
}

// ModifyStat adds a modifier to a character stat.
type ModifyStat struct {
	CharacterID string `json:"characterId"`
	Stat        string `json:"stat"`
	Modifier    int    `json:"modifier"`
}

func (*ModifyStat) Kind() EffectKind { return EffectModifyStat }

func (e *ModifyStat) apply(s *types.WorldState) string {
	if s.Stats == nil {
		s.Stats = make(map[string]map[string]int)
	}
	if s.Stats[e.CharacterID] == nil {
		s.Stats[e.CharacterID] = make(map[string]int)
	}
	s.Stats[e.CharacterID][e.Stat] += e.Modifier
	return fmt.Sprintf("%s %s %+d (now %d)", e.CharacterID, e.Stat, e.Modifier, s.Stats[e.CharacterID][e.Stat])
}

// CompleteEvent records an event as finished with an outcome.
type CompleteEvent struct {
	EventID string `json:"eventId"`
	Outcome string `json:"outcome,omitempty"`
}

func (*CompleteEvent) Kind() EffectKind { return EffectCompleteEvent }

func (e *CompleteEvent) apply(s *types.WorldState) string {
	if s.CompletedEvents == nil {
		s.CompletedEvents = make(map[string]string)
	}
	if s.EventTurns == nil {
		s.EventTurns = make(map[string]int)
	}
	s.CompletedEvents[e.EventID] = e.Outcome
	s.EventTurns[e.EventID] = s.TurnCount
	if e.Outcome == "" {
		return fmt.Sprintf("Completed event %s", e.EventID)
	}
	return fmt.Sprintf("Completed event %s with outcome %q", e.EventID, e.Outcome)
}

// ApplyEffects returns a copy of state with every effect applied in order,
// plus a description of each change. The input state is not modified.
func ApplyEffects(state types.WorldState, effects []EventEffect) (types.WorldState, []string) {
	next := state.Clone()
	descriptions := make([]string, 0, len(effects))
	for _, e := range effects {
		if e == nil {
			continue
		}
		descriptions = append(descriptions, e.apply(&next))
	}
	if len(descriptions) > 0 {
		next.Version++
	}
	return next, descriptions
}

// Effects is a JSON-codable effect list.
type Effects []EventEffect

// MarshalJSON encodes each effect as {"type": KIND, ...fields}.
func (es Effects) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(es))
	for i, e := range es {
		raw, err := marshalTagged(string(e.Kind()), e)
		if err != nil {
			return nil, fmt.Errorf("encoding effect %d: %w", i, err)
		}
		out = append(out, raw)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes tagged effects, rejecting unknown kinds.
func (es *Effects) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make(Effects, 0, len(raws))
	for i, raw := range raws {
		kind, err := tagOf(raw)
		if err != nil {
			return fmt.Errorf("effect %d: %w", i, err)
		}
		factory, ok := effectFactories[EffectKind(kind)]
		if !ok {
			return fmt.Errorf("effect %d: unknown effect type %q", i, kind)
		}
		e := factory()
		if err := json.Unmarshal(raw, e); err != nil {
			return fmt.Errorf("effect %d: decoding %s: %w", i, kind, err)
		}
		out = append(out, e)
	}
	*es = out
	return nil
}
