package narrative

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/narrator/pkg/types"
)

func TestApplyEffects(t *testing.T) {
	state := types.WorldState{
		WorldID:       "w1",
		Flags:         map[string]bool{"old": true},
		Inventory:     map[string]int{"Torch": 1},
		Relationships: map[string]float64{types.RelationshipKey("npc-1", "pc-1"): 0.9},
		TurnCount:     7,
		Version:       3,
	}
	effects := []EventEffect{
		&SetFlag{Flag: "gate_open"},
		&ClearFlag{Flag: "old"},
		&AddItem{ItemName: "Rope", Quantity: 2},
		&RemoveItem{ItemName: "Torch"},
		&ModifyRelationship{FromCharacterID: "npc-1", ToCharacterID: "pc-1", Change: 0.5, Reason: "saved her brother"},
		&ModifyStat{CharacterID: "pc-1", Stat: "HP", Modifier: -3},
		&CompleteEvent{EventID: "ev-1", Outcome: "escaped"},
	}

	next, desc := ApplyEffects(state, effects)

	require.Len(t, desc, len(effects))
	assert.True(t, next.Flags["gate_open"])
	assert.NotContains(t, next.Flags, "old")
	assert.Equal(t, 2, next.Inventory["Rope"])
	assert.NotContains(t, next.Inventory, "Torch")
	assert.InDelta(t, 1.0, next.Relationships[types.RelationshipKey("npc-1", "pc-1")], 1e-9)
	assert.Equal(t, -3, next.Stats["pc-1"]["HP"])
	assert.Equal(t, "escaped", next.CompletedEvents["ev-1"])
	assert.Equal(t, 7, next.EventTurns["ev-1"])
	assert.Equal(t, 4, next.Version)
	assert.Contains(t, desc[4], "saved her brother")

	// Input is untouched.
	assert.True(t, state.Flags["old"])
	assert.Equal(t, 1, state.Inventory["Torch"])
	assert.Equal(t, 3, state.Version)
}

func TestApplyEffects_RemoveMissingItem(t *testing.T) {
	next, desc := ApplyEffects(types.WorldState{}, []EventEffect{&RemoveItem{ItemName: "Gem", Quantity: 2}})
	assert.Empty(t, next.Inventory)
	assert.Equal(t, []string{"Party has no Gem to take"}, desc)
}

func TestEventJSON(t *testing.T) {
	data := []byte(`{
		"id": "ev-ambush",
		"worldId": "w1",
		"name": "Ambush",
		"isActive": true,
		"logic": {"type": "AT_LEAST", "count": 2},
		"triggers": [
			{"id": "t1", "description": "Entered the pass", "condition": {"type": "PLAYER_ENTERS_LOCATION", "locationId": "loc-pass"}},
			{"id": "t2", "description": "Carries the idol", "isRequired": true, "condition": {"type": "HAS_ITEM", "itemName": "Idol"}},
			{"id": "t3", "description": "Night falls", "condition": {"type": "CUSTOM", "description": "It is dark", "llmEvaluation": true}}
		],
		"effects": [
			{"type": "SET_FLAG", "flag": "ambushed"},
			{"type": "COMPLETE_EVENT", "eventId": "ev-ambush"}
		]
	}`)

	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, AtLeast(2), ev.Logic)
	require.Len(t, ev.Triggers, 3)
	assert.Equal(t, &PlayerEntersLocation{LocationID: "loc-pass"}, ev.Triggers[0].Condition)
	assert.True(t, ev.Triggers[1].IsRequired)
	require.Len(t, CustomConditions(ev.Triggers), 1)
	require.Len(t, ev.Effects, 2)
	assert.Equal(t, &SetFlag{Flag: "ambushed"}, ev.Effects[0])

	out, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"type":"HAS_ITEM"`)
	assert.Contains(t, string(out), `"type":"COMPLETE_EVENT"`)
}

func TestTriggerJSON_Errors(t *testing.T) {
	var tr Trigger
	assert.ErrorContains(t, json.Unmarshal([]byte(`{"id":"x","condition":{"type":"TELEPATHY"}}`), &tr), "unknown condition type")
	assert.ErrorContains(t, json.Unmarshal([]byte(`{"id":"x","condition":{"flag":"a"}}`), &tr), "missing type")

	var logic TriggerLogic
	assert.Error(t, json.Unmarshal([]byte(`{"type":"AT_LEAST"}`), &logic))
	require.NoError(t, json.Unmarshal([]byte(`{}`), &logic))
	assert.Equal(t, All(), logic)

	var effects Effects
	assert.ErrorContains(t, json.Unmarshal([]byte(`[{"type":"EXPLODE"}]`), &effects), "unknown effect type")

	_, err := json.Marshal(Trigger{ID: "empty"})
	assert.Error(t, err)
}
