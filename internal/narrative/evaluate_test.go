package narrative

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/narrator/pkg/types"
)

func ptr[T any](v T) *T { return &v }

func flagTrigger(id, flag string) Trigger {
	return Trigger{ID: id, Description: "flag " + flag, Condition: &FlagSet{Flag: flag}}
}

func TestEvaluate_AtLeast(t *testing.T) {
	triggers := []Trigger{
		flagTrigger("t1", "a"),
		flagTrigger("t2", "b"),
		flagTrigger("t3", "c"),
	}

	two := &TriggerContext{Flags: map[string]bool{"a": true, "b": true}}
	ev := Evaluate(triggers, AtLeast(2), two)
	assert.True(t, ev.IsTriggered)
	assert.InDelta(t, 0.667, ev.Confidence, 0.001)
	assert.Equal(t, []string{"flag a", "flag b"}, ev.Matched)
	assert.Equal(t, []string{"flag c"}, ev.Unmatched)
	assert.Equal(t, 3, ev.Total)

	one := &TriggerContext{Flags: map[string]bool{"a": true}}
	ev = Evaluate(triggers, AtLeast(2), one)
	assert.False(t, ev.IsTriggered)
	assert.InDelta(t, 0.333, ev.Confidence, 0.001)
}

func TestEvaluate_AllAndAny(t *testing.T) {
	triggers := []Trigger{flagTrigger("t1", "a"), flagTrigger("t2", "b")}
	tc := &TriggerContext{Flags: map[string]bool{"a": true}}

	assert.False(t, Evaluate(triggers, All(), tc).IsTriggered)
	assert.True(t, Evaluate(triggers, Any(), tc).IsTriggered)

	tc.Flags["b"] = true
	assert.True(t, Evaluate(triggers, All(), tc).IsTriggered)
}

func TestEvaluate_NoTriggers(t *testing.T) {
	ev := Evaluate(nil, Any(), &TriggerContext{})
	assert.False(t, ev.IsTriggered)
	assert.Zero(t, ev.Confidence)
	assert.Zero(t, ev.Total)
}

func TestEvaluate_RequiredTriggerGates(t *testing.T) {
	req := flagTrigger("t1", "a")
	req.IsRequired = true
	triggers := []Trigger{req, flagTrigger("t2", "b")}

	ev := Evaluate(triggers, Any(), &TriggerContext{Flags: map[string]bool{"b": true}})
	assert.False(t, ev.IsTriggered)
	assert.InDelta(t, 0.5, ev.Confidence, 0.001)
}

func TestEvaluate_CustomWithoutResultIsNotMet(t *testing.T) {
	triggers := []Trigger{{ID: "c", Description: "the moon is full", Condition: &Custom{Description: "the moon is full", LLMEvaluation: true}}}
	tc := &TriggerContext{}

	assert.False(t, Evaluate(triggers, All(), tc).IsTriggered)

	tc.SetCustomResult("the moon is full", true)
	assert.True(t, Evaluate(triggers, All(), tc).IsTriggered)
}

func TestConditions(t *testing.T) {
	tc := &TriggerContext{
		LocationID:          "loc-tavern",
		TimeContext:         " Evening ",
		Flags:               map[string]bool{"door_open": true, "closed": false},
		Inventory:           map[string]int{"Silver Key": 2},
		CompletedEvents:     map[string]string{"ev-1": "spared"},
		CompletedChallenges: map[string]bool{"ch-1": true, "ch-2": false},
		Relationships:       map[string]float64{types.RelationshipKey("npc-1", "pc-1"): 0.6},
		Stats:               map[string]map[string]int{"pc-1": {"STR": 14}},
		TurnCount:           12,
		TurnsSinceEvent:     map[string]int{"ev-1": 3},
		RecentAction:        "I push   the heavy LEVER and greet the Innkeeper",
		DialogueTopics:      []string{"The missing caravan"},
		KnownSpells:         []string{"Fireball"},
		Feats:               []string{"alert"},
		ClassLevels:         map[string]int{"Wizard": 5},
		OriginID:            "elf",
		KnownCreatures:      []string{"owlbear"},
	}

	tests := []struct {
		name string
		cond TriggerCondition
		want bool
	}{
		{"npc action keyword", &NpcAction{NpcID: "npc-1", Keywords: []string{"greet"}}, true},
		{"npc action miss", &NpcAction{NpcID: "npc-1", Keywords: []string{"attack"}}, false},
		{"object by name", &ObjectInteraction{ObjectName: "heavy lever"}, true},
		{"object by keyword", &ObjectInteraction{ObjectName: "chest", Keywords: []string{"Lever"}}, true},
		{"object miss", &ObjectInteraction{ObjectName: "chest"}, false},
		{"enters location", &PlayerEntersLocation{LocationID: "loc-tavern"}, true},
		{"other location", &PlayerEntersLocation{LocationID: "loc-keep"}, false},
		{"time at location", &TimeAtLocation{LocationID: "loc-tavern", TimeContext: "evening"}, true},
		{"wrong time", &TimeAtLocation{LocationID: "loc-tavern", TimeContext: "morning"}, false},
		{"dialogue topic", &DialogueTopic{Keywords: []string{"caravan"}}, true},
		{"dialogue miss", &DialogueTopic{Keywords: []string{"dragon"}}, false},
		{"challenge done", &ChallengeCompleted{ChallengeID: "ch-1"}, true},
		{"challenge needs success", &ChallengeCompleted{ChallengeID: "ch-2", RequiresSuccess: ptr(true)}, false},
		{"challenge needs failure", &ChallengeCompleted{ChallengeID: "ch-2", RequiresSuccess: ptr(false)}, true},
		{"challenge not done", &ChallengeCompleted{ChallengeID: "ch-3"}, false},
		{"event done", &EventCompleted{EventID: "ev-1"}, true},
		{"event outcome", &EventCompleted{EventID: "ev-1", Outcome: ptr("spared")}, true},
		{"event wrong outcome", &EventCompleted{EventID: "ev-1", Outcome: ptr("slain")}, false},
		{"relationship in range", &RelationshipThreshold{CharacterID: "npc-1", WithCharacterID: "pc-1", MinSentiment: ptr(0.5)}, true},
		{"relationship above max", &RelationshipThreshold{CharacterID: "npc-1", WithCharacterID: "pc-1", MaxSentiment: ptr(0.5)}, false},
		{"relationship unknown", &RelationshipThreshold{CharacterID: "pc-1", WithCharacterID: "npc-1"}, false},
		{"stat in range", &StatThreshold{CharacterID: "pc-1", Stat: "STR", Min: ptr(12), Max: ptr(16)}, true},
		{"stat below min", &StatThreshold{CharacterID: "pc-1", Stat: "STR", Min: ptr(15)}, false},
		{"stat unknown", &StatThreshold{CharacterID: "pc-1", Stat: "DEX"}, false},
		{"has item", &HasItem{ItemName: "silver key"}, true},
		{"has enough items", &HasItem{ItemName: "Silver Key", Quantity: ptr(3)}, false},
		{"missing item", &MissingItem{ItemName: "Lantern"}, true},
		{"not missing item", &MissingItem{ItemName: "Silver Key"}, false},
		{"flag set", &FlagSet{Flag: "door_open"}, true},
		{"flag false", &FlagSet{Flag: "closed"}, false},
		{"flag not set absent", &FlagNotSet{Flag: "alarm"}, true},
		{"flag not set present", &FlagNotSet{Flag: "door_open"}, false},
		{"turn count", &TurnCount{Turns: 10}, true},
		{"turns since event", &TurnCount{Turns: 3, SinceEvent: ptr("ev-1")}, true},
		{"turns since event not reached", &TurnCount{Turns: 4, SinceEvent: ptr("ev-1")}, false},
		{"turns since unknown event", &TurnCount{Turns: 0, SinceEvent: ptr("ev-9")}, false},
		{"knows spell", &KnowsSpell{SpellID: "fireball"}, true},
		{"has feat", &HasFeat{FeatID: "Alert"}, true},
		{"has class", &HasClass{ClassID: "wizard", MinLevel: ptr(5)}, true},
		{"class too low", &HasClass{ClassID: "wizard", MinLevel: ptr(6)}, false},
		{"has origin", &HasOrigin{OriginID: "Elf"}, true},
		{"knows creature", &KnowsCreature{CreatureID: "OWLBEAR"}, true},
		{"custom not llm evaluated", &Custom{Description: "x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cond.Matches(tc))
		})
	}
}

func TestNewContext_TurnsSinceEvent(t *testing.T) {
	tc := NewContext(types.WorldState{
		TurnCount:  10,
		EventTurns: map[string]int{"ev-1": 4},
	})
	require.NotNil(t, tc.CustomResults)
	assert.Equal(t, 6, tc.TurnsSinceEvent["ev-1"])
}

func TestSuggest_OrdersByPriorityAndSkipsCompleted(t *testing.T) {
	tc := &TriggerContext{
		Flags:           map[string]bool{"a": true},
		CompletedEvents: map[string]string{"done": ""},
	}
	events := []Event{
		{ID: "low", Name: "Low", IsActive: true, Priority: 1, Triggers: []Trigger{flagTrigger("t", "a")}},
		{ID: "high", Name: "High", IsActive: true, Priority: 5, Triggers: []Trigger{flagTrigger("t", "a")}},
		{ID: "inactive", IsActive: false, Triggers: []Trigger{flagTrigger("t", "a")}},
		{ID: "done", IsActive: true, Triggers: []Trigger{flagTrigger("t", "a")}},
		{ID: "unmet", IsActive: true, Triggers: []Trigger{flagTrigger("t", "b")}},
	}

	got := Suggest(events, tc)
	require.Len(t, got, 2)
	assert.Equal(t, "high", got[0].EventID)
	assert.Equal(t, "low", got[1].EventID)
}
