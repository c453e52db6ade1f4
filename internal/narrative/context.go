package narrative

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/dwsmith1983/narrator/pkg/types"
)

// TriggerContext is the read-only snapshot a trigger is evaluated against.
// CustomResults must be filled before evaluation; a CUSTOM condition without
// an entry is not met.
type TriggerContext struct {
	LocationID          string
	SceneID             string
	TimeContext         string
	Flags               map[string]bool
	Inventory           map[string]int
	CompletedEvents     map[string]string // event id -> outcome
	CompletedChallenges map[string]bool   // challenge id -> succeeded
	Relationships       map[string]float64
	Stats               map[string]map[string]int
	TurnCount           int
	TurnsSinceEvent     map[string]int
	RecentAction        string
	DialogueTopics      []string
	CustomResults       map[string]bool

	KnownSpells    []string
	Feats          []string
	ClassLevels    map[string]int
	OriginID       string
	KnownCreatures []string
}

// NewContext seeds a context from a world's narrative state.
func NewContext(state types.WorldState) *TriggerContext {
	tc := &TriggerContext{
		Flags:               state.Flags,
		Inventory:           state.Inventory,
		CompletedEvents:     state.CompletedEvents,
		CompletedChallenges: state.CompletedChallenges,
		Relationships:       state.Relationships,
		Stats:               state.Stats,
		TurnCount:           state.TurnCount,
		TurnsSinceEvent:     make(map[string]int, len(state.EventTurns)),
		CustomResults:       make(map[string]bool),
	}
	for id, turn := range state.EventTurns {
		tc.TurnsSinceEvent[id] = state.TurnCount - turn
	}
	return tc
}

// Relationship returns how from feels about to, if recorded.
func (c *TriggerContext) Relationship(from, to string) (float64, bool) {
	v, ok := c.Relationships[types.RelationshipKey(from, to)]
	return v, ok
}

// Stat returns a character's stat value, if recorded.
func (c *TriggerContext) Stat(characterID, stat string) (int, bool) {
	stats, ok := c.Stats[characterID]
	if !ok {
		return 0, false
	}
	v, ok := stats[stat]
	return v, ok
}

// SetCustomResult records the pre-computed outcome of a CUSTOM condition.
func (c *TriggerContext) SetCustomResult(description string, met bool) {
	if c.CustomResults == nil {
		c.CustomResults = make(map[string]bool)
	}
	c.CustomResults[description] = met
}

// fold normalizes text for case-insensitive comparison.
func fold(s string) string {
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}

func containsFolded(haystack, needle string) bool {
	n := fold(needle)
	return n != "" && strings.Contains(fold(haystack), n)
}

func anyEqualFold(list []string, want string) bool {
	w := fold(want)
	for _, s := range list {
		if fold(s) == w {
			return true
		}
	}
	return false
}
