package types

// WorldState is the mutable narrative state of a world that trigger
// conditions read and event effects write.
type WorldState struct {
	WorldID             string                    `json:"worldId"`
	Flags               map[string]bool           `json:"flags,omitempty"`
	Inventory           map[string]int            `json:"inventory,omitempty"`
	CompletedEvents     map[string]string         `json:"completedEvents,omitempty"`     // event id -> outcome
	CompletedChallenges map[string]bool           `json:"completedChallenges,omitempty"` // challenge id -> succeeded
	Relationships       map[string]float64        `json:"relationships,omitempty"`       // RelationshipKey -> sentiment
	Stats               map[string]map[string]int `json:"stats,omitempty"`               // character id -> stat -> value
	TurnCount           int                       `json:"turnCount"`
	EventTurns          map[string]int            `json:"eventTurns,omitempty"` // event id -> turn it completed
	Version             int                       `json:"version"`
}

// RelationshipKey builds the key used in WorldState.Relationships.
func RelationshipKey(from, to string) string {
	return from + "->" + to
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (s WorldState) Clone() WorldState {
	out := s
	out.Flags = cloneMap(s.Flags)
	out.Inventory = cloneMap(s.Inventory)
	out.CompletedEvents = cloneMap(s.CompletedEvents)
	out.CompletedChallenges = cloneMap(s.CompletedChallenges)
	out.Relationships = cloneMap(s.Relationships)
	out.EventTurns = cloneMap(s.EventTurns)
	if s.Stats != nil {
		out.Stats = make(map[string]map[string]int, len(s.Stats))
		for k, v := range s.Stats {
			out.Stats[k] = cloneMap(v)
		}
	}
	return out
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
