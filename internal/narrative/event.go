package narrative

import (
	"cmp"
	"slices"
)

// Event is a director-designed narrative event that fires when its
// triggers are met.
type Event struct {
	ID           string       `json:"id"`
	WorldID      string       `json:"worldId"`
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	Triggers     []Trigger    `json:"triggers"`
	Logic        TriggerLogic `json:"logic"`
	Effects      Effects      `json:"effects,omitempty"`
	IsActive     bool         `json:"isActive"`
	IsRepeatable bool         `json:"isRepeatable,omitempty"`
	Priority     int          `json:"priority,omitempty"`
}

// Evaluate checks the event's triggers against tc.
func (e Event) Evaluate(tc *TriggerContext) Evaluation {
	return Evaluate(e.Triggers, e.Logic, tc)
}

// Suggestion is a fired event offered to the director.
type Suggestion struct {
	EventID     string     `json:"eventId"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Evaluation  Evaluation `json:"evaluation"`
}

// Suggest evaluates active events and returns the fired ones, highest
// priority first, then highest confidence. Completed events that are not
// repeatable are skipped.
func Suggest(events []Event, tc *TriggerContext) []Suggestion {
	type ranked struct {
		Suggestion
		priority int
	}
	if tc == nil {
		tc = &TriggerContext{}
	}
	var fired []ranked
	for _, e := range events {
		if !e.IsActive {
			continue
		}
		if _, done := tc.CompletedEvents[e.ID]; done && !e.IsRepeatable {
			continue
		}
		ev := e.Evaluate(tc)
		if !ev.IsTriggered {
			continue
		}
		fired = append(fired, ranked{
			Suggestion: Suggestion{EventID: e.ID, Name: e.Name, Description: e.Description, Evaluation: ev},
			priority:   e.Priority,
		})
	}
	slices.SortStableFunc(fired, func(a, b ranked) int {
		if c := cmp.Compare(b.priority, a.priority); c != 0 {
			return c
		}
		return cmp.Compare(b.Evaluation.Confidence, a.Evaluation.Confidence)
	})
	out := make([]Suggestion, len(fired))
	for i, r := range fired {
		out[i] = r.Suggestion
	}
	return out
}
