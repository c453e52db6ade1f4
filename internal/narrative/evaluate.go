package narrative

// Evaluation is the outcome of evaluating a trigger set.
type Evaluation struct {
	IsTriggered bool     `json:"isTriggered"`
	Matched     []string `json:"matched"`
	Unmatched   []string `json:"unmatched"`
	Total       int      `json:"total"`
	Confidence  float64  `json:"confidence"`
}

// Evaluate checks every trigger against tc and combines the results with
// logic. Required triggers must match regardless of logic. An empty trigger
// set never fires.
func Evaluate(triggers []Trigger, logic TriggerLogic, tc *TriggerContext) Evaluation {
	if tc == nil {
		tc = &TriggerContext{}
	}
	ev := Evaluation{
		Matched:   []string{},
		Unmatched: []string{},
		Total:     len(triggers),
	}
	requiredMet := true
	for _, t := range triggers {
		if t.Condition != nil && t.Condition.Matches(tc) {
			ev.Matched = append(ev.Matched, t.label())
			continue
		}
		ev.Unmatched = append(ev.Unmatched, t.label())
		if t.IsRequired {
			requiredMet = false
		}
	}
	if ev.Total == 0 {
		return ev
	}
	ev.Confidence = float64(len(ev.Matched)) / float64(ev.Total)
	ev.IsTriggered = requiredMet && logic.satisfied(len(ev.Matched), ev.Total)
	return ev
}

// CustomConditions returns the CUSTOM conditions that need an AI verdict
// before evaluation.
func CustomConditions(triggers []Trigger) []*Custom {
	var out []*Custom
	for _, t := range triggers {
		if c, ok := t.Condition.(*Custom); ok && c.LLMEvaluation {
			out = append(out, c)
		}
	}
	return out
}
