package condition

import (
	"fmt"
	"strings"
)

// EvaluationContext is the game state shown to the AI when judging a
// free-text condition.
type EvaluationContext struct {
	TimeOfDay         string
	Location          string
	NPCsPresent       []string
	Inventory         []string
	KnownCharacters   []string
	Flags             []string
	RecentEvents      []string
	AdditionalContext string
}

// Format renders the context as prompt text.
func (c EvaluationContext) Format() string {
	var parts []string
	if c.TimeOfDay != "" {
		parts = append(parts, "Time of Day: "+c.TimeOfDay)
	}
	if c.Location != "" {
		parts = append(parts, "Current Location: "+c.Location)
	}
	if len(c.NPCsPresent) > 0 {
		parts = append(parts, "NPCs Present: "+strings.Join(c.NPCsPresent, ", "))
	}
	if len(c.Inventory) > 0 {
		parts = append(parts, "Player Inventory: "+strings.Join(c.Inventory, ", "))
	}
	if len(c.KnownCharacters) > 0 {
		parts = append(parts, "Known Characters: "+strings.Join(c.KnownCharacters, ", "))
	}
	if len(c.Flags) > 0 {
		parts = append(parts, "Active Flags: "+strings.Join(c.Flags, ", "))
	}
	if len(c.RecentEvents) > 0 {
		parts = append(parts, fmt.Sprintf("Recent Events:\n- %s", strings.Join(c.RecentEvents, "\n- ")))
	}
	if c.AdditionalContext != "" {
		parts = append(parts, "Additional Context: "+c.AdditionalContext)
	}
	if len(parts) == 0 {
		return "No additional context available."
	}
	return strings.Join(parts, "\n\n")
}
