package worker

import (
	"fmt"
	"strings"

	"github.com/dwsmith1983/narrator/internal/llm"
	"github.com/dwsmith1983/narrator/internal/narrative"
	"github.com/dwsmith1983/narrator/pkg/types"
)

const narratorTemperature = 0.7

// ToolTriggerEvent is offered to the AI when narrative events are close to
// firing. Calls are only proposals; the director decides.
const ToolTriggerEvent = "trigger_event"

// scene is everything the prompt builder knows about where the action happens.
type scene struct {
	world   *types.World
	region  *types.Region
	staging *types.Staging
}

func buildSystemPrompt(w *types.World) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the game master narrating the world of %s.", w.Name)
	if w.Description != "" {
		fmt.Fprintf(&b, " %s", w.Description)
	}
	if w.Tone != "" {
		fmt.Fprintf(&b, "\nTone: %s.", w.Tone)
	}
	b.WriteString("\nRespond to the player's action in character, in at most three short paragraphs.")
	b.WriteString("\nOnly NPCs listed as present may speak or act. Never mention hidden NPCs to the players.")
	b.WriteString("\nIf a listed narrative event fits the moment, you may propose it with the trigger_event tool.")
	return b.String()
}

func buildUserPrompt(sc scene, action PlayerAction, suggestions []narrative.Suggestion) string {
	var b strings.Builder
	b.WriteString("## Scene\n")
	fmt.Fprintf(&b, "Location: %s\n", sc.region.Name)
	if sc.region.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", sc.region.Description)
	}
	if !action.GameTime.IsZero() {
		fmt.Fprintf(&b, "Time: %s (%s)\n", types.TimeOfDayAt(action.GameTime.Hour()), action.GameTime.Format("15:04"))
	}
	var present, hidden []string
	if sc.staging != nil {
		for _, n := range sc.staging.NPCs {
			switch {
			case !n.IsPresent:
			case n.IsHiddenFromPlayers:
				hidden = append(hidden, n.Name)
			default:
				present = append(present, n.Name)
			}
		}
	}
	if len(present) > 0 {
		fmt.Fprintf(&b, "NPCs present: %s\n", strings.Join(present, ", "))
	} else {
		b.WriteString("NPCs present: none\n")
	}
	if len(hidden) > 0 {
		fmt.Fprintf(&b, "Hidden NPCs (players cannot see them): %s\n", strings.Join(hidden, ", "))
	}

	b.WriteString("\n## Player Action\n")
	fmt.Fprintf(&b, "%s (%s", action.Actor(), action.ActionType)
	if action.Target != "" {
		fmt.Fprintf(&b, " -> %s", action.Target)
	}
	fmt.Fprintf(&b, "): %s\n", action.Content)

	if len(suggestions) > 0 {
		b.WriteString("\n## Narrative Events Ready To Fire\n")
		for _, s := range suggestions {
			fmt.Fprintf(&b, "- %s [%s]: %s\n", s.Name, s.EventID, s.Description)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func buildRequest(sc scene, action PlayerAction, suggestions []narrative.Suggestion) (types.LlmRequest, []types.ToolDefinition) {
	req := llm.UserPrompt(buildSystemPrompt(sc.world), buildUserPrompt(sc, action, suggestions), narratorTemperature)
	if len(suggestions) == 0 {
		return req, nil
	}
	ids := make([]string, len(suggestions))
	for i, s := range suggestions {
		ids[i] = s.EventID
	}
	return req, []types.ToolDefinition{{
		Name:        ToolTriggerEvent,
		Description: "Propose firing a narrative event that the current action satisfies.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"event_id": map[string]any{"type": "string", "enum": ids},
				"outcome":  map[string]any{"type": "string"},
			},
			"required": []string{"event_id"},
		},
	}}
}

// withFeedback extends a rejected request with the rejected reply and the
// director's feedback.
func withFeedback(req types.LlmRequest, rejected, feedback string) types.LlmRequest {
	msg := "The director rejected that response."
	if strings.TrimSpace(feedback) != "" {
		msg += " Feedback: " + strings.TrimSpace(feedback)
	}
	msg += " Write a new response."
	out := req
	out.Messages = append(append([]types.ChatMessage(nil), req.Messages...),
		types.ChatMessage{Role: types.RoleAssistant, Content: rejected},
		types.ChatMessage{Role: types.RoleUser, Content: msg},
	)
	return out
}
