package staging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/text/cases"

	"github.com/dwsmith1983/narrator/internal/llm"
	"github.com/dwsmith1983/narrator/pkg/types"
)

const llmSystemPrompt = `You help a tabletop RPG director decide which NPCs are in a scene.
You are given each NPC with a rule-based verdict. Confirm or override each one.
Reply with a JSON array only. Each element is an object with:
  "name": the NPC name exactly as listed,
  "is_present": true or false,
  "is_hidden_from_players": true if the NPC is present but unnoticed,
  "reasoning": one short sentence.`

const llmTemperature = 0.3

type llmVerdict struct {
	Name                string `json:"name"`
	IsPresent           *bool  `json:"is_present"`
	IsHiddenFromPlayers *bool  `json:"is_hidden_from_players"`
	Reasoning           string `json:"reasoning"`
}

func buildLLMPrompt(region *types.Region, req ProposalRequest, rules []types.NpcProposal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Region: %s\n", region.Name)
	if region.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", region.Description)
	}
	fmt.Fprintf(&b, "In-game time: %s (%s)\n\nNPCs:\n", req.GameTime.Format("15:04"), types.TimeOfDayAt(req.GameTime.Hour()))
	for i, n := range rules {
		verdict := "absent"
		if n.IsPresent {
			verdict = "present"
		}
		fmt.Fprintf(&b, "%d. %s: rules say %s (%s)\n", i+1, n.Name, verdict, n.Reasoning)
	}
	if g := strings.TrimSpace(req.Guidance); g != "" {
		fmt.Fprintf(&b, "\nDirector guidance: %s\n", g)
	}
	b.WriteString("\nRespond with the JSON array only.")
	return b.String()
}

// refineWithLLM asks the AI to confirm or override the rule-based verdicts.
// NPCs the reply omits keep their rule-based verdict.
func (e *Engine) refineWithLLM(ctx context.Context, region *types.Region, req ProposalRequest, rules []types.NpcProposal) ([]types.NpcProposal, error) {
	ctx, span := tracer.Start(ctx, "staging.llm_proposal")
	defer span.End()

	resp, err := e.llm.Generate(ctx, llm.UserPrompt(llmSystemPrompt, buildLLMPrompt(region, req, rules), llmTemperature))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "llm call failed")
		return nil, err
	}
	body, err := llm.ExtractJSONArray(resp.Content)
	if err != nil {
		span.SetStatus(codes.Error, "no array in reply")
		return nil, err
	}
	var verdicts []llmVerdict
	if err := json.Unmarshal([]byte(body), &verdicts); err != nil {
		span.SetStatus(codes.Error, "invalid reply")
		return nil, fmt.Errorf("%w: decoding staging verdicts: %w", llm.ErrInvalidResponse, err)
	}

	byName := make(map[string]llmVerdict, len(verdicts))
	for _, v := range verdicts {
		byName[normalizeName(v.Name)] = v
	}
	out := make([]types.NpcProposal, len(rules))
	for i, n := range rules {
		out[i] = n
		v, ok := byName[normalizeName(n.Name)]
		if !ok {
			continue
		}
		if v.IsPresent != nil {
			out[i].IsPresent = *v.IsPresent
		}
		if v.IsHiddenFromPlayers != nil {
			out[i].IsHiddenFromPlayers = *v.IsHiddenFromPlayers
		}
		if r := strings.TrimSpace(v.Reasoning); r != "" {
			out[i].Reasoning = "[LLM] " + r
		}
	}
	return out, nil
}

// normalizeName folds case and collapses whitespace for name matching.
func normalizeName(name string) string {
	return cases.Fold().String(strings.Join(strings.Fields(name), " "))
}
