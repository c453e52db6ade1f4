package condition

import "fmt"

const systemPromptTemplate = `You are a game master assistant deciding whether a condition is currently met in a tabletop RPG session.

Read the condition and the current game state, then decide whether the condition is TRUE or FALSE.

Rules:
1. If the state does not say enough to decide, answer false.
2. Use only the facts given. Do not invent any.
3. Give a confidence between 0.0 and 1.0:
   - 0.9-1.0: explicit evidence
   - 0.7-0.9: strong implication
   - 0.5-0.7: some ambiguity
   - below 0.5: little or no evidence
4. A condition counts as met only at confidence %.2f or higher.

Reply with exactly this JSON and nothing else:
` + "```json" + `
{
  "result": true or false,
  "confidence": 0.0 to 1.0,
  "reasoning": "short explanation"
}
` + "```"

func systemPrompt(threshold float64) string {
	return fmt.Sprintf(systemPromptTemplate, threshold)
}

func userPrompt(description string, c EvaluationContext) string {
	return fmt.Sprintf("## Condition\n%s\n\n## Current Game State\n%s\n\nDecide whether the condition is met and reply in the JSON format above.",
		description, c.Format())
}
