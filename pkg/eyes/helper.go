package eyes

import (
	"encoding/json"
	"strings"

	"github.com/third-eye/overseer/pkg/envelope"
)

type helperPayload struct {
	UserPrompt             string `json:"user_prompt"`
	ClarificationAnswersMD string `json:"clarification_answers_md,omitempty"`
}

const helperExample = `{
  "user_prompt": "Summarize Q3 revenue by region",
  "clarification_answers_md": "- Audience: executive team\n- Format: one-page brief"
}`

func decodeHelper(raw json.RawMessage) (any, error) {
	var p helperPayload
	if err := decodeInto(raw, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.UserPrompt) == "" {
		return nil, badPayload("user_prompt must be a non-empty string")
	}
	return p, nil
}

// contextBullets turns clarification answer lines into CONTEXT bullets,
// stripping any leading list marker so the output nests uniformly.
func contextBullets(answersMD string) []string {
	var bullets []string
	for _, line := range strings.Split(answersMD, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "- ")
		line = strings.TrimPrefix(line, "* ")
		if line != "" {
			bullets = append(bullets, line)
		}
	}
	return bullets
}

func evaluateHelper(payload any, _ runInput) outcome {
	p := payload.(helperPayload)

	var b strings.Builder
	b.WriteString("## Optimized Prompt\n\n")
	b.WriteString("ROLE: You are a senior specialist for the task described below.\n\n")
	b.WriteString("TASK: " + strings.TrimSpace(p.UserPrompt) + "\n\n")
	b.WriteString("CONTEXT:\n")
	bullets := contextBullets(p.ClarificationAnswersMD)
	if len(bullets) == 0 {
		b.WriteString("- No additional context was provided.\n")
	}
	for _, bullet := range bullets {
		b.WriteString("- " + bullet + "\n")
	}
	b.WriteString("\nREQUIREMENTS:\n")
	b.WriteString("- Satisfy every point in TASK and CONTEXT.\n")
	b.WriteString("- State assumptions explicitly instead of guessing.\n")
	b.WriteString("- Keep the result self-contained and reviewable.\n")
	b.WriteString("\nOUTPUT: A complete deliverable matching the task, ready for validation.\n")
	promptMD := b.String()

	instructions := "Submit the optimized prompt to `jogan/confirm_intent` together with an " +
		"estimated token budget for the deliverable."

	return outcome{
		ok:   true,
		code: envelope.OKPromptReady,
		md:   "# Prompt Rewritten\n\n" + promptMD,
		data: map[string]any{
			"prompt_md":       promptMD,
			"instructions_md": instructions,
			"next_action_md":  envelope.NextSendToJogan,
		},
		next: envelope.NextSendToJogan,
	}
}
