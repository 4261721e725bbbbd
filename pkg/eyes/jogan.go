package eyes

import (
	"encoding/json"
	"strings"

	"github.com/third-eye/overseer/pkg/envelope"
)

type joganPayload struct {
	RefinedPromptMD string `json:"refined_prompt_md"`
	EstimatedTokens int    `json:"estimated_tokens"`
}

const joganExample = `{
  "refined_prompt_md": "ROLE: ...\nTASK: ...\nCONTEXT: ...\nREQUIREMENTS: ...\nOUTPUT: ...",
  "estimated_tokens": 4000
}`

func decodeJogan(raw json.RawMessage) (any, error) {
	var p joganPayload
	if err := decodeInto(raw, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.RefinedPromptMD) == "" {
		return nil, badPayload("refined_prompt_md must be a non-empty string")
	}
	if p.EstimatedTokens < 0 {
		return nil, badPayload("estimated_tokens must be >= 0")
	}
	return p, nil
}

// promptSections are the labels an optimized prompt must carry before the
// pipeline commits to it.
var promptSections = []string{"ROLE:", "TASK:", "CONTEXT:", "REQUIREMENTS:", "OUTPUT:"}

func evaluateJogan(payload any, _ runInput) outcome {
	p := payload.(joganPayload)
	upper := strings.ToUpper(p.RefinedPromptMD)

	var missing []string
	for _, section := range promptSections {
		if !strings.Contains(upper, section) {
			missing = append(missing, strings.TrimSuffix(section, ":"))
		}
	}

	if len(missing) > 0 || p.EstimatedTokens <= 0 {
		var b strings.Builder
		b.WriteString("# Intent Not Confirmed\n\n")
		for _, m := range missing {
			b.WriteString("- missing section: " + m + "\n")
		}
		if p.EstimatedTokens <= 0 {
			b.WriteString("- estimated_tokens must be a positive number\n")
		}
		if missing == nil {
			missing = []string{}
		}
		return outcome{
			ok:   false,
			code: envelope.EIntentUnconfirmed,
			md:   b.String(),
			data: map[string]any{
				"confirmed":        false,
				"missing_sections": missing,
				"estimated_tokens": p.EstimatedTokens,
			},
			next: envelope.NextRerunJogan,
		}
	}

	return outcome{
		ok:   true,
		code: envelope.OKIntentConfirmed,
		md: "# Intent Confirmed\n\nThe optimized prompt carries all required sections " +
			"and a positive token estimate. Proceed to planning.",
		data: map[string]any{
			"confirmed":        true,
			"missing_sections": []string{},
			"estimated_tokens": p.EstimatedTokens,
		},
		next: envelope.NextCallPlanRequirements,
	}
}
