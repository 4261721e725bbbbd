package eyes

import (
	"encoding/json"
	"strings"

	"github.com/third-eye/overseer/pkg/envelope"
)

// navigatorPayload is intentionally empty: the navigator takes no input
// beyond the request context. Any fields sent are rejected.
type navigatorPayload struct{}

const navigatorExample = `{}`

func decodeNavigator(raw json.RawMessage) (any, error) {
	var p navigatorPayload
	if len(raw) == 0 {
		return p, nil
	}
	if err := decodeInto(raw, &p); err != nil {
		return nil, err
	}
	return p, nil
}

const navigatorSummary = `The Overseer supervises a fixed validation pipeline. Every deliverable passes through deterministic Eye validators before it may be returned to the user. Call each tool over HTTP with the request envelope below; every response carries a verdict code and the exact next move.`

var navigatorInstructions = strings.Join([]string{
	"1. Call `sharingan/clarify` with the raw user prompt to measure ambiguity.",
	"2. If clarification is required, collect answers and call `helper/rewrite_prompt`.",
	"3. Confirm the optimized prompt with `jogan/confirm_intent`.",
	"4. Code branch: `rinnegan/plan_requirements` -> `rinnegan/plan_review` -> the four `mangekyo/*` reviews -> `rinnegan/final_approval`.",
	"5. Text branch: `tenseigan/validate_claims` -> `byakugan/consistency_check`.",
	"6. Only return the deliverable after `rinnegan/final_approval` reports OK_ALL_APPROVED.",
}, "\n")

const navigatorSchema = "```json\n" + `{
  "context": {
    "session_id": "sess-123",
    "lang": "auto",
    "budget_tokens": 50000
  },
  "payload": {},
  "reasoning_md": "optional; required for review Eyes"
}` + "\n```"

const navigatorSampleCall = "```json\n" + `{
  "context": {"session_id": "sess-123", "lang": "en", "budget_tokens": 50000},
  "payload": {"prompt": "Summarize Q3 revenue by region", "lang": "en"}
}` + "\n```"

// toolContract renders the machine-readable tool registry exposed by the
// navigator so host agents can discover tools without scraping markdown.
func toolContract() []map[string]any {
	tools := envelope.Tools()
	contract := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		contract = append(contract, map[string]any{
			"tool":    string(t),
			"branch":  string(t.Branch()),
			"tag":     string(t.Tag()),
			"version": t.Version(),
		})
	}
	return contract
}

func evaluateNavigator(_ any, _ runInput) outcome {
	return outcome{
		ok:   true,
		code: envelope.OKOverseerGuide,
		md: "# Overseer Pipeline Guide\n\n" + navigatorSummary +
			"\n\n## Standard pipeline\n\n" + navigatorInstructions +
			"\n\n## Request envelope\n\n" + navigatorSchema,
		data: map[string]any{
			"summary_md":      navigatorSummary,
			"instructions_md": navigatorInstructions,
			"schema_md":       navigatorSchema,
			"example_md":      "Sample Sharingan call:\n\n" + navigatorSampleCall,
			"contract_json":   toolContract(),
			"next_action_md":  envelope.NextStartSharingan,
		},
		next: envelope.NextStartSharingan,
	}
}
