package envelope

// dataKeys is the closed registry of data-map keys each tool may emit.
// Shared failure keys (emitted by the harness for any tool) are listed in
// harnessKeys. Emitting a key outside the registry is a programming error.
var dataKeys = map[Tool][]string{
	ToolNavigator:        {"summary_md", "instructions_md", "schema_md", "example_md", "contract_json", "next_action_md"},
	ToolSharingan:        {"score", "ambiguous", "x", "is_code_related", "reasoning_md", "questions_md", "policy_md"},
	ToolPromptHelper:     {"prompt_md", "instructions_md", "next_action_md"},
	ToolJogan:            {"confirmed", "missing_sections", "estimated_tokens"},
	ToolPlanRequirements: {"schema_md", "example_md", "acceptance_criteria_md"},
	ToolPlanReview:       {"approved", "missing_sections", "issues_md"},
	ToolFinalApproval:    {"approved", "summary_md", "incomplete_phases"},
	ToolReviewScaffold:   {"approved", "checklist_md", "issues_md"},
	ToolReviewImpl:       {"approved", "issues_md"},
	ToolReviewTests:      {"approved", "lines_pct", "branches_pct", "thresholds", "issues_md"},
	ToolReviewDocs:       {"approved", "issues_md"},
	ToolValidateClaims:   {"validated", "weak_citations", "issues_md"},
	ToolConsistencyCheck: {"consistent", "consistency_score", "issues_md"},
}

// harnessKeys may appear in any tool's failure envelope.
var harnessKeys = []string{"error", "expected_schema_md", "violations"}

// DataKeyAllowed reports whether a tool may emit the given data key.
func DataKeyAllowed(tool Tool, key string) bool {
	for _, k := range dataKeys[tool] {
		if k == key {
			return true
		}
	}
	for _, k := range harnessKeys {
		if k == key {
			return true
		}
	}
	return false
}

// DataKeys returns the registered keys for a tool (without harness keys).
func DataKeys(tool Tool) []string {
	keys := make([]string, len(dataKeys[tool]))
	copy(keys, dataKeys[tool])
	return keys
}
