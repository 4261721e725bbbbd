package eyes

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/third-eye/overseer/pkg/envelope"
)

// planSections are the required headings of a submitted implementation plan,
// in canonical order. Rollback Plan becomes optional when the session's
// require_rollback setting is off.
var planSections = []string{
	"High-Level Overview",
	"File Impact Table",
	"Step-by-step Implementation Plan",
	"Error Handling & Edge Cases",
	"Test Strategy",
	"Rollback Plan",
	"Documentation Updates",
}

const planSectionRollback = "Rollback Plan"

// --- plan_requirements ---

type planRequirementsPayload struct{}

const planRequirementsExample = `{}`

func decodePlanRequirements(raw json.RawMessage) (any, error) {
	var p planRequirementsPayload
	if len(raw) == 0 {
		return p, nil
	}
	if err := decodeInto(raw, &p); err != nil {
		return nil, err
	}
	return p, nil
}

func planSchemaMD() string {
	var b strings.Builder
	b.WriteString("### Plan Schema\n\nA plan must contain these sections, in order:\n\n")
	for i, s := range planSections {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}
	b.WriteString("\nThe File Impact Table section must contain a markdown table " +
		"with header `| Path | Action | Reason |`.\n")
	return b.String()
}

const planExampleMD = "### Example Plan\n\n" +
	"## High-Level Overview\nAdd a retry policy to the export worker.\n\n" +
	"## File Impact Table\n| Path | Action | Reason |\n|---|---|---|\n" +
	"| worker/export.go | modify | add retry loop |\n| worker/export_test.go | modify | cover retries |\n\n" +
	"## Step-by-step Implementation Plan\n1. Extract the send call.\n2. Wrap it with bounded retries.\n\n" +
	"## Error Handling & Edge Cases\nExhausted retries surface the last error.\n\n" +
	"## Test Strategy\nUnit tests with a failing-then-succeeding fake sender.\n\n" +
	"## Rollback Plan\nRevert the commit; no data migration involved.\n\n" +
	"## Documentation Updates\nDocument the retry limits in the worker README.\n"

const planAcceptanceMD = "### Acceptance Criteria\n\n" +
	"- Every required section heading is present.\n" +
	"- The File Impact Table lists every touched path with an action and reason.\n" +
	"- Steps are concrete enough to execute without further planning.\n"

func evaluatePlanRequirements(_ any, _ runInput) outcome {
	return outcome{
		ok:   true,
		code: envelope.OKSchemaEmitted,
		md:   "# Plan Requirements\n\n" + planSchemaMD() + "\n" + planAcceptanceMD,
		data: map[string]any{
			"schema_md":              planSchemaMD(),
			"example_md":             planExampleMD,
			"acceptance_criteria_md": planAcceptanceMD,
		},
		next: envelope.NextCallPlanRequirements,
	}
}

// --- plan_review ---

type planReviewPayload struct {
	SubmittedPlanMD string `json:"submitted_plan_md"`
}

const planReviewExample = `{
  "submitted_plan_md": "## High-Level Overview\n...\n## File Impact Table\n| Path | Action | Reason |\n|---|---|---|\n..."
}`

func decodePlanReview(raw json.RawMessage) (any, error) {
	var p planReviewPayload
	if err := decodeInto(raw, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.SubmittedPlanMD) == "" {
		return nil, badPayload("submitted_plan_md must be a non-empty string")
	}
	return p, nil
}

// stripSpaces removes all whitespace so structural checks tolerate
// formatting differences.
func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
}

// hasImpactTable scans for the `| Path | Action | Reason |` header followed
// by a separator row, ignoring inner whitespace.
func hasImpactTable(planMD string) bool {
	lines := strings.Split(planMD, "\n")
	for i, line := range lines {
		if !strings.EqualFold(stripSpaces(line), "|path|action|reason|") {
			continue
		}
		if i+1 >= len(lines) {
			return false
		}
		sep := stripSpaces(lines[i+1])
		if sep == "" || strings.Trim(sep, "|-:") != "" {
			return false
		}
		return true
	}
	return false
}

func evaluatePlanReview(payload any, in runInput) outcome {
	p := payload.(planReviewPayload)

	var missing []string
	for _, section := range planSections {
		if section == planSectionRollback && !in.settings.RequireRollback {
			continue
		}
		if !strings.Contains(p.SubmittedPlanMD, section) {
			missing = append(missing, section)
		}
	}

	var issues []string
	for _, m := range missing {
		issues = append(issues, "missing section: "+m)
	}
	if !hasImpactTable(p.SubmittedPlanMD) {
		issues = append(issues, "File Impact Table must contain a `| Path | Action | Reason |` table with a separator row")
	}

	if len(issues) > 0 {
		if missing == nil {
			missing = []string{}
		}
		issuesMD := "- " + strings.Join(issues, "\n- ")
		return outcome{
			ok:   false,
			code: envelope.EPlanIncomplete,
			md:   "# Plan Incomplete\n\n" + issuesMD + "\n\nFix the issues and resubmit the full plan.",
			data: map[string]any{
				"approved":         false,
				"missing_sections": missing,
				"issues_md":        issuesMD,
			},
			next: envelope.ResubmitTo(envelope.ToolPlanReview),
		}
	}

	return outcome{
		ok:   true,
		code: envelope.OKPlanApproved,
		md:   "# Plan Approved\n\nAll required sections and the file impact table are present.",
		data: map[string]any{
			"approved":         true,
			"missing_sections": []string{},
			"issues_md":        "",
		},
		next: envelope.NextGoToMangekyoScaffold,
	}
}

// --- final_approval ---

type finalApprovalPayload struct {
	PlanApproved     bool `json:"plan_approved"`
	ScaffoldApproved bool `json:"scaffold_approved"`
	ImplApproved     bool `json:"impl_approved"`
	TestsApproved    bool `json:"tests_approved"`
	DocsApproved     bool `json:"docs_approved"`
	TextValidated    bool `json:"text_validated"`
	Consistent       bool `json:"consistent"`
}

const finalApprovalExample = `{
  "plan_approved": true,
  "scaffold_approved": true,
  "impl_approved": true,
  "tests_approved": true,
  "docs_approved": true,
  "text_validated": true,
  "consistent": true
}`

func decodeFinalApproval(raw json.RawMessage) (any, error) {
	var p finalApprovalPayload
	if err := decodeInto(raw, &p); err != nil {
		return nil, err
	}
	return p, nil
}

func evaluateFinalApproval(payload any, _ runInput) outcome {
	p := payload.(finalApprovalPayload)

	phases := []struct {
		name     string
		approved bool
	}{
		{"plan", p.PlanApproved},
		{"scaffold", p.ScaffoldApproved},
		{"implementation", p.ImplApproved},
		{"tests", p.TestsApproved},
		{"documentation", p.DocsApproved},
		{"text validation", p.TextValidated},
		{"consistency", p.Consistent},
	}

	var incomplete []string
	var table strings.Builder
	table.WriteString("| Phase | Verdict |\n|---|---|\n")
	for _, ph := range phases {
		verdict := "approved"
		if !ph.approved {
			verdict = "pending"
			incomplete = append(incomplete, ph.name)
		}
		fmt.Fprintf(&table, "| %s | %s |\n", ph.name, verdict)
	}
	summary := "### Phase Summary\n\n" + table.String()

	if len(incomplete) > 0 {
		return outcome{
			ok:   false,
			code: envelope.EPhasesIncomplete,
			md: "# Phases Incomplete\n\n" + summary +
				"\nComplete the pending phases before requesting final approval.",
			data: map[string]any{
				"approved":          false,
				"summary_md":        summary,
				"incomplete_phases": incomplete,
			},
			next: envelope.ResubmitTo(envelope.ToolFinalApproval),
		}
	}

	return outcome{
		ok:   true,
		code: envelope.OKAllApproved,
		md:   "# All Phases Approved\n\n" + summary,
		data: map[string]any{
			"approved":          true,
			"summary_md":        summary,
			"incomplete_phases": []string{},
		},
		next: envelope.NextReturnDeliverable,
	}
}
