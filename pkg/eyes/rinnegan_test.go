package eyes

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/third-eye/overseer/pkg/envelope"
	"github.com/third-eye/overseer/pkg/settings"
)

const fullPlanMD = "## High-Level Overview\nAdd retries.\n" +
	"## File Impact Table\n| Path | Action | Reason |\n|---|---|---|\n| a.go | modify | retries |\n" +
	"## Step-by-step Implementation Plan\n1. Do it.\n" +
	"## Error Handling & Edge Cases\nSurface the last error.\n" +
	"## Test Strategy\nUnit tests.\n" +
	"## Rollback Plan\nRevert.\n" +
	"## Documentation Updates\nREADME.\n"

func planReviewRequest(t *testing.T, planMD string) *envelope.Request {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"submitted_plan_md": planMD})
	require.NoError(t, err)
	return eyeRequest(t, string(payload), "### Reasoning\nPlan covers all sections.")
}

func TestPlanRequirements_EmitsSchema(t *testing.T) {
	resp := Run(envelope.ToolPlanRequirements, eyeRequest(t, `{}`, ""))

	assert.True(t, resp.OK)
	assert.Equal(t, envelope.OKSchemaEmitted, resp.Code)
	schema := resp.Data["schema_md"].(string)
	for _, section := range planSections {
		assert.Contains(t, schema, section)
	}
	assert.Contains(t, resp.Data["example_md"], "| Path | Action | Reason |")
	assert.NotEmpty(t, resp.Data["acceptance_criteria_md"])
}

func TestPlanReview_Approval(t *testing.T) {
	resp := Run(envelope.ToolPlanReview, planReviewRequest(t, fullPlanMD))

	assert.True(t, resp.OK)
	assert.Equal(t, envelope.OKPlanApproved, resp.Code)
	assert.Equal(t, true, resp.Data["approved"])
	assert.Equal(t, envelope.NextGoToMangekyoScaffold, resp.Next)
}

func TestPlanReview_WhitespaceTolerantTable(t *testing.T) {
	// Extra padding inside the table header must not break detection.
	plan := strings.Replace(fullPlanMD,
		"| Path | Action | Reason |\n|---|---|---|",
		"|  Path |  Action  | Reason   |\n| --- | --- | --- |", 1)
	resp := Run(envelope.ToolPlanReview, planReviewRequest(t, plan))
	assert.True(t, resp.OK)
}

func TestPlanReview_MissingSections(t *testing.T) {
	plan := "## High-Level Overview\nx\n## Test Strategy\nx\n"
	resp := Run(envelope.ToolPlanReview, planReviewRequest(t, plan))

	assert.False(t, resp.OK)
	assert.Equal(t, envelope.EPlanIncomplete, resp.Code)
	missing := resp.Data["missing_sections"].([]string)
	assert.Contains(t, missing, "File Impact Table")
	assert.Contains(t, missing, "Rollback Plan")
	assert.NotContains(t, missing, "Test Strategy")
	assert.Equal(t, envelope.ResubmitTo(envelope.ToolPlanReview), resp.Next)
}

func TestPlanReview_RollbackOptional(t *testing.T) {
	plan := "## High-Level Overview\nx\n" +
		"## File Impact Table\n| Path | Action | Reason |\n|---|---|---|\n| a.go | modify | x |\n" +
		"## Step-by-step Implementation Plan\nx\n" +
		"## Error Handling & Edge Cases\nx\n" +
		"## Test Strategy\nx\n" +
		"## Documentation Updates\nx\n"

	// Required by default.
	resp := Run(envelope.ToolPlanReview, planReviewRequest(t, plan))
	require.False(t, resp.OK)
	assert.Contains(t, resp.Data["missing_sections"], "Rollback Plan")

	// Optional when the session disables require_rollback.
	req := planReviewRequest(t, plan)
	req.Context.Settings[settings.KeyRequireRollback] = false
	resp = Run(envelope.ToolPlanReview, req)
	assert.True(t, resp.OK)
	assert.Equal(t, envelope.OKPlanApproved, resp.Code)
}

func TestPlanReview_TableWithoutSeparator(t *testing.T) {
	plan := "## High-Level Overview\nx\n" +
		"## File Impact Table\n| Path | Action | Reason |\n| a.go | modify | x |\n" +
		"## Step-by-step Implementation Plan\nx\n" +
		"## Error Handling & Edge Cases\nx\n" +
		"## Test Strategy\nx\n" +
		"## Rollback Plan\nx\n" +
		"## Documentation Updates\nx\n"
	resp := Run(envelope.ToolPlanReview, planReviewRequest(t, plan))

	assert.False(t, resp.OK)
	assert.Contains(t, resp.Data["issues_md"], "separator row")
}

func TestFinalApproval_AllPhases(t *testing.T) {
	resp := Run(envelope.ToolFinalApproval, eyeRequest(t, validPayloads[envelope.ToolFinalApproval], ""))

	assert.True(t, resp.OK)
	assert.Equal(t, envelope.OKAllApproved, resp.Code)
	assert.Equal(t, envelope.NextReturnDeliverable, resp.Next)
	assert.Empty(t, resp.Data["incomplete_phases"])
	assert.Contains(t, resp.Data["summary_md"], "| Phase | Verdict |")
}

func TestFinalApproval_PendingPhases(t *testing.T) {
	payload := `{"plan_approved": true, "scaffold_approved": true, "impl_approved": false,
		"tests_approved": true, "docs_approved": false, "text_validated": true, "consistent": true}`
	resp := Run(envelope.ToolFinalApproval, eyeRequest(t, payload, ""))

	assert.False(t, resp.OK)
	assert.Equal(t, envelope.EPhasesIncomplete, resp.Code)
	incomplete := resp.Data["incomplete_phases"].([]string)
	assert.Equal(t, []string{"implementation", "documentation"}, incomplete)
}

func TestFinalApproval_OmittedFieldsArePending(t *testing.T) {
	resp := Run(envelope.ToolFinalApproval, eyeRequest(t, `{"plan_approved": true}`, ""))

	assert.False(t, resp.OK)
	assert.Equal(t, envelope.EPhasesIncomplete, resp.Code)
	assert.Len(t, resp.Data["incomplete_phases"], 6)
}
