package eyes

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/third-eye/overseer/pkg/envelope"
	"github.com/third-eye/overseer/pkg/settings"
)

const testReasoning = "### Reasoning\nReviewed the submission against the checklist."

func TestReviewScaffold_Approval(t *testing.T) {
	payload := `{"files": [
		{"path": "worker/export.go", "intent": "modify", "reason": "add retries"},
		{"path": "worker/export_test.go", "intent": "create", "reason": "cover retries"}
	]}`
	resp := Run(envelope.ToolReviewScaffold, eyeRequest(t, payload, testReasoning))

	assert.True(t, resp.OK)
	assert.Equal(t, envelope.OKScaffoldApproved, resp.Code)
	checklist := resp.Data["checklist_md"].(string)
	assert.Contains(t, checklist, "worker/export.go")
	assert.Contains(t, checklist, "[create]")
	assert.Equal(t, envelope.NextGoToImpl, resp.Next)
}

func TestReviewScaffold_DuplicatePaths(t *testing.T) {
	payload := `{"files": [
		{"path": "a.go", "intent": "create", "reason": "x"},
		{"path": "a.go", "intent": "modify", "reason": "y"}
	]}`
	resp := Run(envelope.ToolReviewScaffold, eyeRequest(t, payload, testReasoning))

	assert.False(t, resp.OK)
	assert.Equal(t, envelope.EScaffoldIssues, resp.Code)
	assert.Contains(t, resp.Data["issues_md"], "duplicate path: a.go")
	assert.Equal(t, envelope.ResubmitTo(envelope.ToolReviewScaffold), resp.Next)
}

func TestReviewImpl_RequiresDiffFence(t *testing.T) {
	resp := Run(envelope.ToolReviewImpl,
		eyeRequest(t, `{"diffs_md": "just prose, no diff fence"}`, testReasoning))
	assert.False(t, resp.OK)
	assert.Equal(t, envelope.EImplIssues, resp.Code)

	resp = Run(envelope.ToolReviewImpl,
		eyeRequest(t, "{\"diffs_md\": \"```diff\\n+added line\\n```\"}", testReasoning))
	assert.True(t, resp.OK)
	assert.Equal(t, envelope.OKImplApproved, resp.Code)
	assert.Equal(t, envelope.NextGoToTests, resp.Next)
}

func TestReviewTests_StrictnessThresholds(t *testing.T) {
	payload := `{"diffs_md": "x", "coverage_summary_md": "lines: 78%\nbranches: 68%"}`

	// 78/68 fails under strict (85/75).
	req := eyeRequest(t, payload, testReasoning)
	req.Context.Settings[settings.KeyMangekyo] = string(settings.StrictnessStrict)
	resp := Run(envelope.ToolReviewTests, req)
	assert.False(t, resp.OK)
	assert.Equal(t, envelope.ETestsInsufficient, resp.Code)

	// The same coverage passes under normal (75/60).
	resp = Run(envelope.ToolReviewTests, eyeRequest(t, payload, testReasoning))
	assert.True(t, resp.OK)
	assert.Equal(t, envelope.OKTestsApproved, resp.Code)
	assert.Equal(t, envelope.NextGoToDocs, resp.Next)
}

func TestReviewTests_LenientThresholds(t *testing.T) {
	payload := `{"diffs_md": "x", "coverage_summary_md": "lines: 71%\nbranches: 56%"}`

	req := eyeRequest(t, payload, testReasoning)
	req.Context.Settings[settings.KeyMangekyo] = string(settings.StrictnessLenient)
	resp := Run(envelope.ToolReviewTests, req)
	require.True(t, resp.OK)

	// Fails under normal.
	resp = Run(envelope.ToolReviewTests, eyeRequest(t, payload, testReasoning))
	assert.False(t, resp.OK)
}

func TestReviewTests_MissingCoverageFigures(t *testing.T) {
	payload := `{"diffs_md": "x", "coverage_summary_md": "all green, trust me"}`
	resp := Run(envelope.ToolReviewTests, eyeRequest(t, payload, testReasoning))

	assert.False(t, resp.OK)
	assert.Equal(t, envelope.ETestsInsufficient, resp.Code)
	assert.Contains(t, resp.Data["issues_md"], "lines:")
	assert.Contains(t, resp.Data["issues_md"], "branches:")
}

func TestReviewTests_ReportsThresholds(t *testing.T) {
	payload := `{"diffs_md": "x", "coverage_summary_md": "lines: 90%\nbranches: 80%"}`
	resp := Run(envelope.ToolReviewTests, eyeRequest(t, payload, testReasoning))

	require.True(t, resp.OK)
	assert.Equal(t, 90.0, resp.Data["lines_pct"])
	assert.Equal(t, 80.0, resp.Data["branches_pct"])
	th := resp.Data["thresholds"].(map[string]any)
	assert.Equal(t, 75.0, th["lines"])
	assert.Equal(t, 60.0, th["branches"])
}

func TestReviewDocs_Markers(t *testing.T) {
	tests := []struct {
		name    string
		diffsMD string
		wantOK  bool
	}{
		{"readme", "--- a/README.md\n+++ b/README.md", true},
		{"docs dir", "--- a/docs/usage.md", true},
		{"doc dir", "--- a/doc/guide.md", true},
		{"documentation word", "updated the documentation for the retry flag", true},
		{"code only", "--- a/worker/export.go", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := fmt.Sprintf(`{"diffs_md": %q}`, tt.diffsMD)
			resp := Run(envelope.ToolReviewDocs, eyeRequest(t, payload, testReasoning))
			assert.Equal(t, tt.wantOK, resp.OK)
			if tt.wantOK {
				assert.Equal(t, envelope.OKDocsApproved, resp.Code)
				assert.Equal(t, envelope.NextGoToFinalApproval, resp.Next)
			} else {
				assert.Equal(t, envelope.EDocsMissing, resp.Code)
			}
		})
	}
}
