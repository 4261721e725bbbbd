package eyes

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/third-eye/overseer/pkg/envelope"
	"github.com/third-eye/overseer/pkg/settings"
)

// --- review_scaffold ---

type scaffoldFile struct {
	Path   string `json:"path"`
	Intent string `json:"intent"`
	Reason string `json:"reason"`
}

type scaffoldPayload struct {
	Files []scaffoldFile `json:"files"`
}

const scaffoldExample = `{
  "files": [
    {"path": "worker/export.go", "intent": "modify", "reason": "add retry loop"},
    {"path": "worker/export_test.go", "intent": "create", "reason": "cover retries"}
  ]
}`

var scaffoldIntents = map[string]bool{"create": true, "modify": true, "delete": true}

func decodeScaffold(raw json.RawMessage) (any, error) {
	var p scaffoldPayload
	if err := decodeInto(raw, &p); err != nil {
		return nil, err
	}
	if len(p.Files) == 0 {
		return nil, badPayload("files must be a non-empty list")
	}
	for i, f := range p.Files {
		if strings.TrimSpace(f.Path) == "" {
			return nil, badPayload("files[%d].path must be a non-empty string", i)
		}
		if !scaffoldIntents[f.Intent] {
			return nil, badPayload("files[%d].intent must be one of create, modify, delete", i)
		}
	}
	return p, nil
}

func evaluateScaffold(payload any, _ runInput) outcome {
	p := payload.(scaffoldPayload)

	seen := map[string]bool{}
	var dups []string
	for _, f := range p.Files {
		if seen[f.Path] {
			dups = append(dups, f.Path)
		}
		seen[f.Path] = true
	}

	var checklist strings.Builder
	checklist.WriteString("### Scaffold Checklist\n\n")
	for _, f := range p.Files {
		fmt.Fprintf(&checklist, "- [%s] `%s` — %s\n", f.Intent, f.Path, f.Reason)
	}

	if len(dups) > 0 {
		issuesMD := "- duplicate path: " + strings.Join(dups, "\n- duplicate path: ")
		return outcome{
			ok:   false,
			code: envelope.EScaffoldIssues,
			md:   "# Scaffold Rejected\n\n" + issuesMD + "\n\nEach path may appear once in the scaffold.",
			data: map[string]any{
				"approved":     false,
				"checklist_md": checklist.String(),
				"issues_md":    issuesMD,
			},
			next: envelope.ResubmitTo(envelope.ToolReviewScaffold),
		}
	}

	return outcome{
		ok:   true,
		code: envelope.OKScaffoldApproved,
		md:   "# Scaffold Approved\n\n" + checklist.String(),
		data: map[string]any{
			"approved":     true,
			"checklist_md": checklist.String(),
			"issues_md":    "",
		},
		next: envelope.NextGoToImpl,
	}
}

// --- review_impl ---

type implPayload struct {
	DiffsMD string `json:"diffs_md"`
}

const implExample = `{
  "diffs_md": "` + "```diff\\n--- a/worker/export.go\\n+++ b/worker/export.go\\n...\\n```" + `"
}`

func decodeImpl(raw json.RawMessage) (any, error) {
	var p implPayload
	if err := decodeInto(raw, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.DiffsMD) == "" {
		return nil, badPayload("diffs_md must be a non-empty string")
	}
	return p, nil
}

func evaluateImpl(payload any, _ runInput) outcome {
	p := payload.(implPayload)

	if !strings.Contains(p.DiffsMD, "```diff") {
		issuesMD := "- diffs_md must contain at least one ```diff fenced block"
		return outcome{
			ok:   false,
			code: envelope.EImplIssues,
			md:   "# Implementation Rejected\n\n" + issuesMD,
			data: map[string]any{"approved": false, "issues_md": issuesMD},
			next: envelope.ResubmitTo(envelope.ToolReviewImpl),
		}
	}

	return outcome{
		ok:   true,
		code: envelope.OKImplApproved,
		md:   "# Implementation Approved\n\nThe submitted diffs are well-formed.",
		data: map[string]any{"approved": true, "issues_md": ""},
		next: envelope.NextGoToTests,
	}
}

// --- review_tests ---

type testsPayload struct {
	DiffsMD           string `json:"diffs_md"`
	CoverageSummaryMD string `json:"coverage_summary_md"`
}

const testsExample = `{
  "diffs_md": "` + "```diff\\n...\\n```" + `",
  "coverage_summary_md": "lines: 82%\nbranches: 71%"
}`

func decodeTests(raw json.RawMessage) (any, error) {
	var p testsPayload
	if err := decodeInto(raw, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.CoverageSummaryMD) == "" {
		return nil, badPayload("coverage_summary_md must be a non-empty string")
	}
	return p, nil
}

// coverageThresholds maps strictness to minimum line/branch coverage.
type coverageThresholds struct {
	Lines    float64 `json:"lines"`
	Branches float64 `json:"branches"`
}

func thresholdsFor(s settings.Strictness) coverageThresholds {
	switch s {
	case settings.StrictnessLenient:
		return coverageThresholds{Lines: 70, Branches: 55}
	case settings.StrictnessStrict:
		return coverageThresholds{Lines: 85, Branches: 75}
	default:
		return coverageThresholds{Lines: 75, Branches: 60}
	}
}

var (
	linesRe    = regexp.MustCompile(`(?i)lines:\s*(\d+(?:\.\d+)?)%`)
	branchesRe = regexp.MustCompile(`(?i)branches:\s*(\d+(?:\.\d+)?)%`)
)

func parseCoverage(re *regexp.Regexp, summary string) (float64, bool) {
	m := re.FindStringSubmatch(summary)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func evaluateTests(payload any, in runInput) outcome {
	p := payload.(testsPayload)
	th := thresholdsFor(in.settings.Mangekyo)

	lines, linesOK := parseCoverage(linesRe, p.CoverageSummaryMD)
	branches, branchesOK := parseCoverage(branchesRe, p.CoverageSummaryMD)

	var issues []string
	if !linesOK {
		issues = append(issues, "coverage summary missing a `lines: N%` figure")
	} else if lines < th.Lines {
		issues = append(issues, fmt.Sprintf("line coverage %.0f%% is below the %.0f%% threshold", lines, th.Lines))
	}
	if !branchesOK {
		issues = append(issues, "coverage summary missing a `branches: N%` figure")
	} else if branches < th.Branches {
		issues = append(issues, fmt.Sprintf("branch coverage %.0f%% is below the %.0f%% threshold", branches, th.Branches))
	}

	data := map[string]any{
		"lines_pct":    lines,
		"branches_pct": branches,
		"thresholds":   map[string]any{"lines": th.Lines, "branches": th.Branches},
	}

	if len(issues) > 0 {
		issuesMD := "- " + strings.Join(issues, "\n- ")
		data["approved"] = false
		data["issues_md"] = issuesMD
		return outcome{
			ok:   false,
			code: envelope.ETestsInsufficient,
			md: fmt.Sprintf("# Tests Insufficient\n\nStrictness `%s` requires lines >= %.0f%% and branches >= %.0f%%.\n\n%s",
				in.settings.Mangekyo, th.Lines, th.Branches, issuesMD),
			data: data,
			next: envelope.ResubmitTo(envelope.ToolReviewTests),
		}
	}

	data["approved"] = true
	data["issues_md"] = ""
	return outcome{
		ok:   true,
		code: envelope.OKTestsApproved,
		md: fmt.Sprintf("# Tests Approved\n\nCoverage lines %.0f%% / branches %.0f%% meets the `%s` thresholds.",
			lines, branches, in.settings.Mangekyo),
		data: data,
		next: envelope.NextGoToDocs,
	}
}

// --- review_docs ---

type docsPayload struct {
	DiffsMD string `json:"diffs_md"`
}

const docsExample = `{
  "diffs_md": "` + "```diff\\n--- a/README.md\\n+++ b/README.md\\n...\\n```" + `"
}`

func decodeDocs(raw json.RawMessage) (any, error) {
	var p docsPayload
	if err := decodeInto(raw, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.DiffsMD) == "" {
		return nil, badPayload("diffs_md must be a non-empty string")
	}
	return p, nil
}

var docsMarkers = []string{"readme", "docs/", "doc/", "documentation"}

func evaluateDocs(payload any, _ runInput) outcome {
	p := payload.(docsPayload)
	lower := strings.ToLower(p.DiffsMD)

	touched := false
	for _, marker := range docsMarkers {
		if strings.Contains(lower, marker) {
			touched = true
			break
		}
	}

	if !touched {
		issuesMD := "- the diff does not touch README, docs/, doc/ or any documentation file"
		return outcome{
			ok:   false,
			code: envelope.EDocsMissing,
			md:   "# Documentation Missing\n\n" + issuesMD,
			data: map[string]any{"approved": false, "issues_md": issuesMD},
			next: envelope.ResubmitTo(envelope.ToolReviewDocs),
		}
	}

	return outcome{
		ok:   true,
		code: envelope.OKDocsApproved,
		md:   "# Documentation Approved\n\nDocumentation changes are present.",
		data: map[string]any{"approved": true, "issues_md": ""},
		next: envelope.NextGoToFinalApproval,
	}
}
