package eyes

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/third-eye/overseer/pkg/envelope"
)

type byakuganPayload struct {
	DraftMD string `json:"draft_md"`
}

const byakuganExample = `{
  "draft_md": "Revenue grew 12% in Q3, driven by the EMEA region."
}`

func decodeByakugan(raw json.RawMessage) (any, error) {
	var p byakuganPayload
	if err := decodeInto(raw, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.DraftMD) == "" {
		return nil, badPayload("draft_md must be a non-empty string")
	}
	return p, nil
}

var unfinishedMarkerRe = regexp.MustCompile(`(?i)\b(TODO|TBD|FIXME)\b`)

// contradictionPairs are regex pairs that cannot both hold in a consistent
// draft. Each matched pair costs 0.3.
var contradictionPairs = []struct {
	name  string
	left  *regexp.Regexp
	right *regexp.Regexp
}{
	{
		name:  "claims no change while also reporting movement",
		left:  regexp.MustCompile(`(?i)\bno change\b`),
		right: regexp.MustCompile(`(?i)\b(grew|increased|declined|decreased)\b`),
	},
	{
		name:  `asserts "never" while also citing prior occurrence`,
		left:  regexp.MustCompile(`(?i)\bnever\b`),
		right: regexp.MustCompile(`(?i)\bpreviously\b`),
	},
}

var (
	noChangeRe = regexp.MustCompile(`(?i)\bno change\b`)
	movementRe = regexp.MustCompile(`(?i)\b(grew|increased|declined|decreased|growth|decline)\b`)
)

func evaluateByakugan(payload any, in runInput) outcome {
	p := payload.(byakuganPayload)

	score := 1.0
	var issues []string

	if unfinishedMarkerRe.MatchString(p.DraftMD) {
		score -= 0.4
		issues = append(issues, "unfinished-work markers (TODO/TBD/FIXME) present")
	}
	for _, pair := range contradictionPairs {
		if pair.left.MatchString(p.DraftMD) && pair.right.MatchString(p.DraftMD) {
			score -= 0.3
			issues = append(issues, "contradiction: "+pair.name)
		}
	}
	if noChangeRe.MatchString(p.DraftMD) && movementRe.MatchString(p.DraftMD) {
		score -= 0.2
		issues = append(issues, "draft asserts both stability and movement of the same metric")
	}
	if score < 0 {
		score = 0
	}

	tolerance := in.settings.ConsistencyTolerance
	data := map[string]any{
		"consistent":        score >= tolerance,
		"consistency_score": score,
	}

	if score < tolerance {
		issuesMD := "- " + strings.Join(issues, "\n- ")
		data["issues_md"] = issuesMD
		return outcome{
			ok:   false,
			code: envelope.EContradictionDetected,
			md: fmt.Sprintf("# Inconsistencies Detected\n\nConsistency score %.2f is below the %.2f tolerance.\n\n%s",
				score, tolerance, issuesMD),
			data: data,
			next: envelope.ResubmitTo(envelope.ToolConsistencyCheck),
		}
	}

	data["issues_md"] = ""
	return outcome{
		ok:   true,
		code: envelope.OKConsistent,
		md:   fmt.Sprintf("# Draft Consistent\n\nConsistency score %.2f meets the %.2f tolerance.", score, tolerance),
		data: data,
		next: envelope.NextGoToFinalApproval,
	}
}
