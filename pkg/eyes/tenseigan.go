package eyes

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/third-eye/overseer/pkg/envelope"
)

type citation struct {
	Claim      string   `json:"claim,omitempty"`
	Source     string   `json:"source"`
	Confidence *float64 `json:"confidence,omitempty"`
}

type tenseiganPayload struct {
	DraftMD   string     `json:"draft_md"`
	Citations []citation `json:"citations,omitempty"`
}

const tenseiganExample = `{
  "draft_md": "Revenue grew 12% in Q3.\n\n### Citations\n| Claim | Source |\n|---|---|\n| Revenue grew 12% | finance/q3-report.pdf |",
  "citations": [
    {"claim": "Revenue grew 12%", "source": "finance/q3-report.pdf", "confidence": 0.95}
  ]
}`

func decodeTenseigan(raw json.RawMessage) (any, error) {
	var p tenseiganPayload
	if err := decodeInto(raw, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.DraftMD) == "" {
		return nil, badPayload("draft_md must be a non-empty string")
	}
	return p, nil
}

// hasCitationsSection looks for a "### Citations" heading followed by at
// least one table row before the next heading.
func hasCitationsSection(draftMD string) bool {
	lines := strings.Split(draftMD, "\n")
	inSection := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.EqualFold(trimmed, "### Citations") {
			inSection = true
			continue
		}
		if inSection {
			if strings.HasPrefix(trimmed, "#") {
				return false
			}
			if strings.HasPrefix(trimmed, "|") {
				return true
			}
		}
	}
	return false
}

// confidenceOf treats an absent confidence as 0.0, so uncited assertions
// always register as weak.
func confidenceOf(c citation) float64 {
	if c.Confidence == nil {
		return 0.0
	}
	return *c.Confidence
}

func evaluateTenseigan(payload any, in runInput) outcome {
	p := payload.(tenseiganPayload)

	if !hasCitationsSection(p.DraftMD) {
		issuesMD := "- the draft has no `### Citations` section with a citation table"
		return outcome{
			ok:   false,
			code: envelope.ECitationsMissing,
			md: "# Citations Missing\n\n" + issuesMD +
				"\n\nAdd a `### Citations` section tabulating every factual claim and its source.",
			data: map[string]any{
				"validated":      false,
				"weak_citations": []string{},
				"issues_md":      issuesMD,
			},
			next: envelope.ResubmitTo(envelope.ToolValidateClaims),
		}
	}

	cutoff := in.settings.CitationCutoff
	var weak []string
	var issues []string
	for i, c := range p.Citations {
		label := c.Claim
		if label == "" {
			label = fmt.Sprintf("citation %d", i+1)
		}
		if strings.TrimSpace(c.Source) == "" {
			weak = append(weak, label)
			issues = append(issues, fmt.Sprintf("%s: source is empty", label))
			continue
		}
		if conf := confidenceOf(c); conf < cutoff {
			weak = append(weak, label)
			issues = append(issues, fmt.Sprintf("%s: confidence %.2f is below the %.2f cutoff", label, conf, cutoff))
		}
	}

	if len(weak) > 0 {
		issuesMD := "- " + strings.Join(issues, "\n- ")
		return outcome{
			ok:   false,
			code: envelope.ECitationsMissing,
			md: "# Weak Citations\n\n" + issuesMD +
				"\n\nStrengthen or remove the weak claims, then resubmit the draft.",
			data: map[string]any{
				"validated":      false,
				"weak_citations": weak,
				"issues_md":      issuesMD,
			},
			next: envelope.ResubmitTo(envelope.ToolValidateClaims),
		}
	}

	return outcome{
		ok:   true,
		code: envelope.OKTextValidated,
		md:   "# Claims Validated\n\nEvery claim carries a sourced citation at or above the confidence cutoff.",
		data: map[string]any{
			"validated":      true,
			"weak_citations": []string{},
			"issues_md":      "",
		},
		next: envelope.NextGoToByakugan,
	}
}
