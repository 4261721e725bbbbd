package envelope

// StatusCode is a closed-set verdict code carried by every Eye response.
// OK_* codes mark a passed phase, E_* codes a failure class. Producing a
// code outside this set is a programming error, not a runtime condition.
type StatusCode string

const (
	OKOverseerGuide         StatusCode = "OK_OVERSEER_GUIDE"
	OKNoClarificationNeeded StatusCode = "OK_NO_CLARIFICATION_NEEDED"
	OKPromptReady           StatusCode = "OK_PROMPT_READY"
	OKIntentConfirmed       StatusCode = "OK_INTENT_CONFIRMED"
	OKSchemaEmitted         StatusCode = "OK_SCHEMA_EMITTED"
	OKPlanApproved          StatusCode = "OK_PLAN_APPROVED"
	OKScaffoldApproved      StatusCode = "OK_SCAFFOLD_APPROVED"
	OKImplApproved          StatusCode = "OK_IMPL_APPROVED"
	OKTestsApproved         StatusCode = "OK_TESTS_APPROVED"
	OKDocsApproved          StatusCode = "OK_DOCS_APPROVED"
	OKTextValidated         StatusCode = "OK_TEXT_VALIDATED"
	OKConsistent            StatusCode = "OK_CONSISTENT"
	OKAllApproved           StatusCode = "OK_ALL_APPROVED"

	ENeedsClarification    StatusCode = "E_NEEDS_CLARIFICATION"
	EIntentUnconfirmed     StatusCode = "E_INTENT_UNCONFIRMED"
	EPlanIncomplete        StatusCode = "E_PLAN_INCOMPLETE"
	EScaffoldIssues        StatusCode = "E_SCAFFOLD_ISSUES"
	EImplIssues            StatusCode = "E_IMPL_ISSUES"
	ETestsInsufficient     StatusCode = "E_TESTS_INSUFFICIENT"
	EDocsMissing           StatusCode = "E_DOCS_MISSING"
	ECitationsMissing      StatusCode = "E_CITATIONS_MISSING"
	EUnsupportedClaims     StatusCode = "E_UNSUPPORTED_CLAIMS"
	EContradictionDetected StatusCode = "E_CONTRADICTION_DETECTED"
	EReasoningMissing      StatusCode = "E_REASONING_MISSING"
	EPhasesIncomplete      StatusCode = "E_PHASES_INCOMPLETE"
	EBadPayloadSchema      StatusCode = "E_BAD_PAYLOAD_SCHEMA"
	EBudgetExceeded        StatusCode = "E_BUDGET_EXCEEDED"
	EPromptGuard           StatusCode = "E_PROMPT_GUARD"
	EInternalError         StatusCode = "E_INTERNAL_ERROR"
)

var allStatusCodes = map[StatusCode]bool{
	OKOverseerGuide:         true,
	OKNoClarificationNeeded: true,
	OKPromptReady:           true,
	OKIntentConfirmed:       true,
	OKSchemaEmitted:         true,
	OKPlanApproved:          true,
	OKScaffoldApproved:      true,
	OKImplApproved:          true,
	OKTestsApproved:         true,
	OKDocsApproved:          true,
	OKTextValidated:         true,
	OKConsistent:            true,
	OKAllApproved:           true,
	ENeedsClarification:     true,
	EIntentUnconfirmed:      true,
	EPlanIncomplete:         true,
	EScaffoldIssues:         true,
	EImplIssues:             true,
	ETestsInsufficient:      true,
	EDocsMissing:            true,
	ECitationsMissing:       true,
	EUnsupportedClaims:      true,
	EContradictionDetected:  true,
	EReasoningMissing:       true,
	EPhasesIncomplete:       true,
	EBadPayloadSchema:       true,
	EBudgetExceeded:         true,
	EPromptGuard:            true,
	EInternalError:          true,
}

// IsValid reports whether the code belongs to the closed status set.
func (c StatusCode) IsValid() bool {
	return allStatusCodes[c]
}

// IsOK reports whether the code marks a passed phase.
func (c StatusCode) IsOK() bool {
	return len(c) > 3 && c[:3] == "OK_"
}

// StatusCodes returns the full closed set. Used by invariant tests.
func StatusCodes() []StatusCode {
	codes := make([]StatusCode, 0, len(allStatusCodes))
	for c := range allStatusCodes {
		codes = append(codes, c)
	}
	return codes
}
