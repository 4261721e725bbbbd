package envelope

// Next-action directives. Every response carries exactly one of these (or a
// tool-specific resubmit line built from ResubmitTo) so host agents can
// machine-match the prescribed next move.
const (
	NextStartSharingan       = "Start with sharingan/clarify to evaluate ambiguity."
	NextAskClarifications    = "Ask these questions to the user and resubmit answers to Prompt Helper."
	NextFollowCodeBranch     = "Follow the code branch: call rinnegan/plan_requirements."
	NextFollowTextBranch     = "Follow the text branch: call tenseigan/validate_claims."
	NextSendToJogan          = "Send the optimized prompt to jogan/confirm_intent."
	NextRerunJogan           = "Add the missing sections to the refined prompt and rerun jogan/confirm_intent."
	NextCallPlanRequirements = "Draft a plan against the schema, then submit it to rinnegan/plan_review."
	NextGoToMangekyoScaffold = "Submit the file scaffold to mangekyo/review_scaffold."
	NextGoToImpl             = "Submit implementation diffs to mangekyo/review_impl."
	NextGoToTests            = "Submit test diffs and the coverage summary to mangekyo/review_tests."
	NextGoToDocs             = "Submit documentation diffs to mangekyo/review_docs."
	NextGoToFinalApproval    = "Collect all phase verdicts and call rinnegan/final_approval."
	NextGoToByakugan         = "Run byakugan/consistency_check on the validated draft."
	NextReturnDeliverable    = "All phases approved. Return the deliverable to the user."
	NextResendValidPayload   = "Re-send the request with a valid payload."
	NextRewriteAndResubmit   = "Rewrite the prompt without override directives and resubmit."
	NextRetryOrContact       = "Retry the request; contact the operator if the error persists."
	NextReduceBudget         = "Reduce the requested budget_tokens and resubmit."
)

// ResubmitTo builds the resubmit directive used by review Eyes when a stage
// is rejected.
func ResubmitTo(tool Tool) string {
	return "Address the issues and resubmit to " + string(tool) + "."
}
