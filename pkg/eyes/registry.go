package eyes

import "github.com/third-eye/overseer/pkg/envelope"

// registry binds every tool to its runner. Review Eyes (plan review, the
// four Mangekyō phases, Tenseigan, Byakugan) require reasoning_md.
var registry = map[envelope.Tool]runner{
	envelope.ToolNavigator: {
		tool:        envelope.ToolNavigator,
		exampleJSON: navigatorExample,
		decode:      decodeNavigator,
		evaluate:    evaluateNavigator,
	},
	envelope.ToolSharingan: {
		tool:        envelope.ToolSharingan,
		exampleJSON: sharinganExample,
		decode:      decodeSharingan,
		evaluate:    evaluateSharingan,
	},
	envelope.ToolPromptHelper: {
		tool:        envelope.ToolPromptHelper,
		exampleJSON: helperExample,
		decode:      decodeHelper,
		evaluate:    evaluateHelper,
	},
	envelope.ToolJogan: {
		tool:        envelope.ToolJogan,
		exampleJSON: joganExample,
		decode:      decodeJogan,
		evaluate:    evaluateJogan,
	},
	envelope.ToolPlanRequirements: {
		tool:        envelope.ToolPlanRequirements,
		exampleJSON: planRequirementsExample,
		decode:      decodePlanRequirements,
		evaluate:    evaluatePlanRequirements,
	},
	envelope.ToolPlanReview: {
		tool:           envelope.ToolPlanReview,
		needsReasoning: true,
		exampleJSON:    planReviewExample,
		decode:         decodePlanReview,
		evaluate:       evaluatePlanReview,
	},
	envelope.ToolFinalApproval: {
		tool:        envelope.ToolFinalApproval,
		exampleJSON: finalApprovalExample,
		decode:      decodeFinalApproval,
		evaluate:    evaluateFinalApproval,
	},
	envelope.ToolReviewScaffold: {
		tool:           envelope.ToolReviewScaffold,
		needsReasoning: true,
		exampleJSON:    scaffoldExample,
		decode:         decodeScaffold,
		evaluate:       evaluateScaffold,
	},
	envelope.ToolReviewImpl: {
		tool:           envelope.ToolReviewImpl,
		needsReasoning: true,
		exampleJSON:    implExample,
		decode:         decodeImpl,
		evaluate:       evaluateImpl,
	},
	envelope.ToolReviewTests: {
		tool:           envelope.ToolReviewTests,
		needsReasoning: true,
		exampleJSON:    testsExample,
		decode:         decodeTests,
		evaluate:       evaluateTests,
	},
	envelope.ToolReviewDocs: {
		tool:           envelope.ToolReviewDocs,
		needsReasoning: true,
		exampleJSON:    docsExample,
		decode:         decodeDocs,
		evaluate:       evaluateDocs,
	},
	envelope.ToolValidateClaims: {
		tool:           envelope.ToolValidateClaims,
		needsReasoning: true,
		exampleJSON:    tenseiganExample,
		decode:         decodeTenseigan,
		evaluate:       evaluateTenseigan,
	},
	envelope.ToolConsistencyCheck: {
		tool:           envelope.ToolConsistencyCheck,
		needsReasoning: true,
		exampleJSON:    byakuganExample,
		decode:         decodeByakugan,
		evaluate:       evaluateByakugan,
	},
}
