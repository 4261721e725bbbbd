package envelope

import "sort"

// Branch groups tools for policy allow-lists: shared tools run for every
// pipeline, code and text tools only on their respective branch.
type Branch string

const (
	BranchShared Branch = "shared"
	BranchCode   Branch = "code"
	BranchText   Branch = "text"
)

// Tool identifies one Eye validator, e.g. "sharingan/clarify".
type Tool string

const (
	ToolNavigator        Tool = "overseer/navigator"
	ToolSharingan        Tool = "sharingan/clarify"
	ToolPromptHelper     Tool = "helper/rewrite_prompt"
	ToolJogan            Tool = "jogan/confirm_intent"
	ToolPlanRequirements Tool = "rinnegan/plan_requirements"
	ToolPlanReview       Tool = "rinnegan/plan_review"
	ToolFinalApproval    Tool = "rinnegan/final_approval"
	ToolReviewScaffold   Tool = "mangekyo/review_scaffold"
	ToolReviewImpl       Tool = "mangekyo/review_impl"
	ToolReviewTests      Tool = "mangekyo/review_tests"
	ToolReviewDocs       Tool = "mangekyo/review_docs"
	ToolValidateClaims   Tool = "tenseigan/validate_claims"
	ToolConsistencyCheck Tool = "byakugan/consistency_check"
)

// EyeTag is the fixed tag carried in every response of an Eye family.
type EyeTag string

const (
	TagOverseer  EyeTag = "[EYE/OVERSEER]"
	TagSharingan EyeTag = "[EYE/SHARINGAN]"
	TagHelper    EyeTag = "[EYE/HELPER]"
	TagJogan     EyeTag = "[EYE/JOGAN]"
	TagRinnegan  EyeTag = "[EYE/RINNEGAN]"
	TagMangekyo  EyeTag = "[EYE/MANGEKYO]"
	TagTenseigan EyeTag = "[EYE/TENSEIGAN]"
	TagByakugan  EyeTag = "[EYE/BYAKUGAN]"
)

// toolInfo is the static registry entry for one tool.
type toolInfo struct {
	branch  Branch
	tag     EyeTag
	version string
}

var toolRegistry = map[Tool]toolInfo{
	ToolNavigator:        {BranchShared, TagOverseer, "overseer-navigator@1.2.0"},
	ToolSharingan:        {BranchShared, TagSharingan, "sharingan-clarify@1.4.1"},
	ToolPromptHelper:     {BranchShared, TagHelper, "helper-rewrite-prompt@1.1.0"},
	ToolJogan:            {BranchShared, TagJogan, "jogan-confirm-intent@1.0.2"},
	ToolPlanRequirements: {BranchCode, TagRinnegan, "rinnegan-plan-requirements@1.0.0"},
	ToolPlanReview:       {BranchCode, TagRinnegan, "rinnegan-plan-review@1.3.0"},
	ToolFinalApproval:    {BranchCode, TagRinnegan, "rinnegan-final-approval@1.0.1"},
	ToolReviewScaffold:   {BranchCode, TagMangekyo, "mangekyo-review-scaffold@1.2.0"},
	ToolReviewImpl:       {BranchCode, TagMangekyo, "mangekyo-review-impl@1.2.0"},
	ToolReviewTests:      {BranchCode, TagMangekyo, "mangekyo-review-tests@1.2.1"},
	ToolReviewDocs:       {BranchCode, TagMangekyo, "mangekyo-review-docs@1.2.0"},
	ToolValidateClaims:   {BranchText, TagTenseigan, "tenseigan-validate-claims@1.1.0"},
	ToolConsistencyCheck: {BranchText, TagByakugan, "byakugan-consistency-check@1.1.0"},
}

// IsValid reports whether the tool is registered.
func (t Tool) IsValid() bool {
	_, ok := toolRegistry[t]
	return ok
}

// Branch returns the tool's pipeline branch.
func (t Tool) Branch() Branch {
	return toolRegistry[t].branch
}

// Tag returns the fixed response tag for the tool's Eye family.
func (t Tool) Tag() EyeTag {
	return toolRegistry[t].tag
}

// Version returns the tool-version string ("name@semver") emitted in
// pipeline events and responses.
func (t Tool) Version() string {
	return toolRegistry[t].version
}

// Tools returns all registered tools sorted lexicographically.
func Tools() []Tool {
	tools := make([]Tool, 0, len(toolRegistry))
	for t := range toolRegistry {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i] < tools[j] })
	return tools
}

var knownTags = map[EyeTag]bool{
	TagOverseer:  true,
	TagSharingan: true,
	TagHelper:    true,
	TagJogan:     true,
	TagRinnegan:  true,
	TagMangekyo:  true,
	TagTenseigan: true,
	TagByakugan:  true,
}

// IsValid reports whether the tag belongs to a known Eye family.
func (t EyeTag) IsValid() bool {
	return knownTags[t]
}
