package eyes

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/third-eye/overseer/pkg/envelope"
)

type sharinganPayload struct {
	Prompt string        `json:"prompt"`
	Lang   envelope.Lang `json:"lang,omitempty"`
}

const sharinganExample = `{
  "prompt": "Summarize Q3 revenue by region in a one-page brief",
  "lang": "en"
}`

func decodeSharingan(raw json.RawMessage) (any, error) {
	var p sharinganPayload
	if err := decodeInto(raw, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Prompt) == "" {
		return nil, badPayload("prompt must be a non-empty string")
	}
	if p.Lang == "" {
		p.Lang = envelope.LangAuto
	}
	if !p.Lang.IsValid() {
		return nil, badPayload("lang must be one of auto, en, ar")
	}
	return p, nil
}

// injectionPatterns short-circuit scoring entirely: a prompt that tries to
// override the instruction hierarchy is rejected before any analysis.
var injectionPatterns = []string{
	"ignore previous instructions",
	"forget the previous",
	"disregard all prior",
	"system prompt",
	"developer prompt",
	"begin_system_prompt",
	"end_system_prompt",
}

var (
	vagueWords       = map[string]bool{"some": true, "stuff": true, "things": true, "various": true}
	unspecifiedWords = map[string]bool{"asap": true, "urgent": true, "improve": true, "better": true, "nice": true, "quickly": true}
	imperativeVerbs  = map[string]bool{
		"write": true, "summarize": true, "explain": true, "create": true,
		"draft": true, "analyze": true, "plan": true, "design": true,
		"fix": true, "build": true, "generate": true, "compare": true,
		"investigate": true, "update": true, "improve": true,
	}
)

var (
	toolingKeywords = map[string]bool{
		"repo": true, "pr": true, "commit": true, "branch": true, "ci": true,
		"cd": true, "lint": true, "build": true, "pipeline": true,
	}
	artifactKeywords = map[string]bool{
		"function": true, "class": true, "module": true, "package": true,
		"api": true, "endpoint": true, "schema": true, "migration": true,
		"dockerfile": true,
	}
	techKeywords = map[string]bool{
		"react": true, "next.js": true, "nextjs": true, "vue": true, "angular": true,
		"django": true, "flask": true, "rails": true, "spring": true,
		"kubernetes": true, "docker": true, "terraform": true, "graphql": true,
		"postgres": true, "postgresql": true, "mysql": true, "sqlite": true,
		"mongodb": true, "redis": true, "kafka": true,
		"aws": true, "gcp": true, "azure": true,
		"css": true, "html": true, "sql": true,
		"javascript": true, "typescript": true, "python": true, "golang": true,
		"rust": true, "java": true,
	}
	codeExtensions = []string{
		".go", ".py", ".js", ".ts", ".tsx", ".jsx", ".java", ".rb", ".rs",
		".c", ".cpp", ".cs", ".php", ".sql", ".sh", ".yml", ".yaml",
		".json", ".toml", ".css", ".html",
	}
	strongActions = map[string]bool{
		"modify": true, "refactor": true, "fix": true, "bug": true,
		"optimize": true, "diff": true, "patch": true, "change": true,
		"tests": true, "docs": true,
	}
	weakActions = map[string]bool{"write": true, "create": true, "generate": true, "review": true}
)

// clarificationBank is emitted in order; the window cycles if a prompt ever
// needs more questions than the bank holds.
var clarificationBank = []string{
	"What is the concrete deliverable you expect (code, document, plan, analysis)?",
	"Who is the audience or consumer of the result?",
	"Which inputs, files, or data sources should be used?",
	"What constraints apply (length, format, technology, deadline)?",
	"What does a successful result look like? Give one example if possible.",
	"What should explicitly stay out of scope?",
}

const sharinganPolicy = `Prompts are scored for ambiguity before any work starts. Ambiguous prompts must be clarified with the user and rewritten through the Prompt Helper. Prompts that attempt to override system instructions are rejected outright.`

// tokenize lowercases and splits on whitespace, trimming surrounding
// punctuation so "tests." matches "tests" while "next.js" keeps its dot.
func tokenize(prompt string) []string {
	fields := strings.Fields(strings.ToLower(prompt))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `.,;:!?()[]{}"'`+"`")
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// ambiguityScore computes the deterministic score in [0,1] plus the factor
// lines used for reasoning_md.
func ambiguityScore(prompt string, tokens []string) (float64, []string) {
	var score float64
	var factors []string

	switch n := len(tokens); {
	case n < 8:
		score += 0.4
		factors = append(factors, fmt.Sprintf("very short prompt (%d tokens): +0.40", n))
	case n < 15:
		score += 0.25
		factors = append(factors, fmt.Sprintf("short prompt (%d tokens): +0.25", n))
	case n < 40:
		score += 0.1
		factors = append(factors, fmt.Sprintf("brief prompt (%d tokens): +0.10", n))
	}

	if !strings.Contains(prompt, "?") {
		score += 0.05
		factors = append(factors, "no question mark: +0.05")
	}

	for _, tok := range tokens {
		if vagueWords[tok] {
			score += 0.12
			factors = append(factors, fmt.Sprintf("vague word %q: +0.12", tok))
		}
		if unspecifiedWords[tok] {
			score += 0.10
			factors = append(factors, fmt.Sprintf("unspecified word %q: +0.10", tok))
		}
	}

	hasVerb := false
	for _, tok := range tokens {
		if imperativeVerbs[tok] || strings.HasSuffix(tok, "ing") {
			hasVerb = true
			break
		}
	}
	if !hasVerb {
		score += 0.10
		factors = append(factors, "no verb-like token: +0.10")
	}

	if score > 1 {
		score = 1
	}
	return score, factors
}

// classifyCode reports whether the prompt is code-related and which signals
// fired. Weak action words only count alongside another code signal.
func classifyCode(prompt string, tokens []string) (bool, []string) {
	lower := strings.ToLower(prompt)
	var signals []string

	for _, tok := range tokens {
		switch {
		case toolingKeywords[tok]:
			signals = append(signals, "tooling keyword: "+tok)
		case artifactKeywords[tok]:
			signals = append(signals, "artifact keyword: "+tok)
		case techKeywords[tok]:
			signals = append(signals, "technology keyword: "+tok)
		case strongActions[tok]:
			signals = append(signals, "action keyword: "+tok)
		}
	}
	for _, ext := range codeExtensions {
		if strings.Contains(lower, ext) {
			signals = append(signals, "file extension: "+ext)
			break
		}
	}
	if strings.Contains(prompt, "```") {
		signals = append(signals, "code fence present")
	}

	if len(signals) > 0 {
		for _, tok := range tokens {
			if weakActions[tok] {
				signals = append(signals, "weak action keyword: "+tok)
			}
		}
	}
	return len(signals) > 0, signals
}

func clarificationQuestions(x int) string {
	var b strings.Builder
	b.WriteString("### Clarifying Questions\n\n")
	for i := 0; i < x; i++ {
		fmt.Fprintf(&b, "%d. %s\n", i+1, clarificationBank[i%len(clarificationBank)])
	}
	return b.String()
}

func evaluateSharingan(payload any, in runInput) outcome {
	p := payload.(sharinganPayload)
	lower := strings.ToLower(p.Prompt)

	for _, pattern := range injectionPatterns {
		if strings.Contains(lower, pattern) {
			return outcome{
				ok:   false,
				code: envelope.EPromptGuard,
				md: "# Prompt Rejected\n\nThe prompt matches an instruction-override pattern (`" +
					pattern + "`). Rewrite it without directives that target the system's instructions.",
				data: map[string]any{
					"violations": []string{pattern},
					"policy_md":  sharinganPolicy,
				},
				next: envelope.NextRewriteAndResubmit,
			}
		}
	}

	tokens := tokenize(p.Prompt)
	score, factors := ambiguityScore(p.Prompt, tokens)
	threshold := in.settings.AmbiguityThreshold
	ambiguous := score >= threshold

	x := int(math.Ceil(score * 5))
	if x < 2 {
		x = 2
	}
	if x > 6 {
		x = 6
	}

	isCode, signals := classifyCode(p.Prompt, tokens)

	var reasoning strings.Builder
	fmt.Fprintf(&reasoning, "### Ambiguity Analysis\n\nScore %.2f against threshold %.2f.\n\n", score, threshold)
	if len(factors) == 0 {
		reasoning.WriteString("- no ambiguity factors detected\n")
	}
	for _, f := range factors {
		reasoning.WriteString("- " + f + "\n")
	}
	reasoning.WriteString("\n### Classification\n\n")
	if len(signals) == 0 {
		reasoning.WriteString("- no code signals; treated as a text task\n")
	}
	for _, s := range signals {
		reasoning.WriteString("- " + s + "\n")
	}

	data := map[string]any{
		"score":           score,
		"ambiguous":       ambiguous,
		"x":               x,
		"is_code_related": isCode,
		"reasoning_md":    reasoning.String(),
		"policy_md":       sharinganPolicy,
	}

	if ambiguous {
		questions := clarificationQuestions(x)
		data["questions_md"] = questions
		return outcome{
			ok:   false,
			code: envelope.ENeedsClarification,
			md: fmt.Sprintf("# Clarification Needed\n\nAmbiguity score %.2f meets the %.2f threshold. "+
				"Answer the questions below before proceeding.\n\n%s", score, threshold, questions),
			data: data,
			next: envelope.NextAskClarifications,
		}
	}

	data["questions_md"] = ""
	next := envelope.NextFollowTextBranch
	branchLabel := "text"
	if isCode {
		next = envelope.NextFollowCodeBranch
		branchLabel = "code"
	}
	return outcome{
		ok:   true,
		code: envelope.OKNoClarificationNeeded,
		md: fmt.Sprintf("# Prompt Accepted\n\nAmbiguity score %.2f is below the %.2f threshold. "+
			"The task is classified as a %s task.", score, threshold, branchLabel),
		data: data,
		next: next,
	}
}
