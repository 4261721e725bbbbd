package envelope

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCodePartition(t *testing.T) {
	for _, code := range StatusCodes() {
		assert.True(t, code.IsValid(), "code %s should be valid", code)
		if code.IsOK() {
			assert.Contains(t, string(code), "OK_")
		} else {
			assert.Equal(t, "E_", string(code)[:2])
		}
	}

	assert.False(t, StatusCode("OK_MADE_UP").IsValid())
	assert.False(t, StatusCode("").IsValid())
}

func TestToolRegistry(t *testing.T) {
	tools := Tools()
	assert.Len(t, tools, 13)

	// Sorted lexicographically for deterministic emission.
	for i := 1; i < len(tools); i++ {
		assert.Less(t, string(tools[i-1]), string(tools[i]))
	}

	branchCounts := map[Branch]int{}
	for _, tool := range tools {
		assert.True(t, tool.IsValid())
		assert.True(t, tool.Tag().IsValid())
		assert.Regexp(t, `^[a-z-]+@\d+\.\d+\.\d+$`, tool.Version())
		branchCounts[tool.Branch()]++
	}
	assert.Equal(t, 4, branchCounts[BranchShared])
	assert.Equal(t, 7, branchCounts[BranchCode])
	assert.Equal(t, 2, branchCounts[BranchText])

	assert.False(t, Tool("sharingan/unknown").IsValid())
}

func TestLangValidation(t *testing.T) {
	assert.True(t, LangAuto.IsValid())
	assert.True(t, LangEN.IsValid())
	assert.True(t, LangAR.IsValid())
	assert.False(t, Lang("fr").IsValid())
}

func TestResponseWireShape(t *testing.T) {
	resp := Response{
		Tag:  TagSharingan,
		OK:   false,
		Code: ENeedsClarification,
		MD:   "### Verdict",
		Data: map[string]any{"score": 0.6},
		Next: NextAskClarifications,
	}

	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	// Exactly the six canonical fields, no partial envelopes.
	assert.Len(t, decoded, 6)
	for _, field := range []string{"tag", "ok", "code", "md", "data", "next"} {
		assert.Contains(t, decoded, field)
	}
}

func TestDataKeyRegistry(t *testing.T) {
	assert.True(t, DataKeyAllowed(ToolSharingan, "score"))
	assert.True(t, DataKeyAllowed(ToolSharingan, "questions_md"))
	assert.False(t, DataKeyAllowed(ToolSharingan, "prompt_md"))

	// Harness failure keys are allowed for every tool.
	for _, tool := range Tools() {
		assert.True(t, DataKeyAllowed(tool, "expected_schema_md"))
	}
}

func TestRequestDecoding(t *testing.T) {
	body := `{
		"context": {"session_id": "s-1", "lang": "en", "budget_tokens": 4000},
		"payload": {"prompt": "Fix the bug"},
		"reasoning_md": "### Reasoning"
	}`

	var req Request
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	assert.Equal(t, "s-1", req.Context.SessionID)
	assert.Equal(t, LangEN, req.Context.Lang)
	assert.Equal(t, 4000, req.Context.BudgetTokens)
	assert.JSONEq(t, `{"prompt": "Fix the bug"}`, string(req.Payload))
	assert.Equal(t, "### Reasoning", req.ReasoningMD)
}
