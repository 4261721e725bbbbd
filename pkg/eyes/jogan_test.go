package eyes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/third-eye/overseer/pkg/envelope"
)

func TestJogan_Confirmed(t *testing.T) {
	resp := Run(envelope.ToolJogan, eyeRequest(t, validPayloads[envelope.ToolJogan], ""))

	assert.True(t, resp.OK)
	assert.Equal(t, envelope.OKIntentConfirmed, resp.Code)
	assert.Equal(t, true, resp.Data["confirmed"])
	assert.Empty(t, resp.Data["missing_sections"])
	assert.Equal(t, envelope.NextCallPlanRequirements, resp.Next)
}

func TestJogan_SectionsCaseInsensitive(t *testing.T) {
	payload := `{"refined_prompt_md": "role: x\ntask: y\ncontext: z\nrequirements: r\noutput: o",
		"estimated_tokens": 100}`
	resp := Run(envelope.ToolJogan, eyeRequest(t, payload, ""))
	assert.True(t, resp.OK)
}

func TestJogan_MissingSections(t *testing.T) {
	payload := `{"refined_prompt_md": "ROLE: x\nTASK: y\nOUTPUT: o", "estimated_tokens": 100}`
	resp := Run(envelope.ToolJogan, eyeRequest(t, payload, ""))

	assert.False(t, resp.OK)
	assert.Equal(t, envelope.EIntentUnconfirmed, resp.Code)
	missing := resp.Data["missing_sections"].([]string)
	assert.ElementsMatch(t, []string{"CONTEXT", "REQUIREMENTS"}, missing)
	assert.Equal(t, envelope.NextRerunJogan, resp.Next)
}

func TestJogan_ZeroTokenEstimate(t *testing.T) {
	payload := `{"refined_prompt_md": "ROLE: x\nTASK: y\nCONTEXT: z\nREQUIREMENTS: r\nOUTPUT: o",
		"estimated_tokens": 0}`
	resp := Run(envelope.ToolJogan, eyeRequest(t, payload, ""))

	require.False(t, resp.OK)
	assert.Equal(t, envelope.EIntentUnconfirmed, resp.Code)
	assert.Empty(t, resp.Data["missing_sections"])
}
