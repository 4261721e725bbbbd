package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/third-eye/overseer/pkg/envelope"
	"github.com/third-eye/overseer/pkg/policy"
	"github.com/third-eye/overseer/pkg/settings"
	"github.com/third-eye/overseer/pkg/store"
)

func eyeBody(sessionID string, payload string, reasoning string) envelope.Request {
	req := envelope.Request{
		Context: envelope.RequestContext{
			SessionID:    sessionID,
			BudgetTokens: 1000,
		},
		ReasoningMD: reasoning,
	}
	if payload != "" {
		req.Payload = json.RawMessage(payload)
	}
	return req
}

func invokeEye(t *testing.T, s *Server, apiKey string, tool envelope.Tool, body envelope.Request) (int, map[string]any) {
	t.Helper()
	return doJSON(t, s, http.MethodPost, "/eyes/"+string(tool), apiKey, body)
}

func TestEye_PipelineWalkthrough(t *testing.T) {
	s, st := newTestServer(t)
	seedKey(t, st, "sk-test", store.RoleConsumer, "")
	id := createSession(t, s, "sk-test", CreateSessionRequest{})

	code, body := invokeEye(t, s, "sk-test", envelope.ToolNavigator, eyeBody(id, "", ""))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "OK_OVERSEER_GUIDE", body["code"])
	assert.Equal(t, "[EYE/OVERSEER]", body["tag"])

	code, body = invokeEye(t, s, "sk-test", envelope.ToolSharingan, eyeBody(id,
		`{"prompt": "Write a Python function that parses ISO-8601 timestamps and returns UTC datetimes"}`, ""))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "OK_NO_CLARIFICATION_NEEDED", body["code"])

	code, body = invokeEye(t, s, "sk-test", envelope.ToolPromptHelper, eyeBody(id,
		`{"user_prompt": "Write a Python function that parses ISO-8601 timestamps and returns UTC datetimes"}`, ""))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK_PROMPT_READY", body["code"])

	prompt := body["data"].(map[string]any)["prompt_md"].(string)
	jogan, err := json.Marshal(map[string]any{
		"refined_prompt_md": prompt,
		"estimated_tokens":  900,
	})
	require.NoError(t, err)
	code, body = invokeEye(t, s, "sk-test", envelope.ToolJogan, eyeBody(id, string(jogan), ""))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK_INTENT_CONFIRMED", body["code"])

	code, body = invokeEye(t, s, "sk-test", envelope.ToolPlanRequirements, eyeBody(id, "", ""))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK_SCHEMA_EMITTED", body["code"])

	// Every call journaled one eye_update in order.
	entries, err := st.ListEvents(context.Background(), id, store.EventFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 5)
	assert.Equal(t, "overseer/navigator", entries[0].Eye)
	assert.Equal(t, "overseer-navigator@1.2.0", entries[0].ToolVersion)
	require.NotNil(t, entries[0].OK)
	assert.True(t, *entries[0].OK)
	assert.Equal(t, "sharingan/clarify", entries[1].Eye)
}

func TestEye_OutOfOrder(t *testing.T) {
	s, st := newTestServer(t)
	seedKey(t, st, "sk-test", store.RoleConsumer, "")
	id := createSession(t, s, "sk-test", CreateSessionRequest{})

	code, body := invokeEye(t, s, "sk-test", envelope.ToolJogan, eyeBody(id,
		`{"refined_prompt_md": "ROLE: x", "estimated_tokens": 10}`, ""))
	require.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "Tool call out of pipeline order", body["message"])
	assert.Equal(t, []any{"overseer/navigator"}, body["expected_next"])

	// The rejected call journaled nothing.
	entries, err := st.ListEvents(context.Background(), id, store.EventFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEye_DomainFailureIsHTTP200(t *testing.T) {
	s, st := newTestServer(t)
	seedKey(t, st, "sk-test", store.RoleConsumer, "")
	id := createSession(t, s, "sk-test", CreateSessionRequest{})

	code, _ := invokeEye(t, s, "sk-test", envelope.ToolNavigator, eyeBody(id, "", ""))
	require.Equal(t, http.StatusOK, code)

	code, body := invokeEye(t, s, "sk-test", envelope.ToolSharingan, eyeBody(id, `{"wrong_field": true}`, ""))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, "E_BAD_PAYLOAD_SCHEMA", body["code"])

	// The machine advanced regardless of the verdict: sharingan is spent.
	code, body = invokeEye(t, s, "sk-test", envelope.ToolSharingan, eyeBody(id, `{"prompt": "hello"}`, ""))
	require.Equal(t, http.StatusConflict, code)
	assert.Equal(t, []any{"helper/rewrite_prompt"}, body["expected_next"])
}

func TestEye_SessionOverridesReachTheEye(t *testing.T) {
	s, st := newTestServer(t)
	seedKey(t, st, "sk-test", store.RoleConsumer, "")
	id := createSession(t, s, "sk-test", CreateSessionRequest{
		Overrides: map[string]any{settings.KeyAmbiguityThreshold: 0.9},
	})

	code, _ := invokeEye(t, s, "sk-test", envelope.ToolNavigator, eyeBody(id, "", ""))
	require.Equal(t, http.StatusOK, code)

	// "Improve the docs" scores over the default 0.35 threshold but under
	// the session's 0.9 override.
	code, body := invokeEye(t, s, "sk-test", envelope.ToolSharingan, eyeBody(id, `{"prompt": "Improve the docs"}`, ""))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK_NO_CLARIFICATION_NEEDED", body["code"])
}

func TestEye_BadRequests(t *testing.T) {
	s, st := newTestServer(t)
	seedKey(t, st, "sk-test", store.RoleConsumer, "")

	code, body := invokeEye(t, s, "sk-test", envelope.ToolNavigator, eyeBody("", "", ""))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["detail"], "session_id")

	code, body = invokeEye(t, s, "sk-test", envelope.ToolNavigator, eyeBody("ghost", "", ""))
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Session not found", body["detail"])

	req := eyeBody("any", "", "")
	req.Context.Lang = envelope.Lang("fr")
	code, _ = invokeEye(t, s, "sk-test", envelope.ToolNavigator, req)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestEye_PerRequestBudget(t *testing.T) {
	s, st := newTestServer(t)
	seedKey(t, st, "sk-test", store.RoleConsumer, "")
	id := createSession(t, s, "sk-test", CreateSessionRequest{})

	req := eyeBody(id, "", "")
	req.Context.BudgetTokens = 200000
	code, body := invokeEye(t, s, "sk-test", envelope.ToolNavigator, req)
	require.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Per-request budget exceeded", body["detail"])
}

func TestEye_RejectedCallConsumesNoBudget(t *testing.T) {
	s, st := newTestServer(t)
	key := seedKey(t, st, "sk-test", store.RoleConsumer, "")
	key.Limits.Budget = store.BudgetLimits{MaxPerRequest: 10000, Daily: 1000}
	require.NoError(t, st.PutKey(context.Background(), key))
	id := createSession(t, s, "sk-test", CreateSessionRequest{})

	// Out-of-order call: reserved tokens must come back.
	code, _ := invokeEye(t, s, "sk-test", envelope.ToolJogan, eyeBody(id,
		`{"refined_prompt_md": "ROLE: x", "estimated_tokens": 10}`, ""))
	require.Equal(t, http.StatusConflict, code)

	// The full daily allowance is still available.
	code, _ = invokeEye(t, s, "sk-test", envelope.ToolNavigator, eyeBody(id, "", ""))
	require.Equal(t, http.StatusOK, code)

	// That admitted call spent the allowance for real.
	code, body := invokeEye(t, s, "sk-test", envelope.ToolSharingan, eyeBody(id, `{"prompt": "hello"}`, ""))
	require.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Daily budget exceeded", body["detail"])
}

func TestEye_ToolAllowlist(t *testing.T) {
	s, st := newTestServer(t)
	key := &store.APIKey{
		ID:         "key-text-only",
		SecretHash: policy.HashKey("sk-text"),
		Role:       store.RoleConsumer,
		Limits:     store.KeyLimits{Branches: []envelope.Branch{envelope.BranchShared, envelope.BranchText}},
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, st.PutKey(context.Background(), key))
	id := createSession(t, s, "sk-text", CreateSessionRequest{})

	code, _ := invokeEye(t, s, "sk-text", envelope.ToolNavigator, eyeBody(id, "", ""))
	require.Equal(t, http.StatusOK, code)

	code, body := invokeEye(t, s, "sk-text", envelope.ToolPlanReview, eyeBody(id, `{"submitted_plan_md": "x"}`, "r"))
	require.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Branch not permitted for this key", body["detail"])
}

func TestEye_RateLimit(t *testing.T) {
	s, st := newTestServer(t)
	key := &store.APIKey{
		ID:         "key-limited",
		SecretHash: policy.HashKey("sk-limited"),
		Role:       store.RoleConsumer,
		Limits:     store.KeyLimits{PerMinute: 2},
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, st.PutKey(context.Background(), key))
	id := createSession(t, s, "sk-limited", CreateSessionRequest{})

	// Session creation consumed one attempt; the next passes, the third 429s.
	code, _ := invokeEye(t, s, "sk-limited", envelope.ToolNavigator, eyeBody(id, "", ""))
	require.Equal(t, http.StatusOK, code)

	code, body := invokeEye(t, s, "sk-limited", envelope.ToolNavigator, eyeBody(id, "", ""))
	require.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "Rate limit exceeded", body["detail"])
}

func TestEye_AuditTrail(t *testing.T) {
	s, st := newTestServer(t)
	seedKey(t, st, "sk-test", store.RoleConsumer, "")
	id := createSession(t, s, "sk-test", CreateSessionRequest{})

	code, _ := invokeEye(t, s, "sk-test", envelope.ToolNavigator, eyeBody(id, "", ""))
	require.Equal(t, http.StatusOK, code)

	records := st.AuditRecords()
	require.NotEmpty(t, records)
	last := records[len(records)-1]
	assert.Equal(t, "eye.invoke", last.Action)
	assert.Equal(t, "key-sk-test", last.Actor)
	assert.Equal(t, id, last.SessionID)
	assert.Equal(t, "overseer/navigator", last.Metadata["tool"])
	assert.Equal(t, "POST", last.Metadata["method"])
}

func TestEye_DeniedAttemptIsAudited(t *testing.T) {
	s, st := newTestServer(t)
	seedKey(t, st, "sk-test", store.RoleConsumer, "")
	id := createSession(t, s, "sk-test", CreateSessionRequest{})

	code, _ := invokeEye(t, s, "sk-test", envelope.ToolConsistencyCheck, eyeBody(id, `{"draft_md": "x"}`, "r"))
	require.Equal(t, http.StatusConflict, code)

	records := st.AuditRecords()
	require.NotEmpty(t, records)
	last := records[len(records)-1]
	assert.Equal(t, "eye.denied", last.Action)
	assert.Equal(t, "byakugan/consistency_check", last.Metadata["tool"])
}
