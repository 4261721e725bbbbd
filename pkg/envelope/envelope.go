// Package envelope defines the canonical request/response shapes shared by
// every Eye validator: the closed status-code set, the Eye tags, the tool
// registry, and the wire envelopes themselves. All other packages depend on
// this one; it depends on nothing.
package envelope

import "encoding/json"

// Lang restricts the request language hint.
type Lang string

const (
	LangAuto Lang = "auto"
	LangEN   Lang = "en"
	LangAR   Lang = "ar"
)

// IsValid reports whether the language hint is supported.
func (l Lang) IsValid() bool {
	return l == LangAuto || l == LangEN || l == LangAR
}

// RequestContext carries the session-scoped fields attached to every Eye call.
// Settings is populated by the settings resolver before the Eye runs; clients
// may not supply it themselves (the resolver overwrites it).
type RequestContext struct {
	SessionID    string         `json:"session_id"`
	UserID       string         `json:"user_id,omitempty"`
	Tenant       string         `json:"tenant,omitempty"`
	Lang         Lang           `json:"lang"`
	BudgetTokens int            `json:"budget_tokens"`
	RequestID    string         `json:"request_id,omitempty"`
	Settings     map[string]any `json:"settings,omitempty"`
}

// Request is the input envelope for every Eye. Payload stays raw until the
// tool-specific decoder in the validator harness types it.
type Request struct {
	Context     RequestContext  `json:"context"`
	Payload     json.RawMessage `json:"payload"`
	ReasoningMD string          `json:"reasoning_md,omitempty"`
}

// Response is the output envelope, invariant across all Eyes. Exactly these
// six fields; Eye-domain failures are expressed as OK=false with an E_* code,
// never as transport errors.
type Response struct {
	Tag  EyeTag         `json:"tag"`
	OK   bool           `json:"ok"`
	Code StatusCode     `json:"code"`
	MD   string         `json:"md"`
	Data map[string]any `json:"data"`
	Next string         `json:"next"`
}
