// Package eyes implements the thirteen deterministic validators. Each Eye is
// a pure function from request envelope to response envelope; the shared
// harness handles payload decoding, reasoning enforcement, the budget guard,
// and panic containment so individual validators only express their verdict
// logic.
package eyes

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/third-eye/overseer/pkg/envelope"
	"github.com/third-eye/overseer/pkg/settings"
)

// badPayloadError marks a payload that failed schema validation. The harness
// turns it into an E_BAD_PAYLOAD_SCHEMA envelope carrying the tool's
// canonical example.
type badPayloadError struct {
	reason string
}

func (e *badPayloadError) Error() string {
	return e.reason
}

func badPayload(format string, args ...any) error {
	return &badPayloadError{reason: fmt.Sprintf(format, args...)}
}

// runInput is the decoded call context handed to each Eye's evaluate func.
type runInput struct {
	req      *envelope.Request
	settings settings.Values
}

// outcome is the Eye-specific part of a response; the harness fills in tag
// and validates the rest.
type outcome struct {
	ok   bool
	code envelope.StatusCode
	md   string
	data map[string]any
	next string
}

// runner binds one tool to its payload decoder and verdict predicate.
// decode returns the typed payload (asserted back by evaluate) or a
// badPayloadError naming the violation.
type runner struct {
	tool           envelope.Tool
	needsReasoning bool
	exampleJSON    string
	decode         func(raw json.RawMessage) (any, error)
	evaluate       func(payload any, in runInput) outcome
}

// Run executes the named Eye against the request and always produces a
// well-formed envelope: every failure class, including panics, is expressed
// as ok=false with a closed-set code rather than an error return.
func Run(tool envelope.Tool, req *envelope.Request) (resp envelope.Response) {
	r, ok := registry[tool]
	if !ok {
		return internalError(tool, fmt.Sprintf("unknown tool %q", tool))
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("eye panicked", "tool", tool, "panic", rec)
			resp = internalError(tool, "validator failure")
		}
	}()

	payload, err := r.decode(req.Payload)
	if err != nil {
		return schemaError(r, err)
	}

	if r.needsReasoning && strings.TrimSpace(req.ReasoningMD) == "" {
		return finish(tool, outcome{
			ok:   false,
			code: envelope.EReasoningMissing,
			md: "# Reasoning Required\n\nThis Eye reviews work; submit a non-empty " +
				"`reasoning_md` explaining how the submission was produced.",
			data: map[string]any{"error": "reasoning_md is required and was empty"},
			next: envelope.ResubmitTo(tool),
		})
	}

	if req.Context.BudgetTokens < 0 {
		return finish(tool, outcome{
			ok:   false,
			code: envelope.EBudgetExceeded,
			md:   "# Budget Exceeded\n\n`context.budget_tokens` is negative; the session budget is spent.",
			data: map[string]any{"error": "budget_tokens is negative"},
			next: envelope.NextReduceBudget,
		})
	}

	in := runInput{req: req, settings: settings.FromMap(req.Context.Settings)}
	return finish(tool, r.evaluate(payload, in))
}

// finish assembles the final envelope and asserts the response invariants.
// A violated invariant is a programming error in the Eye, so it degrades to
// E_INTERNAL_ERROR instead of leaking a malformed envelope.
func finish(tool envelope.Tool, out outcome) envelope.Response {
	if !out.code.IsValid() || out.md == "" || out.next == "" {
		slog.Error("eye emitted malformed outcome", "tool", tool, "code", out.code)
		return internalError(tool, "validator produced a malformed verdict")
	}
	if out.data == nil {
		out.data = map[string]any{}
	}
	for key := range out.data {
		if !envelope.DataKeyAllowed(tool, key) {
			slog.Error("eye emitted unregistered data key", "tool", tool, "key", key)
			return internalError(tool, "validator produced an unregistered data key")
		}
	}
	return envelope.Response{
		Tag:  tool.Tag(),
		OK:   out.ok,
		Code: out.code,
		MD:   out.md,
		Data: out.data,
		Next: out.next,
	}
}

func schemaError(r runner, err error) envelope.Response {
	var md strings.Builder
	md.WriteString("# Invalid Payload\n\n")
	md.WriteString(err.Error())
	md.WriteString("\n\nCanonical payload for `")
	md.WriteString(string(r.tool))
	md.WriteString("`:\n\n```json\n")
	md.WriteString(r.exampleJSON)
	md.WriteString("\n```\n")

	return envelope.Response{
		Tag:  r.tool.Tag(),
		OK:   false,
		Code: envelope.EBadPayloadSchema,
		MD:   md.String(),
		Data: map[string]any{
			"error":              err.Error(),
			"expected_schema_md": "```json\n" + r.exampleJSON + "\n```",
		},
		Next: envelope.NextResendValidPayload,
	}
}

func internalError(tool envelope.Tool, detail string) envelope.Response {
	tag := tool.Tag()
	if !tag.IsValid() {
		tag = envelope.TagOverseer
	}
	return envelope.Response{
		Tag:  tag,
		OK:   false,
		Code: envelope.EInternalError,
		MD:   "# Internal Error\n\nThe validator could not complete this request.",
		Data: map[string]any{"error": detail},
		Next: envelope.NextRetryOrContact,
	}
}

// decodeInto is the common strict JSON decode used by every Eye's payload
// decoder. Unknown fields are rejected so drifted payloads surface as schema
// errors instead of being silently ignored.
func decodeInto(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return badPayload("payload is required")
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badPayload("payload does not match the expected schema: %v", err)
	}
	return nil
}
