// Package pipeline enforces per-session ordering of Eye calls. The allowed
// next tools live on the session record as a versioned allowlist; advancing
// is a compare-and-set on the version so concurrent calls against one
// session are serialized — exactly one wins, the loser gets the current
// allowlist back as an out-of-order rejection.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/third-eye/overseer/pkg/envelope"
	"github.com/third-eye/overseer/pkg/store"
)

// OutOfOrderError reports a tool call that is not in the session's current
// allowlist. The API layer maps it to HTTP 409 with the expected set.
type OutOfOrderError struct {
	Expected []envelope.Tool
}

func (e *OutOfOrderError) Error() string {
	names := make([]string, len(e.Expected))
	for i, t := range e.Expected {
		names[i] = string(t)
	}
	return fmt.Sprintf("tool not allowed at this pipeline stage, expected one of: %s",
		strings.Join(names, ", "))
}

// postJoganTools is the full set available once intent is confirmed: the
// host may interleave code and text branch tools until final approval.
// Sorted lexicographically for deterministic emission.
var postJoganTools = func() []envelope.Tool {
	tools := []envelope.Tool{
		envelope.ToolPlanRequirements,
		envelope.ToolPlanReview,
		envelope.ToolFinalApproval,
		envelope.ToolReviewScaffold,
		envelope.ToolReviewImpl,
		envelope.ToolReviewTests,
		envelope.ToolReviewDocs,
		envelope.ToolValidateClaims,
		envelope.ToolConsistencyCheck,
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i] < tools[j] })
	return tools
}()

// FreshAllowlist is the allowlist of a session that has not called any tool.
func FreshAllowlist() []envelope.Tool {
	return []envelope.Tool{envelope.ToolNavigator}
}

// PostJoganAllowlist returns the sorted post-Jōgan tool set.
func PostJoganAllowlist() []envelope.Tool {
	return append([]envelope.Tool(nil), postJoganTools...)
}

// NextAfter returns the allowlist that follows acceptance of the given tool.
func NextAfter(tool envelope.Tool) []envelope.Tool {
	switch tool {
	case envelope.ToolNavigator:
		return []envelope.Tool{envelope.ToolSharingan}
	case envelope.ToolSharingan:
		return []envelope.Tool{envelope.ToolPromptHelper}
	case envelope.ToolPromptHelper:
		return []envelope.Tool{envelope.ToolJogan}
	case envelope.ToolJogan:
		return PostJoganAllowlist()
	default:
		// Any post-Jōgan tool keeps the full set open.
		return PostJoganAllowlist()
	}
}

// Machine checks and advances pipeline state through the session store.
type Machine struct {
	sessions store.SessionStore
}

// NewMachine creates a Machine backed by the given session store.
func NewMachine(sessions store.SessionStore) *Machine {
	return &Machine{sessions: sessions}
}

// Check verifies that the tool is allowed for the session's current state
// and returns the state version to CAS against on advance. A fresh session
// (empty allowlist) admits only the navigator; the navigator itself is
// always admitted because it resets the pipeline.
func (m *Machine) Check(ctx context.Context, sessionID string, tool envelope.Tool) (int, error) {
	sess, err := m.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	allow := sess.NextTools
	if len(allow) == 0 {
		allow = FreshAllowlist()
	}

	if tool == envelope.ToolNavigator {
		return sess.StateVersion, nil
	}
	for _, t := range allow {
		if t == tool {
			return sess.StateVersion, nil
		}
	}
	return 0, &OutOfOrderError{Expected: allow}
}

// Advance moves the session's allowlist forward after the tool ran. The
// advance is a CAS on the version captured by Check; a lost CAS means a
// concurrent call won, and the caller must treat this request as
// out-of-order against the now-current allowlist.
func (m *Machine) Advance(ctx context.Context, sessionID string, fromVersion int, tool envelope.Tool) error {
	err := m.sessions.CASPipelineState(ctx, sessionID, fromVersion, NextAfter(tool))
	if errors.Is(err, store.ErrConcurrentModification) {
		sess, getErr := m.sessions.GetSession(ctx, sessionID)
		if getErr != nil {
			return getErr
		}
		allow := sess.NextTools
		if len(allow) == 0 {
			allow = FreshAllowlist()
		}
		return &OutOfOrderError{Expected: allow}
	}
	return err
}

// Expected returns the session's current allowlist without advancing.
func (m *Machine) Expected(ctx context.Context, sessionID string) ([]envelope.Tool, error) {
	sess, err := m.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(sess.NextTools) == 0 {
		return FreshAllowlist(), nil
	}
	return sess.NextTools, nil
}
