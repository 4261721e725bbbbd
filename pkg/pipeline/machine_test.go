package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/third-eye/overseer/pkg/envelope"
	"github.com/third-eye/overseer/pkg/store"
)

func newSession(t *testing.T, st *store.MemoryStore) *store.Session {
	t.Helper()
	sess := &store.Session{ID: "sess-1", Profile: "enterprise"}
	require.NoError(t, st.CreateSession(context.Background(), sess))
	return sess
}

func TestCheck_FreshSessionAdmitsOnlyNavigator(t *testing.T) {
	st := store.NewMemoryStore()
	newSession(t, st)
	m := NewMachine(st)

	_, err := m.Check(context.Background(), "sess-1", envelope.ToolNavigator)
	assert.NoError(t, err)

	_, err = m.Check(context.Background(), "sess-1", envelope.ToolSharingan)
	var oo *OutOfOrderError
	require.ErrorAs(t, err, &oo)
	assert.Equal(t, []envelope.Tool{envelope.ToolNavigator}, oo.Expected)
}

func TestCheck_UnknownSession(t *testing.T) {
	m := NewMachine(store.NewMemoryStore())
	_, err := m.Check(context.Background(), "nope", envelope.ToolNavigator)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAdvance_SharedSpine(t *testing.T) {
	st := store.NewMemoryStore()
	newSession(t, st)
	m := NewMachine(st)
	ctx := context.Background()

	spine := []struct {
		tool envelope.Tool
		next []envelope.Tool
	}{
		{envelope.ToolNavigator, []envelope.Tool{envelope.ToolSharingan}},
		{envelope.ToolSharingan, []envelope.Tool{envelope.ToolPromptHelper}},
		{envelope.ToolPromptHelper, []envelope.Tool{envelope.ToolJogan}},
		{envelope.ToolJogan, PostJoganAllowlist()},
	}

	for _, step := range spine {
		ver, err := m.Check(ctx, "sess-1", step.tool)
		require.NoError(t, err, "check %s", step.tool)
		require.NoError(t, m.Advance(ctx, "sess-1", ver, step.tool))

		expected, err := m.Expected(ctx, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, step.next, expected, "after %s", step.tool)
	}
}

func TestPostJoganAllowlist_SortedAndMixed(t *testing.T) {
	tools := PostJoganAllowlist()
	require.Len(t, tools, 9)
	for i := 1; i < len(tools); i++ {
		assert.Less(t, tools[i-1], tools[i])
	}
	// Both branches stay open so the host can interleave code and text work.
	assert.Contains(t, tools, envelope.ToolValidateClaims)
	assert.Contains(t, tools, envelope.ToolReviewImpl)
	assert.NotContains(t, tools, envelope.ToolNavigator)
	assert.NotContains(t, tools, envelope.ToolSharingan)
}

func TestAdvance_PostJoganToolKeepsSetOpen(t *testing.T) {
	st := store.NewMemoryStore()
	newSession(t, st)
	m := NewMachine(st)
	ctx := context.Background()

	for _, tool := range []envelope.Tool{
		envelope.ToolNavigator, envelope.ToolSharingan,
		envelope.ToolPromptHelper, envelope.ToolJogan,
	} {
		ver, err := m.Check(ctx, "sess-1", tool)
		require.NoError(t, err)
		require.NoError(t, m.Advance(ctx, "sess-1", ver, tool))
	}

	ver, err := m.Check(ctx, "sess-1", envelope.ToolPlanReview)
	require.NoError(t, err)
	require.NoError(t, m.Advance(ctx, "sess-1", ver, envelope.ToolPlanReview))

	expected, err := m.Expected(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, PostJoganAllowlist(), expected)
}

func TestCheck_NavigatorResetsFromAnyState(t *testing.T) {
	st := store.NewMemoryStore()
	newSession(t, st)
	m := NewMachine(st)
	ctx := context.Background()

	ver, err := m.Check(ctx, "sess-1", envelope.ToolNavigator)
	require.NoError(t, err)
	require.NoError(t, m.Advance(ctx, "sess-1", ver, envelope.ToolNavigator))

	// Mid-pipeline: sharingan expected, but navigator is still admitted
	// and resets the spine.
	ver, err = m.Check(ctx, "sess-1", envelope.ToolNavigator)
	require.NoError(t, err)
	require.NoError(t, m.Advance(ctx, "sess-1", ver, envelope.ToolNavigator))

	expected, err := m.Expected(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, []envelope.Tool{envelope.ToolSharingan}, expected)
}

func TestAdvance_ConcurrentLoserGetsOutOfOrder(t *testing.T) {
	st := store.NewMemoryStore()
	newSession(t, st)
	m := NewMachine(st)
	ctx := context.Background()

	// Both callers check against the same version.
	verA, err := m.Check(ctx, "sess-1", envelope.ToolNavigator)
	require.NoError(t, err)
	verB, err := m.Check(ctx, "sess-1", envelope.ToolNavigator)
	require.NoError(t, err)
	assert.Equal(t, verA, verB)

	require.NoError(t, m.Advance(ctx, "sess-1", verA, envelope.ToolNavigator))

	err = m.Advance(ctx, "sess-1", verB, envelope.ToolNavigator)
	var oo *OutOfOrderError
	require.ErrorAs(t, err, &oo)
	assert.Equal(t, []envelope.Tool{envelope.ToolSharingan}, oo.Expected)
}

func TestOutOfOrderError_Message(t *testing.T) {
	err := &OutOfOrderError{Expected: []envelope.Tool{envelope.ToolSharingan}}
	assert.Contains(t, err.Error(), "sharingan/clarify")
	assert.False(t, errors.Is(err, store.ErrConcurrentModification))
}
