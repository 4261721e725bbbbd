package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/third-eye/overseer/pkg/database"
	"github.com/third-eye/overseer/pkg/envelope"
)

// newTestDB spins up a disposable PostgreSQL container with the schema
// migrated. Skipped in -short mode and when no container runtime is around.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("overseer"),
		tcpostgres.WithUsername("overseer"),
		tcpostgres.WithPassword("overseer"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("pgx", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.MigrateUp(db, "overseer"))
	return db
}

func TestPGStore_SessionRoundTripAndCAS(t *testing.T) {
	p := NewPGStore(newTestDB(t))
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	sess := &Session{
		ID:        "s1",
		Tenant:    "ops",
		Profile:   "enterprise",
		Overrides: map[string]any{"ambiguity_threshold": 0.5},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, p.CreateSession(ctx, sess))
	assert.ErrorIs(t, p.CreateSession(ctx, sess), ErrAlreadyExists)

	got, err := p.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "ops", got.Tenant)
	assert.Equal(t, 0.5, got.Overrides["ambiguity_threshold"])
	assert.Zero(t, got.StateVersion)

	_, err = p.GetSession(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, p.CASPipelineState(ctx, "s1", 0, []envelope.Tool{envelope.ToolSharingan}))
	err = p.CASPipelineState(ctx, "s1", 0, []envelope.Tool{envelope.ToolJogan})
	assert.ErrorIs(t, err, ErrConcurrentModification)
	assert.ErrorIs(t, p.CASPipelineState(ctx, "ghost", 0, nil), ErrNotFound)

	got, err = p.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.StateVersion)
	assert.Equal(t, []envelope.Tool{envelope.ToolSharingan}, got.NextTools)

	require.NoError(t, p.UpdateSessionSettings(ctx, "s1", "security", nil))
	got, err = p.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "security", got.Profile)
	assert.Nil(t, got.Overrides)
}

func TestPGStore_EventJournal(t *testing.T) {
	p := NewPGStore(newTestDB(t))
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, p.CreateSession(ctx, &Session{ID: "s1", CreatedAt: now, UpdatedAt: now}))

	ok := true
	for i := 0; i < 4; i++ {
		evt := &PipelineEvent{
			SessionID:   "s1",
			Type:        EventEyeUpdate,
			Eye:         "sharingan/clarify",
			OK:          &ok,
			Code:        "OK_NO_CLARIFICATION_NEEDED",
			ToolVersion: "sharingan-clarify@1.4.1",
			MD:          "ok",
			Data:        map[string]any{"x": float64(i)},
		}
		id, err := p.AppendEvent(ctx, evt)
		require.NoError(t, err)
		assert.Equal(t, id, evt.ID)
	}

	// Nullable ok/code columns round-trip as their zero values.
	_, err := p.AppendEvent(ctx, &PipelineEvent{SessionID: "s1", Type: EventUserInput, MD: "answers"})
	require.NoError(t, err)

	entries, err := p.ListEvents(ctx, "s1", EventFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 5)
	assert.Equal(t, "OK_NO_CLARIFICATION_NEEDED", entries[0].Code)
	require.NotNil(t, entries[0].OK)
	assert.True(t, *entries[0].OK)
	assert.Nil(t, entries[4].OK)
	assert.Empty(t, entries[4].Code)

	tail, err := p.TailEvents(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Less(t, tail[0].ID, tail[1].ID)
	assert.Equal(t, entries[4].ID, tail[1].ID)

	limited, err := p.ListEvents(ctx, "s1", EventFilter{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, limited, 3)
}

func TestPGStore_APIKeyUpsertAndTouch(t *testing.T) {
	p := NewPGStore(newTestDB(t))
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	key := &APIKey{
		ID:         "k1",
		SecretHash: "hash-1",
		Role:       RoleOperator,
		Tenant:     "ops",
		Limits:     KeyLimits{PerMinute: 10, Tools: []envelope.Tool{envelope.ToolSharingan}},
		CreatedAt:  now,
	}
	require.NoError(t, p.PutKey(ctx, key))

	got, err := p.GetKeyByHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, RoleOperator, got.Role)
	assert.Equal(t, 10, got.Limits.PerMinute)
	assert.Equal(t, []envelope.Tool{envelope.ToolSharingan}, got.Limits.Tools)
	assert.Nil(t, got.LastUsedAt)

	// Rotation replaces the hash under the same id.
	key.SecretHash = "hash-2"
	require.NoError(t, p.PutKey(ctx, key))
	_, err = p.GetKeyByHash(ctx, "hash-1")
	assert.ErrorIs(t, err, ErrNotFound)

	used := now.Add(time.Minute)
	require.NoError(t, p.TouchKey(ctx, "k1", used))
	got, err = p.GetKeyByHash(ctx, "hash-2")
	require.NoError(t, err)
	require.NotNil(t, got.LastUsedAt)
	assert.WithinDuration(t, used, *got.LastUsedAt, time.Second)

	assert.ErrorIs(t, p.TouchKey(ctx, "ghost", used), ErrNotFound)
}

func TestPGStore_ProfilesTenantsAudit(t *testing.T) {
	p := NewPGStore(newTestDB(t))
	ctx := context.Background()

	_, err := p.GetProfile(ctx, "custom")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, p.PutProfile(ctx, "custom", map[string]any{"mangekyo": "strict"}))
	require.NoError(t, p.PutProfile(ctx, "custom", map[string]any{"mangekyo": "lenient"}))
	data, err := p.GetProfile(ctx, "custom")
	require.NoError(t, err)
	assert.Equal(t, "lenient", data["mangekyo"])

	now := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, p.PutTenant(ctx, &Tenant{
		ID: "ops", DisplayName: "Operations", Tags: []string{"prod"},
		CreatedAt: now, UpdatedAt: now,
	}))
	tn, err := p.GetTenant(ctx, "ops")
	require.NoError(t, err)
	assert.Equal(t, []string{"prod"}, tn.Tags)

	require.NoError(t, p.AppendAudit(ctx, &AuditRecord{
		Actor:    "k1",
		Action:   "eye.invoke",
		Metadata: map[string]any{"tool": "sharingan/clarify"},
	}))
}
