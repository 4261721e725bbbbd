package store

import (
	"context"
	"errors"
	"time"

	"github.com/third-eye/overseer/pkg/envelope"
)

var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned when creating a duplicate entity.
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrConcurrentModification is returned when a compare-and-set on the
	// pipeline state loses the race.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// SessionStore persists sessions and their versioned pipeline state.
type SessionStore interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	// ListSessions returns recent sessions newest-first. An empty tenant
	// lists across all tenants (admin scope).
	ListSessions(ctx context.Context, tenant string, limit int) ([]*Session, error)
	// UpdateSessionSettings replaces the session's profile and override map.
	UpdateSessionSettings(ctx context.Context, id, profile string, overrides map[string]any) error
	// CASPipelineState replaces next_tools iff the stored state version
	// still equals fromVersion; the version is incremented on success.
	// Returns ErrConcurrentModification when the CAS loses.
	CASPipelineState(ctx context.Context, id string, fromVersion int, next []envelope.Tool) error
}

// EventStore is the append-only pipeline-event journal.
type EventStore interface {
	// AppendEvent journals the event and returns its assigned id.
	AppendEvent(ctx context.Context, e *PipelineEvent) (int64, error)
	// ListEvents pages a session's journal oldest-first.
	ListEvents(ctx context.Context, sessionID string, f EventFilter) ([]*PipelineEvent, error)
	// TailEvents returns the last n events of a session, oldest-first.
	TailEvents(ctx context.Context, sessionID string, n int) ([]*PipelineEvent, error)
}

// APIKeyStore persists authentication keys. Lookup is always by secret hash;
// the raw secret never reaches the store.
type APIKeyStore interface {
	GetKeyByHash(ctx context.Context, hash string) (*APIKey, error)
	PutKey(ctx context.Context, k *APIKey) error
	TouchKey(ctx context.Context, id string, usedAt time.Time) error
}

// TenantStore persists isolation scopes.
type TenantStore interface {
	GetTenant(ctx context.Context, id string) (*Tenant, error)
	PutTenant(ctx context.Context, t *Tenant) error
}

// ProfileStore persists named settings profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, name string) (map[string]any, error)
	PutProfile(ctx context.Context, name string, data map[string]any) error
}

// AuditStore is the append-only audit journal. Appends are non-critical:
// callers log and swallow failures.
type AuditStore interface {
	AppendAudit(ctx context.Context, r *AuditRecord) error
}

// Store aggregates every persistence surface the gateway needs.
type Store interface {
	SessionStore
	EventStore
	APIKeyStore
	TenantStore
	ProfileStore
	AuditStore
}
