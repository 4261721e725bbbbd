// Package store persists the Overseer's aggregates: sessions with their
// pipeline state, the append-only pipeline-event journal, API keys, tenants,
// profiles, and the audit journal. Two implementations exist: PGStore over
// raw SQL (production) and MemoryStore (single-process deployments, tests).
package store

import (
	"time"

	"github.com/third-eye/overseer/pkg/envelope"
)

// Session is one logical thread of host-agent activity. NextTools plus
// StateVersion form the versioned pipeline record: advancement is a
// compare-and-set on StateVersion so concurrent winners are determinate.
type Session struct {
	ID           string          `json:"session_id"`
	Tenant       string          `json:"tenant,omitempty"`
	Profile      string          `json:"profile"`
	Overrides    map[string]any  `json:"overrides,omitempty"`
	NextTools    []envelope.Tool `json:"next_tools"`
	StateVersion int             `json:"state_version"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// EventType enumerates pipeline-event kinds.
type EventType string

const (
	EventEyeUpdate         EventType = "eye_update"
	EventUserInput         EventType = "user_input"
	EventResubmitRequested EventType = "resubmit_requested"
	EventDuelRequested     EventType = "duel_requested"
	EventSettingsUpdate    EventType = "settings_update"
)

// IsValid reports whether the event type is known.
func (t EventType) IsValid() bool {
	switch t {
	case EventEyeUpdate, EventUserInput, EventResubmitRequested,
		EventDuelRequested, EventSettingsUpdate:
		return true
	}
	return false
}

// PipelineEvent is one append-only journal entry. ID is assigned by the
// store and is monotonic; within a session it defines the total order that
// subscribers observe.
type PipelineEvent struct {
	ID          int64          `json:"id"`
	SessionID   string         `json:"session_id"`
	Type        EventType      `json:"type"`
	Eye         string         `json:"eye,omitempty"`
	OK          *bool          `json:"ok,omitempty"`
	Code        string         `json:"code,omitempty"`
	ToolVersion string         `json:"tool_version,omitempty"`
	MD          string         `json:"md,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Role is the coarse permission level of an API key.
type Role string

const (
	RoleConsumer Role = "consumer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// IsValid reports whether the role is known.
func (r Role) IsValid() bool {
	return r == RoleConsumer || r == RoleOperator || r == RoleAdmin
}

// BudgetLimits caps token spend per key. Zero values mean "use config default".
type BudgetLimits struct {
	MaxPerRequest int   `json:"max_per_request,omitempty"`
	Daily         int64 `json:"daily,omitempty"`
}

// KeyLimits holds the optional per-key policy limits. Empty slices mean
// "no restriction"; zero numbers mean "use config default".
type KeyLimits struct {
	PerMinute     int               `json:"per_minute,omitempty"`
	WindowSeconds int               `json:"window_seconds,omitempty"`
	Budget        BudgetLimits      `json:"budget,omitempty"`
	Tenants       []string          `json:"tenants,omitempty"`
	Tools         []envelope.Tool   `json:"tools,omitempty"`
	Branches      []envelope.Branch `json:"branches,omitempty"`
}

// APIKey is an authentication credential. Only the SHA-256 hash of the
// secret is ever stored or logged.
type APIKey struct {
	ID         string     `json:"id"`
	SecretHash string     `json:"secret_hash"`
	Role       Role       `json:"role"`
	Tenant     string     `json:"tenant,omitempty"`
	Limits     KeyLimits  `json:"limits"`
	AccountID  string     `json:"account_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RotatedAt  *time.Time `json:"rotated_at,omitempty"`
}

// Tenant is an isolation scope.
type Tenant struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Archived    bool           `json:"archived"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// AuditRecord is one append-only audit journal entry.
type AuditRecord struct {
	ID        int64          `json:"id"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	Target    string         `json:"target,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	IP        string         `json:"ip,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	TenantID  string         `json:"tenant_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// EventFilter bounds journal pagination.
type EventFilter struct {
	Limit  int
	FromTS *time.Time
	ToTS   *time.Time
}
