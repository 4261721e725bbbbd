package events

import (
	"time"

	"github.com/third-eye/overseer/pkg/store"
)

// EventMessage is the wire shape of one pipeline event. Every message
// carries type, session_id and ts; the Eye fields are present for
// eye_update events and omitted otherwise.
type EventMessage struct {
	Type        string         `json:"type"`
	SessionID   string         `json:"session_id"`
	TS          time.Time      `json:"ts"`
	EventID     int64          `json:"event_id,omitempty"`
	Eye         string         `json:"eye,omitempty"`
	OK          *bool          `json:"ok,omitempty"`
	Code        string         `json:"code,omitempty"`
	ToolVersion string         `json:"tool_version,omitempty"`
	MD          string         `json:"md,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	Truncated   bool           `json:"truncated,omitempty"`
}

// MessageFromEvent renders a journal entry as its wire message.
func MessageFromEvent(evt *store.PipelineEvent) EventMessage {
	return EventMessage{
		Type:        string(evt.Type),
		SessionID:   evt.SessionID,
		TS:          evt.CreatedAt,
		EventID:     evt.ID,
		Eye:         evt.Eye,
		OK:          evt.OK,
		Code:        evt.Code,
		ToolVersion: evt.ToolVersion,
		MD:          evt.MD,
		Data:        evt.Data,
	}
}

// SettingsSnapshot is the first message a subscriber receives: the session's
// profile and effective settings at subscribe time.
type SettingsSnapshot struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id"`
	TS        time.Time      `json:"ts"`
	Profile   string         `json:"profile"`
	Settings  map[string]any `json:"settings"`
}

// NewSettingsSnapshot builds the snapshot message for a session.
func NewSettingsSnapshot(sessionID, profile string, effective map[string]any) SettingsSnapshot {
	return SettingsSnapshot{
		Type:      MessageTypeSettingsSnapshot,
		SessionID: sessionID,
		TS:        time.Now().UTC(),
		Profile:   profile,
		Settings:  effective,
	}
}
