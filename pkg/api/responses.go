package api

import (
	"time"

	"github.com/third-eye/overseer/pkg/store"
)

// SessionResponse is returned by POST /session.
type SessionResponse struct {
	SessionID string         `json:"session_id"`
	Profile   string         `json:"profile"`
	Settings  map[string]any `json:"settings"`
	Provider  string         `json:"provider"`
	PortalURL string         `json:"portal_url"`
}

// SessionListResponse is returned by GET /sessions.
type SessionListResponse struct {
	Sessions []*store.Session `json:"sessions"`
	Count    int              `json:"count"`
}

// EventListResponse is returned by GET /session/:id/events.
type EventListResponse struct {
	Events []*store.PipelineEvent `json:"events"`
	Count  int                    `json:"count"`
}

// AcceptedResponse acknowledges an appended host action.
type AcceptedResponse struct {
	SessionID string `json:"session_id"`
	EventID   int64  `json:"event_id"`
	Type      string `json:"type"`
}

// HealthCheck is one named dependency probe result.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by the health endpoints.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	TS      time.Time              `json:"ts"`
	Checks  map[string]HealthCheck `json:"checks,omitempty"`
}
