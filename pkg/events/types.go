// Package events delivers pipeline events to WebSocket subscribers. Events
// are journaled first, then broadcast: locally through the ConnectionManager
// and across pods through PostgreSQL NOTIFY/LISTEN. On subscribe a client
// receives the session's settings snapshot, then a replay of the most recent
// journal entries oldest-first, then the live stream — all in journal order.
package events

// DefaultReplayLimit is the number of journal entries replayed to a new
// subscriber before live delivery starts.
const DefaultReplayLimit = 50

// SessionChannel returns the broadcast channel for one session's pipeline
// events. Format: "pipeline:{session_id}".
func SessionChannel(sessionID string) string {
	return "pipeline:" + sessionID
}

// Server → client message types that are not journal events.
const (
	MessageTypeConnected        = "connection.established"
	MessageTypeSettingsSnapshot = "settings.snapshot"
	MessageTypePong             = "pong"
	MessageTypeError            = "error"
)

// ClientMessage is the JSON structure for client → server WebSocket
// messages. Only keepalive is supported; the subscription is fixed by the
// endpoint's session id.
type ClientMessage struct {
	Action string `json:"action"` // "ping" or "pong"
}
