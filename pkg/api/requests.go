package api

// CreateSessionRequest is the body of POST /session.
type CreateSessionRequest struct {
	Tenant    string         `json:"tenant,omitempty"`
	Profile   string         `json:"profile,omitempty"`
	Overrides map[string]any `json:"overrides,omitempty"`
}

// UpdateSettingsRequest is the body of PUT /session/:id/settings. It replaces
// the session's profile and override map wholesale.
type UpdateSettingsRequest struct {
	Profile   string         `json:"profile"`
	Overrides map[string]any `json:"overrides,omitempty"`
}

// ClarificationsRequest is the body of POST /session/:id/clarifications.
type ClarificationsRequest struct {
	AnswersMD string `json:"answers_md"`
}

// ResubmitRequest is the body of POST /session/:id/resubmit: the host asks
// for a named Eye stage to be resubmitted.
type ResubmitRequest struct {
	Eye      string `json:"eye"`
	ReasonMD string `json:"reason_md,omitempty"`
}

// DuelRequest is the body of POST /session/:id/duel: the operator pits two
// Eye verdicts against each other for manual comparison.
type DuelRequest struct {
	Eyes    []string `json:"eyes"`
	TopicMD string   `json:"topic_md,omitempty"`
}
