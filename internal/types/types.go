package types

import "time"

type Event struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Ts      time.Time      `json:"timestamp"`
	Payload map[string]any `json:"payload,omitempty"`
}

// AskRequest is the body of POST /ask. Unknown fields are ignored.
type AskRequest struct {
	Text   string `json:"text"`
	UserID string `json:"user_id,omitempty"`
}

// AskResponse always carries the audio key; it is null when no audio was made.
type AskResponse struct {
	Text  string  `json:"text"`
	Audio *string `json:"audio"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type EventsResponse struct {
	UserID string  `json:"user_id"`
	Events []Event `json:"events"`
}
