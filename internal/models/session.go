package models

import "time"

// Session binds a login token to a user and the chat session it opened.
type Session struct {
	Token     string    `json:"-"`
	User      string    `json:"user"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
