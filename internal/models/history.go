package models

import "time"

// HistoryRecord is one persisted prompt/response exchange. Records are never
// updated once written.
type HistoryRecord struct {
	ID        int64     `json:"id,omitempty"`
	User      string    `json:"user"`
	SessionID string    `json:"session_id"`
	Model     string    `json:"model"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}
