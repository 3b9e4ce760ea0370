package models

import (
	"database/sql"
	"time"
)

// Call types.
const (
	CallVoice = "VOICE"
	CallVideo = "VIDEO"
	CallGroup = "GROUP"
)

// Call statuses. REJECTED, MISSED and ENDED are terminal.
const (
	CallInitiated = "INITIATED"
	CallRinging   = "RINGING"
	CallAccepted  = "ACCEPTED"
	CallRejected  = "REJECTED"
	CallMissed    = "MISSED"
	CallEnded     = "ENDED"
)

// CallRecord is the persisted lifecycle of one call attempt.
// DurationSeconds is meaningful only once the call ENDED after being
// accepted (StartedAt set).
type CallRecord struct {
	ID              int           `db:"id" json:"id"`
	ConversationID  int           `db:"conversation_id" json:"conversation_id"`
	CallerID        int           `db:"caller_id" json:"caller_id"`
	ReceiverID      sql.NullInt64 `db:"receiver_id" json:"receiver_id,omitempty"`
	CallType        string        `db:"call_type" json:"call_type"`
	Status          string        `db:"status" json:"status"`
	IsMissed        bool          `db:"is_missed" json:"is_missed"`
	StartedAt       sql.NullTime  `db:"started_at" json:"started_at,omitempty"`
	EndedAt         sql.NullTime  `db:"ended_at" json:"ended_at,omitempty"`
	DurationSeconds int           `db:"duration_seconds" json:"duration_seconds"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
}

// Terminal reports whether no further transitions are allowed.
func (c CallRecord) Terminal() bool {
	return c.Status == CallRejected || c.Status == CallMissed || c.Status == CallEnded
}
