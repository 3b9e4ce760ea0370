package models

import (
	"database/sql"
	"time"
)

// Conversation kinds.
const (
	KindIndividual = "INDIVIDUAL"
	KindGroup      = "GROUP"
	KindAI         = "AI"
)

// Conversation is a chat thread between two or more users.
// Individual conversations carry a PairKey built from the sorted user pair
// so concurrent creation collapses onto one row.
type Conversation struct {
	ID                  int            `db:"id" json:"id"`
	Kind                string         `db:"kind" json:"kind"`
	Name                sql.NullString `db:"name" json:"name,omitempty"`
	AvatarURL           sql.NullString `db:"avatar_url" json:"avatar_url,omitempty"`
	PairKey             sql.NullString `db:"pair_key" json:"-"`
	LastMessagePreview  sql.NullString `db:"last_message_preview" json:"last_message_preview,omitempty"`
	LastMessageSenderID sql.NullInt64  `db:"last_message_sender_id" json:"last_message_sender_id,omitempty"`
	LastMessageAt       sql.NullTime   `db:"last_message_at" json:"last_message_at,omitempty"`
	NextSeq             int64          `db:"next_seq" json:"-"`
	Archived            bool           `db:"archived" json:"archived"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
}

// Participant is one user's membership record in a conversation.
// UnreadCount must equal the number of messages created after LastReadAt
// that the user did not author.
type Participant struct {
	ConversationID int          `db:"conversation_id" json:"conversation_id"`
	UserID         int          `db:"user_id" json:"user_id"`
	UnreadCount    int          `db:"unread_count" json:"unread_count"`
	LastReadAt     sql.NullTime `db:"last_read_at" json:"last_read_at,omitempty"`
	Active         bool         `db:"active" json:"active"`
	Muted          bool         `db:"muted" json:"muted"`
	JoinedAt       time.Time    `db:"joined_at" json:"joined_at"`
}

// ConversationSummary is the per-user list view of a conversation.
type ConversationSummary struct {
	Conversation
	UnreadCount int `db:"unread_count" json:"unread_count"`
}
