package models

import (
	"database/sql"
	"time"
)

// Message content types.
const (
	MsgText  = "TEXT"
	MsgImage = "IMAGE"
	MsgFile  = "FILE"
	MsgVideo = "VIDEO"
	MsgAudio = "AUDIO"
)

// Delivery statuses. Monotonic: SENT -> DELIVERED -> READ.
const (
	StatusSent      = "SENT"
	StatusDelivered = "DELIVERED"
	StatusRead      = "READ"
)

// Message is one entry in a conversation's sequence. Seq is unique and
// strictly increasing within the conversation; deleted messages keep
// their slot as a tombstone so ordering survives for delivered clients.
type Message struct {
	ID             int            `db:"id" json:"id"`
	ConversationID int            `db:"conversation_id" json:"conversation_id"`
	Seq            int64          `db:"seq" json:"seq"`
	SenderID       int            `db:"sender_id" json:"sender_id"`
	Content        string         `db:"content" json:"content"`
	MsgType        string         `db:"msg_type" json:"msg_type"`
	Status         string         `db:"status" json:"status"`
	AttachmentURL  sql.NullString `db:"attachment_url" json:"attachment_url,omitempty"`
	Deleted        bool           `db:"deleted" json:"deleted"`
	Edited         bool           `db:"edited" json:"edited"`
	EditedAt       sql.NullTime   `db:"edited_at" json:"edited_at,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

// Reaction is one user's active reaction on a message. The primary key
// (message_id, user_id) makes re-reacting a replace, never a duplicate.
type Reaction struct {
	MessageID int       `db:"message_id" json:"message_id"`
	UserID    int       `db:"user_id" json:"user_id"`
	Emoji     string    `db:"emoji" json:"emoji"`
	ReactedAt time.Time `db:"reacted_at" json:"reacted_at"`
}

// ReactionCount aggregates reactions on a message by emoji.
type ReactionCount struct {
	Emoji string `db:"emoji" json:"emoji"`
	Count int    `db:"count" json:"count"`
}
