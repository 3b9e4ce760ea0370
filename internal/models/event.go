package models

// Event types pushed over the websocket fan-out and mirrored to the broker.
const (
	EventMessage  = "MESSAGE"
	EventEdit     = "EDIT"
	EventDelete   = "DELETE"
	EventReaction = "REACTION"
	EventTyping   = "TYPING"
	EventPresence = "PRESENCE"

	EventCallInitiated = "CALL_INITIATED"
	EventCallRinging   = "CALL_RINGING"
	EventCallAccepted  = "CALL_ACCEPTED"
	EventCallRejected  = "CALL_REJECTED"
	EventCallMissed    = "CALL_MISSED"
	EventCallEnded     = "CALL_ENDED"
)

// Event is the envelope broadcast to subscribers of a topic.
type Event struct {
	Type           string          `json:"type"`
	ConversationID int             `json:"conversation_id,omitempty"`
	Message        *Message        `json:"message,omitempty"`
	MessageID      int             `json:"message_id,omitempty"`
	Seq            int64           `json:"seq,omitempty"`
	Call           *CallRecord     `json:"call,omitempty"`
	Reactions      []ReactionCount `json:"reactions,omitempty"`
	UserID         int             `json:"user_id,omitempty"`
	// Typing and Online are always serialized: the false frames
	// ("stopped typing", "went offline") are the ones consumers act on.
	Typing bool `json:"typing"`
	Online bool `json:"online"`
	// SentAt is a per-sender unix-millis stamp for ephemeral events.
	// Consumers keep the highest stamp seen per sender and ignore older
	// ones, so late typing frames cannot resurrect stale state.
	SentAt int64 `json:"sent_at,omitempty"`
}
