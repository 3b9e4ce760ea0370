package ws

import "strconv"

// Topic names. Conversation topics and user queues are best-effort
// at-least-once fan-out; typing and presence frames travel on the same
// pipes but are ephemeral and may be dropped freely.
func ConversationTopic(conversationID int) string {
	return "conversation/" + strconv.Itoa(conversationID)
}

func UserQueue(userID int) string {
	return "user/" + strconv.Itoa(userID)
}
