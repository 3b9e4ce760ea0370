package chat

import "errors"

var (
	// ErrNotParticipant means the actor is not an active member of the
	// conversation.
	ErrNotParticipant = errors.New("not a conversation participant")
	// ErrNotSender means the actor is a participant but only the
	// original sender may perform the operation.
	ErrNotSender = errors.New("only the sender may modify a message")
	// ErrSelfConversation rejects a 1:1 conversation with oneself.
	ErrSelfConversation = errors.New("cannot start a conversation with yourself")
	// ErrIndividualImmutable rejects membership changes on 1:1 threads.
	ErrIndividualImmutable = errors.New("membership of an individual conversation cannot change")
)
