package chat

import (
	"context"
	"errors"
	"time"

	"edu-chat-service/internal/models"
	"edu-chat-service/internal/observability"
	"edu-chat-service/internal/repositories"
	"edu-chat-service/internal/sequencer"
	"edu-chat-service/internal/ws"
)

// Broadcaster is the slice of the hub the service publishes through.
type Broadcaster interface {
	Publish(topic string, event models.Event)
	PublishToUser(userID int, event models.Event)
}

// Service implements the conversation operations: membership, message
// send/edit/delete, reactions, read state and pagination. All store
// mutations go through the repositories; the service holds no state of
// its own beyond its collaborators.
type Service struct {
	convRepo  repositories.ConversationRepository
	msgRepo   repositories.MessageRepository
	reactRepo repositories.ReactionRepository
	seq       *sequencer.Sequencer
	bus       Broadcaster

	retries int
	backoff time.Duration
}

// NewService constructs the conversation service.
func NewService(
	convRepo repositories.ConversationRepository,
	msgRepo repositories.MessageRepository,
	reactRepo repositories.ReactionRepository,
	seq *sequencer.Sequencer,
	bus Broadcaster,
	retries int,
	backoff time.Duration,
) *Service {
	if retries < 0 {
		retries = 0
	}
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	return &Service{
		convRepo:  convRepo,
		msgRepo:   msgRepo,
		reactRepo: reactRepo,
		seq:       seq,
		bus:       bus,
		retries:   retries,
		backoff:   backoff,
	}
}

// IsActiveParticipant satisfies ws.MembershipChecker.
func (s *Service) IsActiveParticipant(ctx context.Context, conversationID, userID int) (bool, error) {
	p, err := s.convRepo.GetParticipant(ctx, conversationID, userID)
	if errors.Is(err, repositories.ErrParticipantNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.Active, nil
}

func (s *Service) requireActive(ctx context.Context, conversationID, userID int) error {
	ok, err := s.IsActiveParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotParticipant
	}
	return nil
}

// GetOrCreateIndividual returns the 1:1 conversation between two users,
// creating it if needed. Safe under concurrent calls from both sides:
// the loser of the insert race observes the winner's row.
func (s *Service) GetOrCreateIndividual(ctx context.Context, userA, userB int) (models.Conversation, error) {
	if userA == userB {
		return models.Conversation{}, ErrSelfConversation
	}
	var conv models.Conversation
	err := withRetry(ctx, s.retries, s.backoff, func() error {
		var err error
		conv, _, err = s.convRepo.GetOrCreateIndividual(ctx, userA, userB)
		return err
	})
	return conv, err
}

// CreateGroup creates a group conversation owned by ownerID.
func (s *Service) CreateGroup(ctx context.Context, ownerID int, name, avatarURL string, memberIDs []int) (models.Conversation, error) {
	return s.convRepo.CreateGroup(ctx, ownerID, name, avatarURL, memberIDs)
}

// AddParticipant adds a user to a group conversation.
func (s *Service) AddParticipant(ctx context.Context, conversationID, actorID, userID int) error {
	conv, err := s.convRepo.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.Kind == models.KindIndividual {
		return ErrIndividualImmutable
	}
	if err := s.requireActive(ctx, conversationID, actorID); err != nil {
		return err
	}
	if err := s.convRepo.AddParticipant(ctx, conversationID, userID); err != nil {
		return err
	}
	s.bus.Publish(ws.ConversationTopic(conversationID), models.Event{
		Type:           models.EventPresence,
		ConversationID: conversationID,
		UserID:         userID,
		Online:         true,
		SentAt:         time.Now().UnixMilli(),
	})
	return nil
}

// RemoveParticipant soft-removes a user from a group conversation. Users
// may always remove themselves.
func (s *Service) RemoveParticipant(ctx context.Context, conversationID, actorID, userID int) error {
	conv, err := s.convRepo.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.Kind == models.KindIndividual {
		return ErrIndividualImmutable
	}
	if err := s.requireActive(ctx, conversationID, actorID); err != nil {
		return err
	}
	if err := s.convRepo.DeactivateParticipant(ctx, conversationID, userID); err != nil {
		if errors.Is(err, repositories.ErrParticipantNotFound) {
			return ErrNotParticipant
		}
		return err
	}
	s.bus.Publish(ws.ConversationTopic(conversationID), models.Event{
		Type:           models.EventPresence,
		ConversationID: conversationID,
		UserID:         userID,
		Online:         false,
		SentAt:         time.Now().UnixMilli(),
	})
	return nil
}

// SendMessage validates membership, allocates the next sequence number,
// commits the message with its unread side effects in one transaction
// and then fans the event out. A failed commit broadcasts nothing; other
// participants never observe partial state.
func (s *Service) SendMessage(ctx context.Context, conversationID, senderID int, content, msgType, attachmentURL string) (models.Message, error) {
	conv, err := s.convRepo.GetConversation(ctx, conversationID)
	if err != nil {
		return models.Message{}, err
	}
	if err := s.requireActive(ctx, conversationID, senderID); err != nil {
		return models.Message{}, err
	}
	if msgType == "" {
		msgType = models.MsgText
	}

	var msg models.Message
	err = withRetry(ctx, s.retries, s.backoff, func() error {
		seq, err := s.seq.Next(ctx, conversationID)
		if err != nil {
			return err
		}
		msg, err = s.msgRepo.CreateMessage(ctx, repositories.NewMessageParams{
			ConversationID: conversationID,
			Seq:            seq,
			SenderID:       senderID,
			Content:        content,
			MsgType:        msgType,
			AttachmentURL:  attachmentURL,
		})
		return err
	})
	if err != nil {
		return models.Message{}, err
	}

	observability.IncMessageSent(conv.Kind)
	s.bus.Publish(ws.ConversationTopic(conversationID), models.Event{
		Type:           models.EventMessage,
		ConversationID: conversationID,
		Message:        &msg,
		Seq:            msg.Seq,
	})
	_ = observability.PublishEvent(ctx, "chat_events.messages",
		observability.NewEnvelope("chat_events", "message_sent", msg), nil)
	return msg, nil
}

// EditMessage replaces a message's content. Sender only.
func (s *Service) EditMessage(ctx context.Context, conversationID, messageID, editorID int, content string) (models.Message, error) {
	msg, err := s.getOwnedMessage(ctx, conversationID, messageID, editorID)
	if err != nil {
		return models.Message{}, err
	}
	edited, err := s.msgRepo.EditMessage(ctx, msg.ID, content)
	if err != nil {
		return models.Message{}, err
	}
	s.bus.Publish(ws.ConversationTopic(conversationID), models.Event{
		Type:           models.EventEdit,
		ConversationID: conversationID,
		Message:        &edited,
		Seq:            edited.Seq,
	})
	return edited, nil
}

// DeleteMessage tombstones a message. Sender only. The sequence slot
// survives so clients that already received the message keep their order.
func (s *Service) DeleteMessage(ctx context.Context, conversationID, messageID, userID int) error {
	msg, err := s.getOwnedMessage(ctx, conversationID, messageID, userID)
	if err != nil {
		return err
	}
	if err := s.msgRepo.SoftDeleteMessage(ctx, msg.ID); err != nil {
		return err
	}
	s.bus.Publish(ws.ConversationTopic(conversationID), models.Event{
		Type:           models.EventDelete,
		ConversationID: conversationID,
		MessageID:      msg.ID,
		Seq:            msg.Seq,
	})
	return nil
}

func (s *Service) getOwnedMessage(ctx context.Context, conversationID, messageID, userID int) (models.Message, error) {
	msg, err := s.msgRepo.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if msg.ConversationID != conversationID {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	if msg.SenderID != userID {
		return models.Message{}, ErrNotSender
	}
	return msg, nil
}

// React sets the user's reaction on a message. Reacting twice with the
// same emoji is a no-op; a different emoji replaces the previous one.
func (s *Service) React(ctx context.Context, messageID, userID int, emoji string) ([]models.ReactionCount, error) {
	msg, err := s.msgRepo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.requireActive(ctx, msg.ConversationID, userID); err != nil {
		return nil, err
	}
	changed, err := s.reactRepo.Upsert(ctx, messageID, userID, emoji)
	if err != nil {
		return nil, err
	}
	return s.reactionCounts(ctx, msg, changed)
}

// Unreact removes the user's reaction if present.
func (s *Service) Unreact(ctx context.Context, messageID, userID int) ([]models.ReactionCount, error) {
	msg, err := s.msgRepo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.requireActive(ctx, msg.ConversationID, userID); err != nil {
		return nil, err
	}
	changed, err := s.reactRepo.Delete(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	return s.reactionCounts(ctx, msg, changed)
}

func (s *Service) reactionCounts(ctx context.Context, msg models.Message, changed bool) ([]models.ReactionCount, error) {
	counts, err := s.reactRepo.CountsForMessage(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	if changed {
		s.bus.Publish(ws.ConversationTopic(msg.ConversationID), models.Event{
			Type:           models.EventReaction,
			ConversationID: msg.ConversationID,
			MessageID:      msg.ID,
			Seq:            msg.Seq,
			Reactions:      counts,
		})
	}
	return counts, nil
}

// MarkRead zeroes the caller's unread counter and advances the read
// watermark. Idempotent.
func (s *Service) MarkRead(ctx context.Context, conversationID, userID int) error {
	err := s.convRepo.MarkRead(ctx, conversationID, userID)
	if errors.Is(err, repositories.ErrParticipantNotFound) {
		return ErrNotParticipant
	}
	return err
}

// GetMessages pages backwards by descending sequence number. The cursor
// is the lowest sequence returned; concurrent inserts never shift pages.
func (s *Service) GetMessages(ctx context.Context, conversationID, userID int, beforeSeq int64, limit int) ([]models.Message, int64, error) {
	if _, err := s.convRepo.GetConversation(ctx, conversationID); err != nil {
		return nil, 0, err
	}
	if err := s.requireActive(ctx, conversationID, userID); err != nil {
		return nil, 0, err
	}
	msgs, err := s.msgRepo.ListBefore(ctx, conversationID, beforeSeq, limit)
	if err != nil {
		return nil, 0, err
	}
	var next int64
	if len(msgs) > 0 {
		next = msgs[len(msgs)-1].Seq
	}
	return msgs, next, nil
}

// ListConversations returns the caller's conversation list with unread
// counters, newest activity first.
func (s *Service) ListConversations(ctx context.Context, userID int) ([]models.ConversationSummary, error) {
	return s.convRepo.ListForUser(ctx, userID)
}
