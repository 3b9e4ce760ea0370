package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"edu-chat-service/internal/models"
)

type ConversationServiceMock struct {
	mock.Mock
}

func (m *ConversationServiceMock) GetOrCreateIndividual(ctx context.Context, userA, userB int) (models.Conversation, error) {
	args := m.Called(ctx, userA, userB)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationServiceMock) CreateGroup(ctx context.Context, ownerID int, name, avatarURL string, memberIDs []int) (models.Conversation, error) {
	args := m.Called(ctx, ownerID, name, avatarURL, memberIDs)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationServiceMock) AddParticipant(ctx context.Context, conversationID, actorID, userID int) error {
	args := m.Called(ctx, conversationID, actorID, userID)
	return args.Error(0)
}

func (m *ConversationServiceMock) RemoveParticipant(ctx context.Context, conversationID, actorID, userID int) error {
	args := m.Called(ctx, conversationID, actorID, userID)
	return args.Error(0)
}

func (m *ConversationServiceMock) MarkRead(ctx context.Context, conversationID, userID int) error {
	args := m.Called(ctx, conversationID, userID)
	return args.Error(0)
}

func (m *ConversationServiceMock) ListConversations(ctx context.Context, userID int) ([]models.ConversationSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ConversationSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ConversationSummary)
	}
	return list, args.Error(1)
}

type MessageServiceMock struct {
	mock.Mock
}

func (m *MessageServiceMock) SendMessage(ctx context.Context, conversationID, senderID int, content, msgType, attachmentURL string) (models.Message, error) {
	args := m.Called(ctx, conversationID, senderID, content, msgType, attachmentURL)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageServiceMock) EditMessage(ctx context.Context, conversationID, messageID, editorID int, content string) (models.Message, error) {
	args := m.Called(ctx, conversationID, messageID, editorID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageServiceMock) DeleteMessage(ctx context.Context, conversationID, messageID, userID int) error {
	args := m.Called(ctx, conversationID, messageID, userID)
	return args.Error(0)
}

func (m *MessageServiceMock) React(ctx context.Context, messageID, userID int, emoji string) ([]models.ReactionCount, error) {
	args := m.Called(ctx, messageID, userID, emoji)
	var counts []models.ReactionCount
	if val := args.Get(0); val != nil {
		counts = val.([]models.ReactionCount)
	}
	return counts, args.Error(1)
}

func (m *MessageServiceMock) Unreact(ctx context.Context, messageID, userID int) ([]models.ReactionCount, error) {
	args := m.Called(ctx, messageID, userID)
	var counts []models.ReactionCount
	if val := args.Get(0); val != nil {
		counts = val.([]models.ReactionCount)
	}
	return counts, args.Error(1)
}

func (m *MessageServiceMock) GetMessages(ctx context.Context, conversationID, userID int, beforeSeq int64, limit int) ([]models.Message, int64, error) {
	args := m.Called(ctx, conversationID, userID, beforeSeq, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Get(1).(int64), args.Error(2)
}

type CallServiceMock struct {
	mock.Mock
}

func (m *CallServiceMock) Initiate(ctx context.Context, conversationID, callerID int, receiverID *int, callType string) (models.CallRecord, error) {
	args := m.Called(ctx, conversationID, callerID, receiverID, callType)
	var rec models.CallRecord
	if val := args.Get(0); val != nil {
		rec = val.(models.CallRecord)
	}
	return rec, args.Error(1)
}

func (m *CallServiceMock) MarkRinging(ctx context.Context, callID, userID int) (models.CallRecord, error) {
	args := m.Called(ctx, callID, userID)
	var rec models.CallRecord
	if val := args.Get(0); val != nil {
		rec = val.(models.CallRecord)
	}
	return rec, args.Error(1)
}

func (m *CallServiceMock) Answer(ctx context.Context, callID, userID int) (models.CallRecord, error) {
	args := m.Called(ctx, callID, userID)
	var rec models.CallRecord
	if val := args.Get(0); val != nil {
		rec = val.(models.CallRecord)
	}
	return rec, args.Error(1)
}

func (m *CallServiceMock) Reject(ctx context.Context, callID, userID int) (models.CallRecord, error) {
	args := m.Called(ctx, callID, userID)
	var rec models.CallRecord
	if val := args.Get(0); val != nil {
		rec = val.(models.CallRecord)
	}
	return rec, args.Error(1)
}

func (m *CallServiceMock) End(ctx context.Context, callID, userID int) (models.CallRecord, error) {
	args := m.Called(ctx, callID, userID)
	var rec models.CallRecord
	if val := args.Get(0); val != nil {
		rec = val.(models.CallRecord)
	}
	return rec, args.Error(1)
}

func (m *CallServiceMock) History(ctx context.Context, userID int, missedOnly bool) ([]models.CallRecord, error) {
	args := m.Called(ctx, userID, missedOnly)
	var recs []models.CallRecord
	if val := args.Get(0); val != nil {
		recs = val.([]models.CallRecord)
	}
	return recs, args.Error(1)
}
