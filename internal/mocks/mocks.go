package mocks

import (
	"context"
	"database/sql"
	"sync"

	"github.com/stretchr/testify/mock"

	"edu-chat-service/internal/identity"
	"edu-chat-service/internal/models"
	"edu-chat-service/internal/repositories"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) GetOrCreateIndividual(ctx context.Context, userA, userB int) (models.Conversation, bool, error) {
	args := m.Called(ctx, userA, userB)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Bool(1), args.Error(2)
}

func (m *ConversationRepositoryMock) CreateGroup(ctx context.Context, ownerID int, name, avatarURL string, memberIDs []int) (models.Conversation, error) {
	args := m.Called(ctx, ownerID, name, avatarURL, memberIDs)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) GetConversation(ctx context.Context, conversationID int) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) ListForUser(ctx context.Context, userID int) ([]models.ConversationSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ConversationSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ConversationSummary)
	}
	return list, args.Error(1)
}

func (m *ConversationRepositoryMock) GetParticipant(ctx context.Context, conversationID, userID int) (models.Participant, error) {
	args := m.Called(ctx, conversationID, userID)
	var p models.Participant
	if val := args.Get(0); val != nil {
		p = val.(models.Participant)
	}
	return p, args.Error(1)
}

func (m *ConversationRepositoryMock) ActiveParticipants(ctx context.Context, conversationID int) ([]models.Participant, error) {
	args := m.Called(ctx, conversationID)
	var ps []models.Participant
	if val := args.Get(0); val != nil {
		ps = val.([]models.Participant)
	}
	return ps, args.Error(1)
}

func (m *ConversationRepositoryMock) AddParticipant(ctx context.Context, conversationID, userID int) error {
	args := m.Called(ctx, conversationID, userID)
	return args.Error(0)
}

func (m *ConversationRepositoryMock) DeactivateParticipant(ctx context.Context, conversationID, userID int) error {
	args := m.Called(ctx, conversationID, userID)
	return args.Error(0)
}

func (m *ConversationRepositoryMock) MarkRead(ctx context.Context, conversationID, userID int) error {
	args := m.Called(ctx, conversationID, userID)
	return args.Error(0)
}

func (m *ConversationRepositoryMock) NextSeq(ctx context.Context, conversationID int) (int64, error) {
	args := m.Called(ctx, conversationID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *ConversationRepositoryMock) ReconcileSeq(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, p repositories.NewMessageParams) (models.Message, error) {
	args := m.Called(ctx, p)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListBefore(ctx context.Context, conversationID int, beforeSeq int64, limit int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, beforeSeq, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) EditMessage(ctx context.Context, messageID int, content string) (models.Message, error) {
	args := m.Called(ctx, messageID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) SoftDeleteMessage(ctx context.Context, messageID int) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) CountAfter(ctx context.Context, conversationID int, after sql.NullTime, excludeSender int) (int, error) {
	args := m.Called(ctx, conversationID, after, excludeSender)
	return args.Int(0), args.Error(1)
}

type ReactionRepositoryMock struct {
	mock.Mock
}

func (m *ReactionRepositoryMock) Upsert(ctx context.Context, messageID, userID int, emoji string) (bool, error) {
	args := m.Called(ctx, messageID, userID, emoji)
	return args.Bool(0), args.Error(1)
}

func (m *ReactionRepositoryMock) Delete(ctx context.Context, messageID, userID int) (bool, error) {
	args := m.Called(ctx, messageID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ReactionRepositoryMock) CountsForMessage(ctx context.Context, messageID int) ([]models.ReactionCount, error) {
	args := m.Called(ctx, messageID)
	var counts []models.ReactionCount
	if val := args.Get(0); val != nil {
		counts = val.([]models.ReactionCount)
	}
	return counts, args.Error(1)
}

type CallRepositoryMock struct {
	mock.Mock
}

func (m *CallRepositoryMock) CreateCall(ctx context.Context, conversationID, callerID int, receiverID *int, callType string) (models.CallRecord, error) {
	args := m.Called(ctx, conversationID, callerID, receiverID, callType)
	var rec models.CallRecord
	if val := args.Get(0); val != nil {
		rec = val.(models.CallRecord)
	}
	return rec, args.Error(1)
}

func (m *CallRepositoryMock) GetCall(ctx context.Context, callID int) (models.CallRecord, error) {
	args := m.Called(ctx, callID)
	var rec models.CallRecord
	if val := args.Get(0); val != nil {
		rec = val.(models.CallRecord)
	}
	return rec, args.Error(1)
}

func (m *CallRepositoryMock) CompareAndSetStatus(ctx context.Context, callID int, upd repositories.CallStatusUpdate) (models.CallRecord, error) {
	args := m.Called(ctx, callID, upd)
	var rec models.CallRecord
	if val := args.Get(0); val != nil {
		rec = val.(models.CallRecord)
	}
	return rec, args.Error(1)
}

func (m *CallRepositoryMock) History(ctx context.Context, userID int, missedOnly bool) ([]models.CallRecord, error) {
	args := m.Called(ctx, userID, missedOnly)
	var recs []models.CallRecord
	if val := args.Get(0); val != nil {
		recs = val.([]models.CallRecord)
	}
	return recs, args.Error(1)
}

type DirectoryMock struct {
	mock.Mock
}

func (m *DirectoryMock) GetDisplayInfo(ctx context.Context, userID int) (identity.DisplayInfo, error) {
	args := m.Called(ctx, userID)
	var info identity.DisplayInfo
	if val := args.Get(0); val != nil {
		info = val.(identity.DisplayInfo)
	}
	return info, args.Error(1)
}

func (m *DirectoryMock) BulkDisplayInfo(ctx context.Context, userIDs []int) (map[int]identity.DisplayInfo, error) {
	args := m.Called(ctx, userIDs)
	var infos map[int]identity.DisplayInfo
	if val := args.Get(0); val != nil {
		infos = val.(map[int]identity.DisplayInfo)
	}
	return infos, args.Error(1)
}

// BroadcastRecorder captures published events for assertions.
type BroadcastRecorder struct {
	mu     sync.Mutex
	Topics []string
	Events []models.Event
}

func (r *BroadcastRecorder) Publish(topic string, event models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Topics = append(r.Topics, topic)
	r.Events = append(r.Events, event)
}

func (r *BroadcastRecorder) PublishToUser(userID int, event models.Event) {
	r.Publish("user-queue", event)
}

// Published returns a copy of the recorded events.
func (r *BroadcastRecorder) Published() []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Event, len(r.Events))
	copy(out, r.Events)
	return out
}
