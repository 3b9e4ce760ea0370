package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"edu-chat-service/internal/chat"
	"edu-chat-service/internal/identity"
	"edu-chat-service/internal/mocks"
	"edu-chat-service/internal/models"
	"edu-chat-service/internal/repositories"
)

const testUserID = 1

func newTestRouter(register func(r *gin.Engine)) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set("userID", testUserID) })
	register(r)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStartIndividual(t *testing.T) {
	svc := new(mocks.ConversationServiceMock)
	svc.On("GetOrCreateIndividual", mock.Anything, testUserID, 2).
		Return(models.Conversation{ID: 9, Kind: models.KindIndividual}, nil).Once()

	h := NewConversationHandler(svc, new(mocks.DirectoryMock))
	r := newTestRouter(func(r *gin.Engine) { r.POST("/conversations/individual", h.StartIndividual) })

	w := doJSON(t, r, http.MethodPost, "/conversations/individual", gin.H{"peer_id": 2})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"conversation_id": 9}`, w.Body.String())
	svc.AssertExpectations(t)
}

func TestStartIndividualWithSelf(t *testing.T) {
	svc := new(mocks.ConversationServiceMock)
	svc.On("GetOrCreateIndividual", mock.Anything, testUserID, testUserID).
		Return(models.Conversation{}, chat.ErrSelfConversation).Once()

	h := NewConversationHandler(svc, new(mocks.DirectoryMock))
	r := newTestRouter(func(r *gin.Engine) { r.POST("/conversations/individual", h.StartIndividual) })

	w := doJSON(t, r, http.MethodPost, "/conversations/individual", gin.H{"peer_id": testUserID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartIndividualMissingPeer(t *testing.T) {
	h := NewConversationHandler(new(mocks.ConversationServiceMock), new(mocks.DirectoryMock))
	r := newTestRouter(func(r *gin.Engine) { r.POST("/conversations/individual", h.StartIndividual) })

	w := doJSON(t, r, http.MethodPost, "/conversations/individual", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateGroup(t *testing.T) {
	svc := new(mocks.ConversationServiceMock)
	svc.On("CreateGroup", mock.Anything, testUserID, "study group", "", []int{2, 3}).
		Return(models.Conversation{ID: 11, Kind: models.KindGroup}, nil).Once()

	h := NewConversationHandler(svc, new(mocks.DirectoryMock))
	r := newTestRouter(func(r *gin.Engine) { r.POST("/conversations/group", h.CreateGroup) })

	w := doJSON(t, r, http.MethodPost, "/conversations/group", gin.H{
		"name":       "study group",
		"member_ids": []int{2, 3},
	})
	assert.Equal(t, http.StatusCreated, w.Code)
	svc.AssertExpectations(t)
}

func TestListDecoratesSenderNames(t *testing.T) {
	svc := new(mocks.ConversationServiceMock)
	svc.On("ListConversations", mock.Anything, testUserID).Return([]models.ConversationSummary{
		{
			Conversation: models.Conversation{
				ID:                  5,
				Kind:                models.KindIndividual,
				LastMessageSenderID: sql.NullInt64{Int64: 2, Valid: true},
			},
			UnreadCount: 3,
		},
	}, nil).Once()

	directory := new(mocks.DirectoryMock)
	directory.On("BulkDisplayInfo", mock.Anything, []int{2}).
		Return(map[int]identity.DisplayInfo{2: {UserID: 2, Name: "Dana"}}, nil).Once()

	h := NewConversationHandler(svc, directory)
	r := newTestRouter(func(r *gin.Engine) { r.GET("/conversations", h.List) })

	w := doJSON(t, r, http.MethodGet, "/conversations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"last_sender_name":"Dana"`)
	assert.Contains(t, w.Body.String(), `"unread_count":3`)
	directory.AssertExpectations(t)
}

func TestListDegradesOnDirectoryOutage(t *testing.T) {
	svc := new(mocks.ConversationServiceMock)
	svc.On("ListConversations", mock.Anything, testUserID).Return([]models.ConversationSummary{
		{Conversation: models.Conversation{
			ID:                  5,
			LastMessageSenderID: sql.NullInt64{Int64: 2, Valid: true},
		}},
	}, nil).Once()

	directory := new(mocks.DirectoryMock)
	directory.On("BulkDisplayInfo", mock.Anything, mock.Anything).
		Return(nil, errors.New("directory unreachable")).Once()

	h := NewConversationHandler(svc, directory)
	r := newTestRouter(func(r *gin.Engine) { r.GET("/conversations", h.List) })

	w := doJSON(t, r, http.MethodGet, "/conversations", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "last_sender_name")
}

func TestAddParticipantToIndividual(t *testing.T) {
	svc := new(mocks.ConversationServiceMock)
	svc.On("AddParticipant", mock.Anything, 5, testUserID, 3).
		Return(chat.ErrIndividualImmutable).Once()

	h := NewConversationHandler(svc, new(mocks.DirectoryMock))
	r := newTestRouter(func(r *gin.Engine) {
		r.POST("/conversations/:conversation_id/participants", h.AddParticipant)
	})

	w := doJSON(t, r, http.MethodPost, "/conversations/5/participants", gin.H{"user_id": 3})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRemoveParticipant(t *testing.T) {
	svc := new(mocks.ConversationServiceMock)
	svc.On("RemoveParticipant", mock.Anything, 5, testUserID, 3).Return(nil).Once()

	h := NewConversationHandler(svc, new(mocks.DirectoryMock))
	r := newTestRouter(func(r *gin.Engine) {
		r.DELETE("/conversations/:conversation_id/participants/:user_id", h.RemoveParticipant)
	})

	w := doJSON(t, r, http.MethodDelete, "/conversations/5/participants/3", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	svc.AssertExpectations(t)
}

func TestMarkReadNotParticipant(t *testing.T) {
	svc := new(mocks.ConversationServiceMock)
	svc.On("MarkRead", mock.Anything, 5, testUserID).Return(chat.ErrNotParticipant).Once()

	h := NewConversationHandler(svc, new(mocks.DirectoryMock))
	r := newTestRouter(func(r *gin.Engine) {
		r.POST("/conversations/:conversation_id/read", h.MarkRead)
	})

	w := doJSON(t, r, http.MethodPost, "/conversations/5/read", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMarkReadUnknownConversation(t *testing.T) {
	svc := new(mocks.ConversationServiceMock)
	svc.On("MarkRead", mock.Anything, 99, testUserID).
		Return(repositories.ErrConversationNotFound).Once()

	h := NewConversationHandler(svc, new(mocks.DirectoryMock))
	r := newTestRouter(func(r *gin.Engine) {
		r.POST("/conversations/:conversation_id/read", h.MarkRead)
	})

	w := doJSON(t, r, http.MethodPost, "/conversations/99/read", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBadConversationIDParam(t *testing.T) {
	h := NewConversationHandler(new(mocks.ConversationServiceMock), new(mocks.DirectoryMock))
	r := newTestRouter(func(r *gin.Engine) {
		r.POST("/conversations/:conversation_id/read", h.MarkRead)
	})

	w := doJSON(t, r, http.MethodPost, "/conversations/abc/read", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
