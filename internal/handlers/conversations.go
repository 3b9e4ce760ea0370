package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"edu-chat-service/internal/identity"
	"edu-chat-service/internal/models"
)

// ConversationService is the slice of the chat service the conversation
// endpoints use.
type ConversationService interface {
	GetOrCreateIndividual(ctx context.Context, userA, userB int) (models.Conversation, error)
	CreateGroup(ctx context.Context, ownerID int, name, avatarURL string, memberIDs []int) (models.Conversation, error)
	AddParticipant(ctx context.Context, conversationID, actorID, userID int) error
	RemoveParticipant(ctx context.Context, conversationID, actorID, userID int) error
	MarkRead(ctx context.Context, conversationID, userID int) error
	ListConversations(ctx context.Context, userID int) ([]models.ConversationSummary, error)
}

// ConversationHandler manages conversation and membership endpoints.
type ConversationHandler struct {
	svc       ConversationService
	directory identity.Directory
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(svc ConversationService, directory identity.Directory) *ConversationHandler {
	return &ConversationHandler{svc: svc, directory: directory}
}

// StartIndividual creates or returns the 1:1 conversation with a peer.
func (h *ConversationHandler) StartIndividual(c *gin.Context) {
	var req struct {
		PeerID int `json:"peer_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	conv, err := h.svc.GetOrCreateIndividual(c.Request.Context(), userID, req.PeerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": conv.ID})
}

// CreateGroup creates a group conversation.
func (h *ConversationHandler) CreateGroup(c *gin.Context) {
	var req struct {
		Name      string `json:"name" binding:"required"`
		AvatarURL string `json:"avatar_url"`
		MemberIDs []int  `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	conv, err := h.svc.CreateGroup(c.Request.Context(), userID, req.Name, req.AvatarURL, req.MemberIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

// List returns the caller's conversations decorated with peer display
// info. A directory outage degrades to undecorated summaries rather than
// failing the list.
func (h *ConversationHandler) List(c *gin.Context) {
	userID := c.GetInt("userID")

	convs, err := h.svc.ListConversations(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	senderIDs := make([]int, 0, len(convs))
	seen := map[int]struct{}{}
	for _, conv := range convs {
		if !conv.LastMessageSenderID.Valid {
			continue
		}
		id := int(conv.LastMessageSenderID.Int64)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		senderIDs = append(senderIDs, id)
	}

	infos, err := h.directory.BulkDisplayInfo(c.Request.Context(), senderIDs)
	if err != nil {
		log.Printf("display info lookup failed: %v", err)
		infos = map[int]identity.DisplayInfo{}
	}

	type conversationResponse struct {
		models.ConversationSummary
		LastSenderName string `json:"last_sender_name,omitempty"`
	}
	responses := make([]conversationResponse, 0, len(convs))
	for _, conv := range convs {
		resp := conversationResponse{ConversationSummary: conv}
		if conv.LastMessageSenderID.Valid {
			resp.LastSenderName = infos[int(conv.LastMessageSenderID.Int64)].Name
		}
		responses = append(responses, resp)
	}

	c.JSON(http.StatusOK, gin.H{"conversations": responses})
}

// AddParticipant adds a user to a group conversation.
func (h *ConversationHandler) AddParticipant(c *gin.Context) {
	conversationID, ok := paramInt(c, "conversation_id")
	if !ok {
		return
	}
	var req struct {
		UserID int `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actorID := c.GetInt("userID")
	if err := h.svc.AddParticipant(c.Request.Context(), conversationID, actorID, req.UserID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveParticipant soft-removes a user from a group conversation.
func (h *ConversationHandler) RemoveParticipant(c *gin.Context) {
	conversationID, ok := paramInt(c, "conversation_id")
	if !ok {
		return
	}
	targetID, ok := paramInt(c, "user_id")
	if !ok {
		return
	}

	actorID := c.GetInt("userID")
	if err := h.svc.RemoveParticipant(c.Request.Context(), conversationID, actorID, targetID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkRead zeroes the caller's unread counter for the conversation.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	conversationID, ok := paramInt(c, "conversation_id")
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	if err := h.svc.MarkRead(c.Request.Context(), conversationID, userID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func paramInt(c *gin.Context, name string) (int, bool) {
	val, err := strconv.Atoi(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return val, true
}
