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

// MessageService is the slice of the chat service the message endpoints
// use.
type MessageService interface {
	SendMessage(ctx context.Context, conversationID, senderID int, content, msgType, attachmentURL string) (models.Message, error)
	EditMessage(ctx context.Context, conversationID, messageID, editorID int, content string) (models.Message, error)
	DeleteMessage(ctx context.Context, conversationID, messageID, userID int) error
	React(ctx context.Context, messageID, userID int, emoji string) ([]models.ReactionCount, error)
	Unreact(ctx context.Context, messageID, userID int) ([]models.ReactionCount, error)
	GetMessages(ctx context.Context, conversationID, userID int, beforeSeq int64, limit int) ([]models.Message, int64, error)
}

// MessageHandler manages message and reaction endpoints.
type MessageHandler struct {
	svc       MessageService
	directory identity.Directory
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(svc MessageService, directory identity.Directory) *MessageHandler {
	return &MessageHandler{svc: svc, directory: directory}
}

// Send stores a message and broadcasts it to the conversation topic.
func (h *MessageHandler) Send(c *gin.Context) {
	conversationID, ok := paramInt(c, "conversation_id")
	if !ok {
		return
	}

	var req struct {
		Content       string `json:"content" binding:"required"`
		Type          string `json:"type"`
		AttachmentURL string `json:"attachment_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	msg, err := h.svc.SendMessage(c.Request.Context(), conversationID, userID, req.Content, req.Type, req.AttachmentURL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// List pages backwards through the conversation by sequence number.
func (h *MessageHandler) List(c *gin.Context) {
	conversationID, ok := paramInt(c, "conversation_id")
	if !ok {
		return
	}

	beforeSeq, _ := strconv.ParseInt(c.DefaultQuery("before_seq", "0"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	userID := c.GetInt("userID")
	msgs, nextCursor, err := h.svc.GetMessages(c.Request.Context(), conversationID, userID, beforeSeq, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	senderIDs := make([]int, 0, len(msgs))
	seen := map[int]struct{}{}
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; ok {
			continue
		}
		seen[m.SenderID] = struct{}{}
		senderIDs = append(senderIDs, m.SenderID)
	}
	infos, err := h.directory.BulkDisplayInfo(c.Request.Context(), senderIDs)
	if err != nil {
		log.Printf("display info lookup failed: %v", err)
		infos = map[int]identity.DisplayInfo{}
	}

	type messageResponse struct {
		models.Message
		SenderName   string `json:"sender_name,omitempty"`
		SenderAvatar string `json:"sender_avatar,omitempty"`
	}
	responses := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		responses = append(responses, messageResponse{
			Message:      m,
			SenderName:   infos[m.SenderID].Name,
			SenderAvatar: infos[m.SenderID].AvatarURL,
		})
	}

	c.JSON(http.StatusOK, gin.H{"messages": responses, "next_cursor": nextCursor})
}

// Edit replaces a message's content. Sender only.
func (h *MessageHandler) Edit(c *gin.Context) {
	conversationID, ok := paramInt(c, "conversation_id")
	if !ok {
		return
	}
	messageID, ok := paramInt(c, "message_id")
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	msg, err := h.svc.EditMessage(c.Request.Context(), conversationID, messageID, userID, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// Delete tombstones a message. Sender only.
func (h *MessageHandler) Delete(c *gin.Context) {
	conversationID, ok := paramInt(c, "conversation_id")
	if !ok {
		return
	}
	messageID, ok := paramInt(c, "message_id")
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	if err := h.svc.DeleteMessage(c.Request.Context(), conversationID, messageID, userID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// React sets the caller's reaction on a message.
func (h *MessageHandler) React(c *gin.Context) {
	messageID, ok := paramInt(c, "message_id")
	if !ok {
		return
	}

	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	counts, err := h.svc.React(c.Request.Context(), messageID, userID, req.Emoji)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reactions": counts})
}

// Unreact removes the caller's reaction from a message.
func (h *MessageHandler) Unreact(c *gin.Context) {
	messageID, ok := paramInt(c, "message_id")
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	counts, err := h.svc.Unreact(c.Request.Context(), messageID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reactions": counts})
}
