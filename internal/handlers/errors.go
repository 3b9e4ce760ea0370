package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"edu-chat-service/internal/calls"
	"edu-chat-service/internal/chat"
	"edu-chat-service/internal/repositories"
)

// respondError maps domain errors to HTTP statuses. Anything unmapped is
// a store/internal failure the caller can retry.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repositories.ErrConversationNotFound),
		errors.Is(err, repositories.ErrMessageNotFound),
		errors.Is(err, repositories.ErrCallNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrNotParticipant),
		errors.Is(err, chat.ErrNotSender),
		errors.Is(err, calls.ErrNotCallParty):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, calls.ErrInvalidCallTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrSelfConversation),
		errors.Is(err, chat.ErrIndividualImmutable):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "request failed"})
	}
}
