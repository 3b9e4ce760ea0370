package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"edu-chat-service/internal/models"
)

// CallService is the slice of the call service the endpoints use.
type CallService interface {
	Initiate(ctx context.Context, conversationID, callerID int, receiverID *int, callType string) (models.CallRecord, error)
	MarkRinging(ctx context.Context, callID, userID int) (models.CallRecord, error)
	Answer(ctx context.Context, callID, userID int) (models.CallRecord, error)
	Reject(ctx context.Context, callID, userID int) (models.CallRecord, error)
	End(ctx context.Context, callID, userID int) (models.CallRecord, error)
	History(ctx context.Context, userID int, missedOnly bool) ([]models.CallRecord, error)
}

// CallHandler manages call-signaling endpoints.
type CallHandler struct {
	svc CallService
}

// NewCallHandler builds a CallHandler.
func NewCallHandler(svc CallService) *CallHandler {
	return &CallHandler{svc: svc}
}

var validCallTypes = map[string]bool{
	models.CallVoice: true,
	models.CallVideo: true,
	models.CallGroup: true,
}

// Initiate starts a call in a conversation. receiver_id is omitted for
// group calls.
func (h *CallHandler) Initiate(c *gin.Context) {
	conversationID, ok := paramInt(c, "conversation_id")
	if !ok {
		return
	}

	var req struct {
		ReceiverID *int   `json:"receiver_id"`
		CallType   string `json:"call_type" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !validCallTypes[req.CallType] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid call type"})
		return
	}

	userID := c.GetInt("userID")
	rec, err := h.svc.Initiate(c.Request.Context(), conversationID, userID, req.ReceiverID, req.CallType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// Ringing is the receiver's delivery acknowledgement.
func (h *CallHandler) Ringing(c *gin.Context) {
	h.transition(c, h.svc.MarkRinging)
}

// Answer accepts a ringing call.
func (h *CallHandler) Answer(c *gin.Context) {
	h.transition(c, h.svc.Answer)
}

// Reject declines a ringing call.
func (h *CallHandler) Reject(c *gin.Context) {
	h.transition(c, h.svc.Reject)
}

// End hangs up a call.
func (h *CallHandler) End(c *gin.Context) {
	h.transition(c, h.svc.End)
}

func (h *CallHandler) transition(c *gin.Context, op func(ctx context.Context, callID, userID int) (models.CallRecord, error)) {
	callID, ok := paramInt(c, "call_id")
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	rec, err := op(c.Request.Context(), callID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// History returns the caller's call history; ?missed=true narrows it to
// missed calls they received.
func (h *CallHandler) History(c *gin.Context) {
	userID := c.GetInt("userID")
	missedOnly := c.Query("missed") == "true"

	recs, err := h.svc.History(c.Request.Context(), userID, missedOnly)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": recs})
}
