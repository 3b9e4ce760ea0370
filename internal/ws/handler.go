package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"edu-chat-service/internal/observability"
)

// TokenValidator resolves a bearer token to a user id.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (int, error)
}

// Handler upgrades HTTP requests to websocket sessions.
type Handler struct {
	hub       *Hub
	validator TokenValidator
	queueSize int
}

// NewHandler constructs a websocket Handler.
func NewHandler(hub *Hub, validator TokenValidator, queueSize int) *Handler {
	return &Handler{hub: hub, validator: validator, queueSize: queueSize}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates, upgrades the connection and registers a session.
// Browsers cannot set headers on websocket requests, so the token is also
// accepted as a query parameter.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("edu-chat-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
	} else {
		parts := strings.SplitN(token, " ", 2)
		if len(parts) == 2 {
			token = parts[1]
		}
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	userID, err := h.validator.Validate(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		SessionID:   uuid.NewString(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	session := newSession(h.hub, conn, info, h.queueSize)
	h.hub.Register(session)
	go session.writePump()
	go session.readPump()

	_ = observability.PublishEvent(ctx, "ws_events.sessions",
		observability.NewEnvelope("ws_events", "ws_connect", map[string]interface{}{
			"session_id": info.SessionID,
			"user_id":    info.UserID,
			"device_id":  info.DeviceID,
			"ip":         info.IP,
		}), observability.BuildHeaders(info.RequestID, info.TraceID))
}
