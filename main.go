package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"edu-chat-service/internal/calls"
	"edu-chat-service/internal/chat"
	"edu-chat-service/internal/config"
	"edu-chat-service/internal/db"
	"edu-chat-service/internal/handlers"
	"edu-chat-service/internal/identity"
	"edu-chat-service/internal/middleware"
	"edu-chat-service/internal/observability"
	"edu-chat-service/internal/rabbitmq"
	"edu-chat-service/internal/repositories"
	"edu-chat-service/internal/sequencer"
	"edu-chat-service/internal/ws"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	shutdownTracing := observability.SetupTracing(ctx, cfg.OTLPEndpoint, cfg.Environment)
	defer shutdownTracing(ctx)

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.Printf("event publisher mode=%s", rabbitmq.Mode(publisher))

	convRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	reactionRepo := repositories.NewReactionRepo(database)
	callRepo := repositories.NewCallRepo(database)

	seq := sequencer.New(convRepo)
	if err := seq.Reconcile(ctx); err != nil {
		log.Fatalf("failed to reconcile sequence counters: %v", err)
	}

	directory := identity.NewHTTPDirectory(cfg.IdentityBaseURL)
	verifier := middleware.NewJWTVerifier(cfg.JWTSecret)

	// The hub needs a membership checker and the services need the hub;
	// wire the hub first with the service filled in after construction.
	var chatService *chat.Service
	hub := ws.NewHub(ws.MembershipCheckerFunc(func(ctx context.Context, conversationID, userID int) (bool, error) {
		return chatService.IsActiveParticipant(ctx, conversationID, userID)
	}), cfg.PresenceGrace, cfg.SessionQueueSize)

	chatService = chat.NewService(convRepo, messageRepo, reactionRepo, seq, hub, cfg.StoreRetries, cfg.StoreRetryBackoff)
	callService := calls.NewService(callRepo, convRepo, hub, cfg.RingTimeout)

	conversationHandler := handlers.NewConversationHandler(chatService, directory)
	messageHandler := handlers.NewMessageHandler(chatService, directory)
	callHandler := handlers.NewCallHandler(callService)
	wsHandler := ws.NewHandler(hub, verifier, cfg.SessionQueueSize)

	router := gin.Default()
	router.Use(otelgin.Middleware("edu-chat-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.POST("/conversations/individual", authMiddleware, conversationHandler.StartIndividual)
	router.POST("/conversations/group", authMiddleware, conversationHandler.CreateGroup)
	router.GET("/conversations", authMiddleware, conversationHandler.List)
	router.POST("/conversations/:conversation_id/participants", authMiddleware, conversationHandler.AddParticipant)
	router.DELETE("/conversations/:conversation_id/participants/:user_id", authMiddleware, conversationHandler.RemoveParticipant)
	router.POST("/conversations/:conversation_id/read", authMiddleware, conversationHandler.MarkRead)

	router.GET("/conversations/:conversation_id/messages", authMiddleware, messageHandler.List)
	router.POST("/conversations/:conversation_id/messages", authMiddleware, messageHandler.Send)
	router.PATCH("/conversations/:conversation_id/messages/:message_id", authMiddleware, messageHandler.Edit)
	router.DELETE("/conversations/:conversation_id/messages/:message_id", authMiddleware, messageHandler.Delete)
	router.PUT("/messages/:message_id/reactions", authMiddleware, messageHandler.React)
	router.DELETE("/messages/:message_id/reactions", authMiddleware, messageHandler.Unreact)

	router.POST("/conversations/:conversation_id/calls", authMiddleware, callHandler.Initiate)
	router.POST("/calls/:call_id/ringing", authMiddleware, callHandler.Ringing)
	router.POST("/calls/:call_id/answer", authMiddleware, callHandler.Answer)
	router.POST("/calls/:call_id/reject", authMiddleware, callHandler.Reject)
	router.POST("/calls/:call_id/end", authMiddleware, callHandler.End)
	router.GET("/calls", authMiddleware, callHandler.History)

	router.GET("/ws", wsHandler.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
