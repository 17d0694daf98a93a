package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"mentorship-chat-service/internal/auth"
	"mentorship-chat-service/internal/chat"
	"mentorship-chat-service/internal/config"
	"mentorship-chat-service/internal/db"
	"mentorship-chat-service/internal/handlers"
	"mentorship-chat-service/internal/middleware"
	"mentorship-chat-service/internal/observability"
	"mentorship-chat-service/internal/push"
	"mentorship-chat-service/internal/rabbitmq"
	"mentorship-chat-service/internal/repositories"
	"mentorship-chat-service/internal/telemetry"
	"mentorship-chat-service/internal/ws"
)

const serviceName = "mentorship-chat-service"

func main() {
	cfg := config.Load()
	ctx := context.Background()

	shutdownTracer, err := telemetry.InitTracer(ctx, serviceName, cfg.OTLPEndpoint, cfg.Environment)
	if err != nil {
		log.Printf("tracing disabled: %v", err)
	} else {
		defer func() {
			_ = shutdownTracer(context.Background())
		}()
	}

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	redisClient := newRedisClient(cfg.RedisURL)

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer auditPublisher.Close()
	log.Printf("audit publisher mode=%s", rabbitmq.PublisherMode(auditPublisher))
	emitter := telemetry.NewAuditEmitter(auditPublisher, "audit.chat", serviceName, cfg.Environment)

	if cfg.AMQPURL != "" {
		eventPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Printf("event publishing disabled: %v", err)
		} else {
			observability.SetPublisher(eventPublisher)
			defer eventPublisher.Close()
		}
	}

	conversationRepo := repositories.NewConversationRepo(database)
	participantRepo := repositories.NewParticipantRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	userRepo := repositories.NewUserRepo(database)

	verifier := auth.NewVerifier(cfg.JWTSecret, userRepo)
	hub := ws.NewHub()

	pusher := push.NewExpoPusher(cfg.PushEndpoint)
	var enqueuer push.Enqueuer
	if cfg.RedisURL != "" {
		redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			log.Printf("push queue disabled, sending inline: %v", err)
		} else {
			client := asynq.NewClient(redisOpt)
			defer client.Close()
			enqueuer = client

			srv := asynq.NewServer(redisOpt, asynq.Config{Concurrency: 5})
			mux := asynq.NewServeMux()
			push.RegisterHandlers(mux, pusher)
			go func() {
				if err := srv.Run(mux); err != nil {
					log.Printf("push worker stopped: %v", err)
				}
			}()
		}
	}
	dispatcher := push.NewDispatcher(userRepo, pusher, enqueuer)

	typing := chat.NewTypingTracker(chat.NewTypingStore(redisClient), participantRepo, hub)
	presence := chat.NewPresenceTracker(conversationRepo, participantRepo, hub, chat.NewLastSeenCache(redisClient))
	pipeline := chat.NewPipeline(conversationRepo, participantRepo, messageRepo, hub, typing, dispatcher)
	reactions := chat.NewReactionManager(pipeline)
	calls := chat.NewCallRelay(hub)

	wsHandler := ws.NewHandler(hub, verifier, ws.Services{
		Presence:  presence,
		Typing:    typing,
		Pipeline:  pipeline,
		Reactions: reactions,
		Calls:     calls,
	})
	conversationHandler := handlers.NewConversationHandler(conversationRepo, participantRepo, messageRepo, userRepo, pipeline, emitter)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.GET("/conversations", authMiddleware, conversationHandler.ListConversations)
	router.POST("/conversations/start", authMiddleware, conversationHandler.StartConversation)
	router.GET("/conversations/:conversation_id/messages", authMiddleware, conversationHandler.GetConversationMessages)
	router.GET("/conversations/:conversation_id/participants", authMiddleware, conversationHandler.GetConversationParticipants)
	router.POST("/conversations/:conversation_id/messages/:message_id/pin", authMiddleware, conversationHandler.PinMessage)
	router.DELETE("/conversations/:conversation_id/messages/:message_id/pin", authMiddleware, conversationHandler.UnpinMessage)

	router.GET("/ws", wsHandler.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(router, emitter, cfg.DebugRoutes)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func newRedisClient(url string) *redis.Client {
	if url == "" {
		return nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Printf("redis disabled: %v", err)
		return nil
	}
	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Printf("redis unreachable, falling back to in-memory state: %v", err)
		return nil
	}
	return client
}
