package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"tourly-backend/internal/broker/kafka"
	"tourly-backend/internal/database"
	chatHandler "tourly-backend/internal/handler/http/chat"
	conversationHandler "tourly-backend/internal/handler/http/conversation"
	wsHandler "tourly-backend/internal/handler/ws"
	"tourly-backend/internal/middleware"
	"tourly-backend/internal/realtime"
	"tourly-backend/internal/repository/cassandra"
	"tourly-backend/internal/repository/cockroach"
	"tourly-backend/internal/repository/redis"
	chatService "tourly-backend/internal/service/chat"
	conversationService "tourly-backend/internal/service/conversation"
	inboxService "tourly-backend/internal/service/inbox"
	participantService "tourly-backend/internal/service/participant"
	"tourly-backend/internal/service/storage"
	"tourly-backend/pkg/config"
	"tourly-backend/pkg/jwt"
	"tourly-backend/pkg/logger"
	"tourly-backend/pkg/metrics"
	"tourly-backend/pkg/resilience"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.Log.With(zap.String("service", cfg.Server.ServiceName))
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("Messaging service stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	// 1. Connect to CockroachDB
	cockroachDB, err := database.NewDB(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to CockroachDB: %w", err)
	}
	defer cockroachDB.Close()
	log.Info("Connected to CockroachDB")

	// 2. Connect to Cassandra
	cassandraDB, err := database.NewCassandraDB(cfg.Cassandra)
	if err != nil {
		return fmt.Errorf("failed to connect to Cassandra: %w", err)
	}
	defer cassandraDB.Close()
	log.Info("Connected to Cassandra")

	// 3. Connect to Redis with degraded mode support
	database.InitRedisMetrics()
	redisDB := database.NewRedisDB(cfg.Redis)
	defer redisDB.Close()
	if err := redisDB.HealthCheck(ctx); err != nil {
		log.Warn("Redis unavailable at startup, running degraded", zap.Error(err))
	}
	redisDB.StartHealthCheck(ctx, 10*time.Second)

	// 4. Object storage for avatars
	minioClient, err := storage.NewMinioClient(cfg.MinIO)
	if err != nil {
		return fmt.Errorf("failed to create MinIO client: %w", err)
	}
	avatarBreaker := resilience.NewCircuitBreaker("minio_presign", resilience.Config{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}, log)
	avatars, err := storage.NewService(ctx, minioClient, cfg.MinIO.Bucket, cfg.Chat.AvatarURLExpiry,
		storage.WithBreaker(avatarBreaker))
	if err != nil {
		return fmt.Errorf("failed to initialize avatar storage: %w", err)
	}

	// 5. Repositories
	conversationRepo := cockroach.NewConversationRepository(cockroachDB.Pool)
	userRepo := cockroach.NewUserRepository(cockroachDB.Pool)
	providerRepo := cockroach.NewProviderRepository(cockroachDB.Pool)
	messageRepo := cassandra.NewMessageRepository(cassandraDB.Session)
	directoryRepo := redis.NewDirectoryRepository(redisDB, cfg.Chat.ParticipantCacheTTL)

	// 6. Services
	broker := realtime.NewRedisBroker(redisDB, log)
	hub := realtime.NewHub(broker, log)

	participants := participantService.NewService(userRepo, providerRepo, log,
		participantService.WithCache(directoryRepo),
		participantService.WithAvatarSigner(avatars),
	)
	conversations := conversationService.NewService(conversationRepo, providerRepo, participants,
		conversationService.Config{
			InboxLimit:    cfg.Chat.InboxLimit,
			PreviewLength: cfg.Chat.PreviewLength,
		}, log)
	inbox := inboxService.NewService(conversations)

	var chatOpts []chatService.Option
	if cfg.KafkaEnabled() {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, nil)
		if err != nil {
			return fmt.Errorf("failed to create Kafka producer: %w", err)
		}
		defer producer.Close()
		chatOpts = append(chatOpts, chatService.WithEvents(
			kafka.NewMessageEvents(producer, cfg.Kafka.Topic, cfg.Chat.PreviewLength),
		))
		log.Info("Kafka events enabled", zap.Strings("brokers", cfg.Kafka.Brokers))
	}
	chat := chatService.NewService(messageRepo, conversations, broker, chatService.Config{
		MaxMessageLength:  cfg.Chat.MaxMessageLength,
		PageSize:          cfg.Chat.PageSize,
		SideEffectTimeout: cfg.Chat.SideEffectTimeout,
	}, log, chatOpts...)
	defer chat.Drain()

	// 7. Handlers
	jwtManager := jwt.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	convHdlr := conversationHandler.NewHandler(conversations, inbox)
	chatHdlr := chatHandler.NewHandler(chat, conversations)
	wsHdlr := wsHandler.NewChatHandler(conversations, chat, hub, wsHandler.SessionConfig{
		PageSize:     cfg.Chat.PageSize,
		ReadDebounce: cfg.Chat.ReadDebounce,
	}, cfg.Server.AllowedOrigins, log)
	sendLimiter := middleware.NewRateLimiter(redisDB, "send", cfg.Chat.SendRateLimit, time.Minute, log)

	// 8. Router
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(middleware.NewPrometheusMiddleware(metrics.NewMetrics(cfg.Server.ServiceName, nil)).Handler())

	router.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		checks := gin.H{"cockroach": "ok", "cassandra": "ok", "redis": "ok"}
		if err := cockroachDB.Ping(c.Request.Context()); err != nil {
			status = http.StatusServiceUnavailable
			checks["cockroach"] = err.Error()
		}
		if err := cassandraDB.Ping(c.Request.Context()); err != nil {
			status = http.StatusServiceUnavailable
			checks["cassandra"] = err.Error()
		}
		if redisDB.IsDegraded() {
			checks["redis"] = "degraded"
		}
		c.JSON(status, gin.H{
			"service": cfg.Server.ServiceName,
			"checks":  checks,
			"time":    time.Now().UTC(),
		})
	})
	router.GET("/metrics", middleware.MetricsHandler())

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtManager))
	{
		conversationsGroup := v1.Group("/conversations")
		convHdlr.RegisterRoutes(conversationsGroup)
		chatHdlr.RegisterRoutes(conversationsGroup, sendLimiter.Middleware())

		v1.GET("/ws/chat", wsHdlr.ServeWS)
	}

	// 9. Serve until signalled
	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Messaging service starting", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	// Websocket sessions were hijacked from the server; stop them before
	// chat.Drain runs and the stores close.
	if err := wsHdlr.Shutdown(shutdownCtx); err != nil {
		log.Error("WebSocket sessions did not stop in time", zap.Error(err))
	}

	log.Info("Server exited")
	return nil
}
