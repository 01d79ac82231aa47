// Package main runs the video management HTTP server with WebSocket streaming
// and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/videohub/backend/config"
	"github.com/videohub/backend/internal/analytics"
	"github.com/videohub/backend/internal/auth"
	"github.com/videohub/backend/internal/cameras"
	"github.com/videohub/backend/internal/events"
	"github.com/videohub/backend/internal/mediastore"
	"github.com/videohub/backend/internal/middleware"
	"github.com/videohub/backend/internal/realtime"
	"github.com/videohub/backend/internal/stream"
	"github.com/videohub/backend/internal/worker"
	"github.com/videohub/backend/pkg/database"
	"github.com/videohub/backend/pkg/queue"
	"github.com/videohub/backend/pkg/redis"
	"github.com/videohub/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	store, err := newMediaStore(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal("media store", zap.Error(err))
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	publisher := events.NewRedisPublisher(rdb.Client, jobQueue, logger)

	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, publisher, logger)

	// Cameras
	cameraRepo := cameras.NewRepository(pool)
	cameraCache := cameras.NewCache(rdb.Client, logger)
	cameraHandler := cameras.NewHandler(cameraRepo, cameraCache, store, logger)

	// Video delivery
	manager := stream.NewManager(cameraRepo, store, hub, publisher, logger, stream.Options{
		ChunkSize:    cfg.Stream.ChunkSize,
		WriteTimeout: time.Duration(cfg.Stream.WriteTimeoutSec) * time.Second,
	})
	streamHandler := stream.NewHandler(cameraRepo, store, logger)

	// Analytics
	analyticsRepo := analytics.NewRepository(pool)
	analyticsHandler := analytics.NewHandler(analyticsRepo, logger)

	// Event worker (in-process; can also run standalone via cmd/worker)
	eventWorker := worker.New(jobQueue, analyticsRepo, logger)

	jwtValidate := func(token string) (userID uuid.UUID, username, role string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, "", "", err
		}
		return claims.UserID, claims.Username, claims.Role, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		response.OK(c, gin.H{
			"status":          "ok",
			"active_sessions": manager.ActiveSessions(),
			"ws_clients":      hub.ClientCount(),
		})
	})

	// Auth (public)
	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
		authGroup.GET("/verify", authHandler.Verify)
		authGroup.POST("/logout", authHandler.Logout)
	}

	// Protected API (JWT required)
	api := router.Group("/api")
	api.Use(middleware.JWT(jwtService))
	{
		// Users (admin only)
		api.GET("/users", middleware.RequireRole("admin"), authHandler.List)

		// Cameras
		api.GET("/cameras", cameraHandler.List)
		api.POST("/cameras", middleware.RequireRole("admin"), cameraHandler.Create)
		api.GET("/cameras/:id", cameraHandler.Get)
		api.PATCH("/cameras/:id", middleware.RequireRole("admin"), cameraHandler.Update)
		api.DELETE("/cameras/:id", middleware.RequireRole("admin"), cameraHandler.Delete)

		// Video delivery (pull plane)
		api.GET("/stream/:cameraId", streamHandler.Serve)
		api.POST("/stream/buffer/:cameraId", streamHandler.ServeBuffer)

		// Analytics
		api.GET("/analytics/summary", middleware.RequireRole("admin"), analyticsHandler.Summary)
		api.GET("/analytics/top-cameras", middleware.RequireRole("admin"), analyticsHandler.TopCameras)
		api.GET("/analytics/player-logs", middleware.RequireRole("admin"), analyticsHandler.PlayerLogs)
		api.GET("/analytics/login-activity", middleware.RequireRole("admin"), analyticsHandler.LoginActivity)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, manager, logger, jwtValidate, cfg.Stream.SendBuffer))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go eventWorker.Run(workerCtx)

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newMediaStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (mediastore.Store, error) {
	if cfg.Backend == "s3" {
		return mediastore.NewS3(ctx, mediastore.S3Config{
			Region:          cfg.Region,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Bucket:          cfg.Bucket,
		}, logger)
	}
	return mediastore.NewLocal(cfg.UploadDir)
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
