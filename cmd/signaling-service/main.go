package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	intDatabase "peercall-backend/internal/database"
	callHandler "peercall-backend/internal/handler/http/call"
	wsHandler "peercall-backend/internal/handler/ws"
	"peercall-backend/internal/middleware"
	"peercall-backend/internal/repository/cockroach"
	redisRepo "peercall-backend/internal/repository/redis"
	callService "peercall-backend/internal/service/call"
	"peercall-backend/internal/service/presence"
	pkgConfig "peercall-backend/pkg/config"
	"peercall-backend/pkg/constants"
	pkgDatabase "peercall-backend/pkg/database"
	"peercall-backend/pkg/jwt"
	"peercall-backend/pkg/logger"
)

func main() {
	// 1. Load configuration
	cfg, err := pkgConfig.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// 2. Setup JWT Manager
	jwtManager := jwt.NewJWTManager(cfg.JWT.Secret, cfg.JWT.TokenDuration)

	// 3. Connect to CockroachDB
	cockroachDB, err := pkgDatabase.NewCockroachDB(context.Background(), &pkgDatabase.CockroachConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		logger.Fatal("Failed to connect to CockroachDB", zap.Error(err))
	}
	defer cockroachDB.Close()
	logger.Info("Connected to CockroachDB")

	// 4. Connect to Redis with degraded mode support
	redisDB, err := intDatabase.NewRedisDB(&intDatabase.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
		Timeout:  cfg.Redis.Timeout,
	})
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisDB.Close()
	logger.Info("Connected to Redis")

	rootCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	redisDB.StartHealthCheck(rootCtx, 10*time.Second)

	// 5. Initialize repositories
	callRepo := cockroach.NewCallRepository(cockroachDB.Pool)
	membershipRepo := cockroach.NewMembershipRepository(cockroachDB.Pool)
	presenceMirror := redisRepo.NewPresenceRepository(redisDB)

	// 6. Initialize presence registry and WebSocket hub.
	// Registry and hub reference each other, so the broadcaster and the
	// call service are wired after construction.
	registry := presence.NewRegistry(presenceMirror)
	hub := wsHandler.NewHub(registry, jwtManager, cfg.Server.MaxConnections)
	registry.SetBroadcaster(hub)

	callSvc := callService.NewService(
		callRepo,
		membershipRepo,
		registry,
		hub,
		hub,
		cfg.Call.RingTimeout,
		constants.MembershipCacheTTL,
	)
	hub.SetCallService(callSvc)
	hub.SetRelay(wsHandler.NewRelay(callRepo, hub))

	registry.StartSweeper(rootCtx, cfg.Call.PresenceSweepEvery, hub.IsConnLive)

	// 7. Initialize handlers
	callHdlr := callHandler.NewHandler(callRepo, membershipRepo)

	// 8. Setup Gin router
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.SetTrustedProxies(nil)

	router.Use(middleware.Recovery())
	router.Use(middleware.HealthCheck(cfg.Server.ServiceName))
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.Prometheus())

	router.GET("/metrics", middleware.MetricsHandler())

	v1 := router.Group("/v1")
	{
		// The socket authenticates via query token inside ServeWS since
		// browsers cannot set headers on WebSocket upgrade requests
		v1.GET("/ws", hub.ServeWS)

		authed := v1.Group("")
		authed.Use(middleware.AuthMiddleware(jwtManager))
		{
			authed.GET("/chats/:chatId/calls", callHdlr.GetChatCalls)
			authed.GET("/calls/recent", callHdlr.GetRecentCalls)
			authed.GET("/calls/stats", callHdlr.GetCallStats)
		}
	}

	// 9. Start server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Signaling service starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("ws_endpoint", "/v1/ws"))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 10. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	stopBackground()
	callSvc.Shutdown()

	logger.Info("Server exited")
}
