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
	"github.com/google/uuid"
	"github.com/lalith-99/chatwire/internal/api"
	"github.com/lalith-99/chatwire/internal/auth"
	"github.com/lalith-99/chatwire/internal/calls"
	"github.com/lalith-99/chatwire/internal/config"
	"github.com/lalith-99/chatwire/internal/db"
	"github.com/lalith-99/chatwire/internal/delivery"
	"github.com/lalith-99/chatwire/internal/keymutex"
	"github.com/lalith-99/chatwire/internal/membership"
	"github.com/lalith-99/chatwire/internal/messaging"
	"github.com/lalith-99/chatwire/internal/notify"
	"github.com/lalith-99/chatwire/internal/observ"
	"github.com/lalith-99/chatwire/internal/presence"
	"github.com/lalith-99/chatwire/internal/realtime"
	"github.com/lalith-99/chatwire/internal/repository"
	"github.com/lalith-99/chatwire/internal/repository/memstore"
	"github.com/lalith-99/chatwire/internal/repository/postgres"
	"github.com/lalith-99/chatwire/internal/storage"
	"github.com/lalith-99/chatwire/internal/typing"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ---------------------------------------------------------------
	// 1. Config and logger
	// ---------------------------------------------------------------
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------------------------------------------------------
	// 2. Persistence
	//
	// The memory backend keeps everything in-process; it exists for
	// local development and loses all state on restart.
	// ---------------------------------------------------------------
	var (
		store  repository.Store
		health = func(context.Context) error { return nil }
	)
	switch cfg.StoreBackend {
	case "postgres":
		database, err := db.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer database.Close()
		if err := database.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		store = postgres.NewStore(database.Pool())
		health = database.Health
	default:
		logger.Warn("using in-memory store, data will not survive a restart")
		store = memstore.New()
	}

	// ---------------------------------------------------------------
	// 3. Redis (presence counts and push jobs), only when asked for
	// ---------------------------------------------------------------
	var rdb *redis.Client
	if cfg.PresenceBackend == "redis" || cfg.PushEnabled {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
	}

	var presenceStore presence.Store = presence.NewMemoryStore()
	if cfg.PresenceBackend == "redis" {
		rs := presence.NewRedisStore(rdb)
		// Counts from a previous run are stale: every client reconnects
		// and counts again.
		if err := rs.Reset(ctx); err != nil {
			return fmt.Errorf("reset presence: %w", err)
		}
		presenceStore = rs
	}

	var push notify.PushSender = notify.NewLogSender(logger)
	if cfg.PushEnabled {
		push = notify.NewRedisPublisher(rdb, store.Devices(), cfg.PushChannel, logger)
	}

	// ---------------------------------------------------------------
	// 4. Attachments
	// ---------------------------------------------------------------
	var files storage.FileStore = storage.NewMemoryStore()
	if cfg.S3Enabled() {
		s3 := storage.NewS3Store(storage.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		}, logger)
		if err := s3.HealthCheck(ctx); err != nil {
			return fmt.Errorf("s3: %w", err)
		}
		files = s3
	} else {
		logger.Warn("S3_BUCKET not set, attachments are kept in memory")
	}

	// ---------------------------------------------------------------
	// 5. Services
	//
	// The hub is the emitter for everything. Messaging and membership
	// share one set of per-chat locks so a removal and a send in the
	// same chat never interleave.
	// ---------------------------------------------------------------
	hub := realtime.NewHub(logger)
	presenceReg := presence.NewRegistry(presenceStore, store.Users(), hub, logger, presence.WithGrace(cfg.PresenceGrace))
	defer presenceReg.Stop()

	deliverySvc := delivery.NewService(store, hub, presenceReg, logger)
	hook := notify.NewHook(store, hub, presenceReg, push, cfg.PushEnabled, logger)

	chatLocks := keymutex.New[uuid.UUID]()
	messagingSvc := messaging.NewService(store, deliverySvc, hub, files, hook, logger,
		messaging.WithEditWindow(cfg.EditWindow),
		messaging.WithChatLocks(chatLocks),
	)
	membershipSvc := membership.NewService(store, messagingSvc, hook, hub, hub, logger,
		membership.WithChatLocks(chatLocks),
	)
	callsSvc := calls.NewCoordinator(store, hub, presenceReg, hook, logger,
		calls.WithRingTimeout(cfg.CallRingTimeout),
	)
	defer callsSvc.Stop()

	verifier := auth.NewVerifier(cfg.JWTSecret)
	gateway := realtime.NewGateway(hub, verifier, store, presenceReg, deliverySvc,
		typing.NewCoordinator(hub, hub), callsSvc,
		realtime.Limits{EventsPerSecond: cfg.WSEventsPerSecond, Burst: cfg.WSEventBurst},
		logger,
	)

	// ---------------------------------------------------------------
	// 6. HTTP
	// ---------------------------------------------------------------
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), observ.GinMiddleware())

	// Health and metrics are public so load balancers and scrapers
	// don't need a token.
	router.GET("/v1/health", func(c *gin.Context) {
		if err := health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":       "ok",
			"online_users": presenceReg.OnlineCount(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", gateway.ServeWS)

	api.RegisterRoutes(router, verifier, api.Handlers{
		Auth:          api.NewAuthHandler(store.Users(), cfg.JWTSecret, cfg.TokenTTL, logger),
		Users:         api.NewUserHandler(store.Users(), store.Devices(), logger),
		Chats:         api.NewChatHandler(membershipSvc, logger),
		Membership:    api.NewMembershipHandler(membershipSvc, logger),
		Messages:      api.NewMessageHandler(messagingSvc, deliverySvc, logger),
		Notifications: api.NewNotificationHandler(hook, logger),
		Calls:         api.NewCallHandler(callsSvc, logger),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting chatwire",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
			zap.String("store", cfg.StoreBackend),
			zap.String("presence", cfg.PresenceBackend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
