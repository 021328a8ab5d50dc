package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"groupouting/backend/internal/api/handler"
	"groupouting/backend/internal/auth"
	"groupouting/backend/internal/chat"
	"groupouting/backend/internal/chathub"
	"groupouting/backend/internal/config"
	"groupouting/backend/internal/ratelimit"
	"groupouting/backend/internal/storage"
	"groupouting/backend/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	log := cfg.NewLogger()
	log.WithFields(logrus.Fields{"env": cfg.AppEnv, "driver": cfg.DBDriver}).Info("Starting group outing backend")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.OpenDB(cfg.DBDriver, cfg.DSN(), log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect database")
	}
	if err := storage.Migrate(db); err != nil {
		log.WithError(err).Fatal("Failed to run migrations")
	}
	store := storage.NewStorageService(db)

	rdb := setupRedis(ctx, cfg, log)

	hub := chathub.NewHub(log)
	notifiers := chathub.Notifiers{}
	if rdb != nil {
		relay := chathub.NewRedisRelay(rdb, "", hub, log)
		if err := relay.Start(ctx); err != nil {
			log.WithError(err).Fatal("Failed to subscribe to relay channel")
		}
		notifiers = append(notifiers, relay)
	} else {
		notifiers = append(notifiers, hub)
	}

	if cfg.TelegramBotToken != "" {
		bot, err := telegram.NewBot(cfg.TelegramBotToken, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to start Telegram bot")
		}
		mirror := telegram.NewRelay(bot, cfg.TelegramChatID, log)
		go mirror.Run(ctx)
		notifiers = append(notifiers, mirror)
	}

	hasher := auth.NewPasswordHasher(0)
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTExpiry())
	h := &handler.Handler{
		Rooms:         chat.NewRoomService(store, auth.NewRoomPasswords(cfg.RoomPasswordMode, hasher), notifiers, cfg.MaxRoomCapacity, log),
		Messages:      chat.NewMessageService(store, notifiers, cfg.MaxMessageLength, log),
		Store:         store,
		Tokens:        tokens,
		Hasher:        hasher,
		Hub:           hub,
		Log:           log,
		AllowedOrigin: cfg.CORSAllowedOrigin,
		SecureCookies: cfg.Production(),
	}

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), handler.RequestLogger(log), handler.CORS(cfg.CORSAllowedOrigin))
	if rdb != nil {
		limiter := ratelimit.NewLimiter(rdb, "groupouting:ratelimit:", cfg.RateLimitMax, cfg.RateLimitWindow)
		r.Use(ratelimit.Middleware(limiter, log))
	}
	h.Register(r)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown")
	}
	hub.Shutdown()
	if rdb != nil {
		rdb.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	log.Info("Stopped")
}

// setupRedis connects when REDIS_ADDR is set. Without Redis the server runs as a
// single instance with no rate limiting.
func setupRedis(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) *redis.Client {
	if cfg.RedisAddr == "" {
		log.Warn("REDIS_ADDR not set: cross-instance relay and rate limiting disabled")
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.WithError(err).Fatal("Failed to connect Redis")
	}
	log.WithField("addr", cfg.RedisAddr).Info("Redis connected")
	return rdb
}
