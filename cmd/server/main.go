package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/converse-im/converse/internal/config"
	"github.com/converse-im/converse/internal/domain"
	"github.com/converse-im/converse/internal/events"
	"github.com/converse-im/converse/internal/handler"
	"github.com/converse-im/converse/internal/hub"
	"github.com/converse-im/converse/internal/mention"
	"github.com/converse-im/converse/internal/presence"
	"github.com/converse-im/converse/internal/reaction"
	"github.com/converse-im/converse/internal/receipt"
	"github.com/converse-im/converse/internal/repository"
	"github.com/converse-im/converse/internal/service"
	"github.com/converse-im/converse/pkg/database"
	"github.com/converse-im/converse/pkg/jwt"
	"github.com/converse-im/converse/pkg/log"
	"github.com/converse-im/converse/pkg/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log)
	logger := log.L()
	logger.Info().Int("port", cfg.Server.Port).Msg("starting converse")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.AutoMigrate(db,
		&domain.UserModel{},
		&domain.MessageModel{},
		&domain.ReceiptModel{},
		&domain.ReactionModel{},
		&domain.MentionModel{},
	); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	users := repository.NewGormUserRepository(db)
	messages := repository.NewGormMessageRepository(db)
	receipts := repository.NewGormReceiptRepository(db)
	reactions := repository.NewGormReactionRepository(db)
	mentions := repository.NewGormMentionRepository(db)

	presenceStore, err := presence.NewRedisStore(presence.RedisConfig{
		Address:  cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	logger.Info().Str("address", cfg.Redis.Address).Msg("connected to redis")

	var mirror events.Mirror
	if cfg.Kafka.Enabled {
		km, err := events.NewKafkaMirror(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize kafka mirror")
		}
		mirror = km
		logger.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("event mirror enabled")
	} else {
		mirror = events.NewNoop()
	}
	defer mirror.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsHub := hub.NewHub(cfg.WebSocket)
	go wsHub.Run(ctx)

	tokens := jwt.NewManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessDuration)

	chatSvc := service.NewChatService(
		wsHub,
		tokens,
		messages,
		mention.NewProcessor(users, mentions),
		reaction.NewToggler(messages, reactions),
		receipt.NewTracker(messages, receipts),
		presence.NewTracker(presenceStore, cfg.Presence.TTL),
		mirror,
	)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(log.GinMiddleware(logger))

	wsHandler := handler.NewWSHandler(wsHub, chatSvc, cfg.WebSocket)
	wsHandler.RegisterRoutes(engine)

	httpHandler := handler.NewHTTPHandler(
		messages,
		reaction.NewToggler(messages, reactions),
		receipt.NewTracker(messages, receipts),
		presence.NewTracker(presenceStore, cfg.Presence.TTL),
		middleware.NewAuthMiddleware(tokens),
	)
	httpHandler.RegisterRoutes(engine)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("stopped")
}
