package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/frankmark94/channel-play-pen/internal/api"
	"github.com/frankmark94/channel-play-pen/internal/broadcast"
	"github.com/frankmark94/channel-play-pen/internal/channel"
	"github.com/frankmark94/channel-play-pen/internal/config"
	"github.com/frankmark94/channel-play-pen/internal/crypto"
	"github.com/frankmark94/channel-play-pen/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize Redis store
	var redisStore *store.RedisStore
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		logger.Info().Msg("connected to Redis")
	} else {
		logger.Warn().Msg("REDIS_URL not set, rate limiting disabled")
	}

	// In-memory state
	activity := store.NewActivityLog(store.WithActivityLimit(cfg.ActivityLimit))
	creds := store.NewCredentialStore(logger, activity, store.WithSessionTimeout(cfg.SessionTimeout))
	sessions := store.NewSessionRegistry(nil)

	codec := crypto.NewTokenCodec()
	sender := channel.NewSender(codec, activity, logger, channel.WithOutboundTimeout(cfg.OutboundTimeout))

	var svc *channel.Service
	hub := broadcast.NewHub(logger,
		broadcast.WithStatus(func() any { return svc.Status() }),
		broadcast.WithAllowedOrigins(cfg.AllowedOrigins()...),
	)
	svc = channel.NewService(logger, codec, creds, sessions, activity, sender,
		channel.WithNotifier(hub),
		channel.WithCustomerName(cfg.CustomerName),
		channel.WithWebhookURL(cfg.WebhookURL()),
		channel.WithGatewayOptions(
			channel.WithTokenMaxAge(cfg.TokenMaxAge),
			channel.WithTokenClockSkew(cfg.TokenClockSkew),
		),
	)
	unsubscribe := activity.Subscribe(hub.PublishActivity)
	defer unsubscribe()

	// Expire idle credential sessions
	go creds.Run(ctx, cfg.SweepInterval)

	// Create router
	router := api.NewRouter(logger, cfg, svc, activity, redisStore, hub)

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("webhook_url", cfg.WebhookURL()).
			Msg("starting DMS channel console")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")
	stop()

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}
	svc.Disconnect()

	logger.Info().Msg("server stopped")
}
