package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/foundrly/platform/internal/api"
	"github.com/foundrly/platform/internal/auth"
	"github.com/foundrly/platform/internal/config"
	"github.com/foundrly/platform/internal/notify"
	"github.com/foundrly/platform/internal/realtime"
	"github.com/foundrly/platform/internal/store"
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

	ctx := context.Background()

	// Initialize the store: PostgreSQL when configured, SQLite otherwise
	var dataStore store.DataStore
	if cfg.DatabaseURL != "" {
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("migrations completed")

		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		defer pgStore.Close()
		dataStore = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		defer sqliteStore.Close()
		dataStore = sqliteStore
		logger.Info().Msg("using SQLite store")
	}

	// Group directory and fan-out bus: Redis-backed when configured so
	// broadcasts reach sessions on other processes, in-process otherwise
	directory := realtime.NewDirectory()
	var bus realtime.Bus
	if cfg.RedisURL != "" {
		redisBus, err := realtime.NewRedisBus(ctx, cfg.RedisURL, directory, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		bus = redisBus
		logger.Info().Msg("connected to Redis fan-out bus")
	} else {
		bus = realtime.NewLocalBus(directory, logger)
		logger.Info().Msg("using in-process fan-out bus")
	}
	defer bus.Close()

	// Authentication
	authn := auth.NewJWT(cfg.JWTSecret, 24*time.Hour, dataStore)

	// Notification dispatcher
	resolvers := notify.NewResolverRegistry()
	resolvers.Register("user", notify.UserResolver(dataStore))
	dispatcher := notify.NewDispatcher(dataStore, bus, resolvers, logger)

	// Realtime server and router
	rt := realtime.NewServer(dataStore, authn, directory, bus, logger, cfg.HistoryLimit, cfg.AllowedOrigins)
	router := api.NewRouter(logger, dataStore, authn, dispatcher, rt, cfg.AllowedOrigins)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // WebSocket connections manage their own write deadlines
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting platform server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
