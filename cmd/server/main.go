package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/prepnest/attempt-backend/internal/assets"
	"github.com/prepnest/attempt-backend/internal/config"
	"github.com/prepnest/attempt-backend/internal/database"
	"github.com/prepnest/attempt-backend/internal/engine"
	"github.com/prepnest/attempt-backend/internal/examapi"
	"github.com/prepnest/attempt-backend/internal/handler"
	"github.com/prepnest/attempt-backend/internal/logger"
	"github.com/prepnest/attempt-backend/internal/normalize"
	"github.com/prepnest/attempt-backend/internal/repository"
	"github.com/prepnest/attempt-backend/internal/router"
	"github.com/prepnest/attempt-backend/internal/service"
	"github.com/prepnest/attempt-backend/internal/session"
	"github.com/prepnest/attempt-backend/internal/validator"
	"github.com/prepnest/attempt-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting Attempt Gateway")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Session Store ─────────────────────────────────────────────────
	// Redis-backed with an in-memory failsafe: a Redis outage degrades live
	// attempts to memory-only rather than blocking exam-taking.
	store := session.NewFailsafeStore(session.NewRedisStore(rdb), log)

	// ─── Collaborators ─────────────────────────────────────────────────
	examClient := examapi.NewHTTPClient(cfg.ExamAPIBaseURL, cfg.ExamAPIToken, cfg.ExamAPITimeout)
	normalizer := &normalize.Normalizer{AssetBaseURL: cfg.AssetBaseURL}
	archiveQueue := worker.NewQueue(rdb, log)
	attemptRepo := repository.NewAttemptRepository(pool)
	assetLoader := assets.NewLoader(nil, log)

	// ─── Services ──────────────────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	attemptService := service.NewAttemptService(
		examClient, store, normalizer, archiveQueue, attemptRepo, assetLoader, engine.SystemClock, log,
	)

	// ─── Handlers ──────────────────────────────────────────────────────
	handlers := &router.Handlers{
		Attempt: handler.NewAttemptHandler(attemptService),
		WS:      handler.NewWSHandler(attemptService, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	answerWorker := worker.NewAnswerWorker(pool, rdb, log)
	eventWorker := worker.NewEventWorker(pool, rdb, log)
	submissionWorker := worker.NewSubmissionWorker(pool, rdb, log)

	go answerWorker.Start(workerCtx)
	go eventWorker.Start(workerCtx)
	go submissionWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
