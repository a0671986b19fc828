package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quizhive/proctor-backend/internal/auth"
	"github.com/quizhive/proctor-backend/internal/config"
	"github.com/quizhive/proctor-backend/internal/database"
	"github.com/quizhive/proctor-backend/internal/handler"
	"github.com/quizhive/proctor-backend/internal/logger"
	"github.com/quizhive/proctor-backend/internal/progress"
	"github.com/quizhive/proctor-backend/internal/quizapi"
	"github.com/quizhive/proctor-backend/internal/repository"
	"github.com/quizhive/proctor-backend/internal/router"
	"github.com/quizhive/proctor-backend/internal/session"
	"github.com/quizhive/proctor-backend/internal/validator"
	"github.com/quizhive/proctor-backend/internal/worker"
	"github.com/rs/zerolog"
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
		Msg("Starting QuizHive Proctor Backend")

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

	// ─── Initialize Core Services ──────────────────────────────────────
	tokenValidator := auth.NewValidator(cfg.JWTSecret)
	quizAPI := quizapi.NewClient(cfg.QuizAPIBaseURL, cfg.QuizAPITimeout, log)
	store := progress.NewRedisStore(rdb)
	results := progress.NewRedisResultStore(rdb, cfg.ResultTTL)
	violationRepo := repository.NewViolationRepository(pool)

	manager := session.NewManager(session.Config{
		TabSwitchLimit:      cfg.TabSwitchLimit,
		FullscreenExitLimit: cfg.FullscreenExitLimit,
		TimeBudgetSeconds:   int(cfg.TimeBudget / time.Second),
		SnapshotInterval:    cfg.SnapshotInterval,
	}, store, results, quizAPI, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Session: handler.NewSessionHandler(quizAPI, results, violationRepo, manager, rdb, log),
		WS:      handler.NewWSHandler(manager, results, rdb, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	violationWorker := worker.NewViolationWorker(pool, rdb, log)
	snapshotWorker := worker.NewSnapshotWorker(pool, rdb, log)

	go violationWorker.Start(workerCtx)
	go snapshotWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(tokenValidator, handlers, cfg)

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

	// 2. Flush live sessions so in-flight attempts survive a restart.
	manager.Shutdown()

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
