package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/skillproof/skillproof-backend/internal/config"
	"github.com/skillproof/skillproof-backend/internal/database"
	"github.com/skillproof/skillproof-backend/internal/handler"
	"github.com/skillproof/skillproof-backend/internal/logger"
	"github.com/skillproof/skillproof-backend/internal/repository"
	"github.com/skillproof/skillproof-backend/internal/router"
	"github.com/skillproof/skillproof-backend/internal/service"
	"github.com/skillproof/skillproof-backend/internal/validator"
	"github.com/skillproof/skillproof-backend/internal/worker"
)

func main() {
	cfg := config.Load()

	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting SkillProof Backend")

	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// Repositories.
	adminRepo := repository.NewAdminRepository(pool)
	testRepo := repository.NewTestRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	sessionRepo := repository.NewTestSessionRepository(pool)
	responseRepo := repository.NewResponseRepository(pool)

	// Services.
	authService := service.NewAuthService(cfg)
	materialService := service.NewMaterialService(cfg)
	sessionCache := service.NewRedisSessionCache(rdb)
	sessionService := service.NewSessionService(sessionRepo, testRepo, questionRepo, materialService, sessionCache)
	testService := service.NewTestService(testRepo, sessionRepo, questionRepo, responseRepo, materialService)
	questionService := service.NewQuestionService(questionRepo, testRepo, sessionRepo)

	// Handlers.
	handlers := &router.Handlers{
		Auth:      handler.NewAuthHandler(authService, adminRepo),
		Test:      handler.NewTestHandler(testService),
		Question:  handler.NewQuestionHandler(questionService),
		Candidate: handler.NewCandidateHandler(sessionService, materialService),
		Material:  handler.NewMaterialHandler(materialService),
		WS:        handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
		Monitor:   handler.NewMonitorHandler(rdb, testService, log),
	}

	// Background workers.
	workerCtx, workerCancel := context.WithCancel(context.Background())

	autosaveWorker := worker.NewAutosaveWorker(pool, rdb, log)
	deadlineWorker := worker.NewDeadlineWorker(sessionCache, sessionService, log)

	go autosaveWorker.Start(workerCtx)
	go deadlineWorker.Start(workerCtx)

	r := router.SetupRouter(authService, handlers, cfg)

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

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
	time.Sleep(2 * time.Second)

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
