package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/lms-backend/internal/config"
	"github.com/stemsi/lms-backend/internal/database"
	"github.com/stemsi/lms-backend/internal/handler"
	"github.com/stemsi/lms-backend/internal/logger"
	"github.com/stemsi/lms-backend/internal/repository"
	"github.com/stemsi/lms-backend/internal/router"
	"github.com/stemsi/lms-backend/internal/service"
	"github.com/stemsi/lms-backend/internal/validator"
	"github.com/stemsi/lms-backend/internal/worker"
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
		Dur("session_tick", cfg.SessionTick).
		Msg("Starting LMS Backend")

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

	// ─── Initialize Repositories ───────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	assessmentRepo := repository.NewAssessmentRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	courseRepo := repository.NewCourseRepository(pool)
	aiQuestionRepo := repository.NewAIQuestionRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb, userRepo)
	monitorService := service.NewMonitorService(rdb, attemptRepo, log)
	gradingService := service.NewGradingService(rdb, assessmentRepo, monitorService, cfg.AttemptLockTTL, log)
	assessmentService := service.NewAssessmentService(assessmentRepo, attemptRepo, rdb, log)
	attemptService := service.NewAttemptService(assessmentService, gradingService, attemptRepo, cfg.AttemptLockTTL, log)
	courseService := service.NewCourseService(courseRepo, log)
	aiQuestionService := service.NewAIQuestionService(aiQuestionRepo, assessmentService, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:       handler.NewAuthHandler(authService, log),
		Learner:    handler.NewLearnerHandler(assessmentService, attemptService, courseService),
		Assessment: handler.NewAssessmentHandler(assessmentService, attemptService),
		Course:     handler.NewCourseHandler(courseService),
		AIQuestion: handler.NewAIQuestionHandler(aiQuestionService),
		Session: handler.NewSessionHandler(
			assessmentService, gradingService, monitorService,
			cfg.SessionTick, cfg.AttemptLockTTL, log, cfg.AllowedOrigins,
		),
		Monitor: handler.NewMonitorHandler(rdb, assessmentService, monitorService, log),
		System:  handler.NewSystemHandler(pool, rdb, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	for _, start := range []func(context.Context){
		worker.NewAttemptWorker(pool, rdb, log).Start,
		worker.NewAnswerWorker(pool, rdb, log).Start,
		worker.NewIntegrityWorker(pool, rdb, log).Start,
	} {
		workers.Add(1)
		go func(start func(context.Context)) {
			defer workers.Done()
			start(workerCtx)
		}(start)
	}

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load every published assessment into Redis before accepting traffic.
	if err := assessmentService.PrewarmAllCaches(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r, authLimiter := router.SetupRouter(authService, handlers, cfg)
	defer authLimiter.Stop()

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

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

	// 1. Stop accepting new HTTP requests. Open sessions are closed without submitting.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for their final flush.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
