// Package main is the entrypoint for the gapfinder API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scholarai/gapfinder/internal/ai"
	"github.com/scholarai/gapfinder/internal/api"
	"github.com/scholarai/gapfinder/internal/api/handler"
	mw "github.com/scholarai/gapfinder/internal/api/middleware"
	"github.com/scholarai/gapfinder/internal/api/response"
	"github.com/scholarai/gapfinder/internal/cache"
	"github.com/scholarai/gapfinder/internal/config"
	"github.com/scholarai/gapfinder/internal/gap"
	"github.com/scholarai/gapfinder/internal/queue"
	"github.com/scholarai/gapfinder/internal/ratelimit"
	"github.com/scholarai/gapfinder/internal/search"
	"github.com/scholarai/gapfinder/internal/store"
	"github.com/scholarai/gapfinder/pkg/models"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "ai_provider", cfg.AI.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create AI provider
	aiProvider, err := ai.NewProvider(ctx, cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", aiProvider.Name())

	// 6. Create store
	pgStore := store.NewPostgresStore(pool)
	log := slog.Default()

	// 7. Outbound rate limiters, one bucket per upstream dependency
	limiter := ratelimit.NewRegistry()
	limiter.Configure("ai", cfg.AI.RequestsPerMinute)

	backends := searchBackends(cfg.Search, limiter)
	if len(backends) == 0 {
		return fmt.Errorf("no search providers enabled")
	}
	searchSvc := search.NewService(backends, limiter, log).WithCache(redisCache)

	// 8. Gap pipeline
	generator := gap.NewGenerator(aiProvider, limiter, log)
	validator := gap.NewValidator(aiProvider, searchSvc, limiter, log)
	expander := gap.NewExpander(aiProvider, limiter, log)
	orch := gap.NewOrchestrator(generator, validator, expander,
		pgStore, redisCache, cfg.Pipeline, log)

	// 9. Queue consumer/publisher (optional)
	if cfg.Queue.Enabled {
		publisher, err := queue.NewPublisher(cfg.Queue.URL, log)
		if err != nil {
			return fmt.Errorf("create queue publisher: %w", err)
		}
		defer publisher.Close()

		orch.OnResult = func(result models.AnalysisResult) {
			pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := publisher.PublishResult(pubCtx, result); err != nil {
				slog.Error("publish analysis result", "error", err,
					"analysis_id", result.AnalysisID)
			}
		}

		consumer := queue.NewConsumer(cfg.Queue.URL, cfg.Queue.Prefetch,
			func(ctx context.Context, req models.AnalysisRequest) error {
				_, err := orch.Submit(ctx, req)
				return err
			}, publisher, log)
		go func() {
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("queue consumer stopped", "error", err)
			}
		}()
		slog.Info("queue consumer started", "queue", queue.RequestQueue)
	}

	// 10. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler:         healthHandler(pgStore, redisCache),
		SubmitAnalysisHandler: handler.NewSubmitAnalysisHandler(orch),
		GetAnalysisHandler:    handler.NewGetAnalysisHandler(orch, pgStore),
		ListAnalysesHandler:   handler.NewListAnalysesHandler(pgStore),
		ListGapsHandler:       handler.NewListGapsHandler(pgStore),
		CreateKeyHandler:      handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:       handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler:      handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 11. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// searchBackends builds the enabled literature search backends and registers
// a rate-limit bucket for each.
func searchBackends(cfg config.SearchConfig, limiter *ratelimit.Registry) []search.Backend {
	client := &http.Client{Timeout: cfg.Timeout}

	var backends []search.Backend
	if cfg.ArxivEnabled {
		limiter.Configure("arxiv", cfg.ArxivRequestsPerMinute)
		backends = append(backends, &search.ArxivBackend{Client: client})
	}
	if cfg.SemanticScholarEnabled {
		limiter.Configure("semanticscholar", cfg.SemanticScholarPerMinute)
		backends = append(backends, &search.SemanticScholarBackend{
			Client: client,
			APIKey: cfg.SemanticScholarAPIKey,
		})
	}
	if cfg.CrossrefEnabled {
		limiter.Configure("crossref", cfg.CrossrefRequestsPerMinute)
		backends = append(backends, &search.CrossrefBackend{Client: client})
	}
	return backends
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
