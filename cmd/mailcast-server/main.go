package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sungwon/mailcast/internal/api"
	"github.com/sungwon/mailcast/internal/auth"
	"github.com/sungwon/mailcast/internal/config"
	"github.com/sungwon/mailcast/internal/dispatch"
	"github.com/sungwon/mailcast/internal/ingest"
	"github.com/sungwon/mailcast/internal/logger"
	"github.com/sungwon/mailcast/internal/provider"
	"github.com/sungwon/mailcast/internal/reconcile"
	"github.com/sungwon/mailcast/internal/scheduler"
	"github.com/sungwon/mailcast/internal/storage"
	"github.com/sungwon/mailcast/internal/topic"
	"github.com/sungwon/mailcast/internal/worker"
)

func main() {
	cfg, err := config.Load("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewFromConfig(logger.LoggingConfig{
		Level:     cfg.Logging.Level,
		Output:    cfg.Logging.Output,
		FilePath:  cfg.Logging.FilePath,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	})
	log.Info().Msg("starting mailcast server")

	// Initialize database connection pool.
	ctx := context.Background()
	db, err := storage.NewDB(ctx, cfg.Database.URL, cfg.Database.PoolMin, cfg.Database.PoolMax, cfg.Database.ConnectTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	queries := storage.New(db.Pool)

	// Initialize delivery provider with a shared HTTP client.
	httpClient := provider.NewHTTPClient(cfg.Provider.Timeout)
	prov, err := provider.New(provider.Config{
		Type:     cfg.Provider.Type,
		Region:   cfg.Provider.Region,
		Endpoint: cfg.Provider.Endpoint,
		APIKey:   cfg.Provider.APIKey,
	}, httpClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize provider")
	}
	log.Info().Str("provider", prov.GetName()).Msg("delivery provider initialized")

	// Dispatch channel and the global send rate limiter.
	ch := dispatch.NewChannel(cfg.Dispatch.QueueCapacity)
	limiter := dispatch.NewLimiter(cfg.Dispatch.RatePerSecond)

	// Initialize JWT service
	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey:  cfg.Auth.SigningKey,
		TokenExpiry: cfg.Auth.TokenExpiry,
		Issuer:      cfg.Auth.Issuer,
		Audience:    cfg.Auth.Audience,
	})
	if cfg.Auth.SigningKey == "" || cfg.Auth.SigningKey == "change-me-in-production-use-a-strong-secret" {
		log.Warn().Msg("JWT signing key is not set or using default value; set MAILCAST_AUTH_SIGNING_KEY in production")
	}

	// Domain services.
	submitter := ingest.NewService(db, ch, log)
	topics := topic.NewService(queries, log)
	reconciler := reconcile.New(queries, log)

	// Quota endpoint is available only when the provider reports one.
	quota, _ := prov.(provider.QuotaReporter)

	// Background loops: the sender drains the dispatch channel, the
	// scheduler promotes due rows into it.
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	sender := worker.NewSender(ch, limiter, queries, prov, cfg.Provider.FromEmail, cfg.Server.PublicURL, log)
	sched := scheduler.New(queries, ch, scheduler.Config{
		Interval:     cfg.Dispatch.SchedulerInterval,
		BatchSize:    cfg.Dispatch.BatchSize,
		RequeueAfter: cfg.Dispatch.RequeueAfter,
	}, log)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sender.Run(workerCtx)
	}()
	go func() {
		defer wg.Done()
		sched.Run(workerCtx)
	}()

	// Build router
	router := api.NewRouter(queries, db, submitter, topics, reconciler, quota, jwtService, log)

	// Configure HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down server")

	// Graceful shutdown with 30-second timeout. Stop accepting new
	// requests first, then stop the background loops.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	stopWorkers()
	wg.Wait()

	log.Info().Msg("server stopped")
}
