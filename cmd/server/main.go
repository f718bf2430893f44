// Command server runs the medication adherence API.
//
// Startup order:
//  1. Load .env (best effort) and environment configuration
//  2. Configure structured logging (zerolog)
//  3. Open SQLite, migrate schema, install query tracing
//  4. Initialize OpenTelemetry (when enabled)
//  5. Start the missed-dose sweeper in the background
//  6. Serve HTTP with graceful shutdown
//
// @title        Medication Adherence API
// @version      1.0
// @description  Session-based medication tracking: 30-day dose grids, dose recording, missed-dose sweeping, and adherence statistics.
// @BasePath     /api/v1
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
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/carevue/go-adherence-backend/internal/config"
	httpapi "github.com/carevue/go-adherence-backend/internal/http"
	"github.com/carevue/go-adherence-backend/internal/observability"
	"github.com/carevue/go-adherence-backend/internal/repo"
	"github.com/carevue/go-adherence-backend/internal/services"
	"github.com/carevue/go-adherence-backend/internal/sysutil"
)

const version = "1.0.0"

func main() {
	// Local development convenience; real deployments set the environment.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	sysutil.SetLogLevel(cfg.LogLevel)
	log.Info().Str("version", version).Msg("starting adherence backend")

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate schema")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTEL.Enabled {
		shutdown, err := observability.SetupOTel(ctx, cfg.OTEL, version)
		if err != nil {
			log.Fatal().Err(err).Msg("setup otel")
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				log.Warn().Err(err).Msg("otel shutdown")
			}
		}()
		if err := repo.EnableTracing(db); err != nil {
			log.Fatal().Err(err).Msg("enable db tracing")
		}
	}

	// Background sweeper: marks elapsed pending cells missed on a fixed
	// cadence and purges expired idempotency rows.
	sweeper := &services.SweepService{
		DB:       db,
		Grace:    cfg.Sweep.Grace,
		Interval: cfg.Sweep.Interval,
		Notifier: services.LogNotifier{},
	}
	go sweeper.Run(ctx)

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, db, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}
