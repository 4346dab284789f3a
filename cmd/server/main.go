// Package main is the entry point for the risk engine service.
//
// Startup order:
//  1. Load configuration and build the logger
//  2. Wire dependencies (database, calculators, limit registry, stop book)
//  3. Start the scheduler and the HTTP server
//  4. On SIGINT/SIGTERM stop the scheduler, persist a final stop snapshot and drain HTTP
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/riskengine/internal/config"
	"github.com/aristath/riskengine/internal/di"
	"github.com/aristath/riskengine/internal/server"
	"github.com/aristath/riskengine/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting risk engine")

	container, jobs, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	srv := server.New(server.Config{
		Log:         log,
		Port:        cfg.Port,
		DevMode:     cfg.DevMode,
		CORSOrigins: cfg.CORSOrigins,
		EventBus:    container.EventBus,
		Status: server.StatusSources{
			DB:        container.DB,
			Book:      container.StopBook,
			Limits:    container.LimitsManager,
			Scheduler: container.Scheduler,
		},
		Modules: []server.RouteRegistrar{
			container.RiskHandler,
			container.LimitsHandler,
			container.StopsHandler,
		},
	})

	container.Scheduler.Start()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	container.Scheduler.Stop()

	if err := jobs.SnapshotStops.Run(); err != nil {
		log.Error().Err(err).Msg("Failed to persist final stop snapshot")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
