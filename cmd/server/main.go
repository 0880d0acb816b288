package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"

	"tft-pipeline/internal/bootstrap"
	"tft-pipeline/internal/collector"
	"tft-pipeline/internal/config"
	"tft-pipeline/internal/logging"
	"tft-pipeline/internal/metrics"
	"tft-pipeline/internal/roster"
	"tft-pipeline/internal/server"
)

const shutdownTimeout = 30 * time.Second

func main() {
	envFile := config.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Service.LogLevel, cfg.Service.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if envFile != "" {
		logger.Info("loaded .env", zap.String("path", envFile))
	} else {
		logger.Info("no .env file found, using environment variables")
	}

	comp, err := bootstrap.Setup(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to set up pipeline", zap.Error(err))
	}
	defer comp.Shutdown()

	// Re-read per run so roster edits apply without a restart
	rosterSource := func() (roster.Roster, error) {
		return roster.Load(cfg.Pipeline.RosterPath)
	}

	h := server.NewHandler(comp.Collector, comp.Loader, comp.Transformer, rosterSource, cfg.Pipeline, logger)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = comp.Metrics
	}
	e := server.New(h, m, logger)

	ctx := collector.SetupSignalHandler(logger, func(context.Context) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", zap.Error(err))
		}
	})

	addr := fmt.Sprintf(":%d", cfg.Service.Port)
	logger.Info("server starting",
		zap.String("addr", addr),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("warehouse", cfg.Warehouse.Backend),
		zap.Bool("metrics", cfg.Metrics.Enabled))

	if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}

	<-ctx.Done()
	logger.Info("server stopped")
}
