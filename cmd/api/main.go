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

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/couchcryptid/climate-insights/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/climate-insights/internal/adapter/kafka"
	"github.com/couchcryptid/climate-insights/internal/climate"
	"github.com/couchcryptid/climate-insights/internal/config"
	"github.com/couchcryptid/climate-insights/internal/observability"
	"github.com/couchcryptid/climate-insights/internal/recompute"
	"github.com/couchcryptid/climate-insights/internal/store"
)

func main() {
	// A local .env is optional; deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open store", "db_path", cfg.DBPath, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.StationsFile != "" {
		n, err := st.SeedStations(ctx, cfg.StationsFile)
		if err != nil {
			logger.Error("failed to seed stations", "path", cfg.StationsFile, "error", err)
			os.Exit(1)
		}
		logger.Info("seeded stations", "path", cfg.StationsFile, "count", n)
	}

	engine := climate.New(st, climate.Params{
		CoverageFloor:       cfg.CoverageFloor,
		MinClimatologyYears: cfg.MinClimatologyYears,
		MinCoverageYears:    cfg.MinCoverageYears,
		MinRecordYears:      cfg.MinRecordYears,
	}, logger, metrics)

	runner := recompute.New(st, engine, recompute.Config{
		DefaultMetric:      cfg.DefaultMetric,
		LatestWindows:      cfg.LatestWindows,
		RecordWindows:      cfg.RecordWindows,
		MinRecordYears:     cfg.MinRecordYears,
		MaxLookbackDays:    cfg.LatestMaxLookbackDays,
		Parallelism:        cfg.RecomputeParallelism,
		RefreshInterval:    cfg.RefreshInterval,
		MinTriggerInterval: cfg.RecomputeMinInterval,
	}, logger, metrics, clockwork.NewRealClock())

	srv := httpadapter.NewServer(cfg.HTTPAddr, engine, st, runner, runner, cfg.DefaultMetric, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return runner.Run(gctx)
	})

	var intake *kafkaadapter.Intake
	if cfg.IntakeEnabled() {
		intake = kafkaadapter.NewIntake(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, runner, logger, metrics)
		g.Go(func() error {
			return intake.Run(gctx)
		})
	} else {
		logger.Info("kafka intake disabled")
	}

	// Wait for a signal or for any component to fail.
	<-gctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if intake != nil {
		if err := intake.Close(); err != nil {
			logger.Error("kafka intake close error", "error", err)
		}
	}
	if err := g.Wait(); err != nil {
		logger.Error("component failed", "error", err)
	}
	if err := st.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}
