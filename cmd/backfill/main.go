// Command backfill re-evaluates all-time records and refreshes the latest
// snapshots for every station from the full observation history. Streaming
// intake only offers each new day against the record as it stood, so bulk
// loads need one sweep over everything that came before.
//
// Usage:
//
//	DB_PATH=data/climate.db go run ./cmd/backfill
//	go run ./cmd/backfill -stations SYN00000001,SYN00000002
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/climate-insights/internal/climate"
	"github.com/couchcryptid/climate-insights/internal/config"
	"github.com/couchcryptid/climate-insights/internal/observability"
	"github.com/couchcryptid/climate-insights/internal/recompute"
	"github.com/couchcryptid/climate-insights/internal/store"
)

func main() {
	stationsFlag := flag.String("stations", "", "comma-separated station ids; empty backfills every station")
	flag.Parse()

	if code := run(*stationsFlag); code != 0 {
		os.Exit(code)
	}
}

func run(stationsFlag string) int {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		return 1
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open store %s: %v\n", cfg.DBPath, err)
		return 1
	}
	defer st.Close()

	engine := climate.New(st, climate.Params{
		CoverageFloor:       cfg.CoverageFloor,
		MinClimatologyYears: cfg.MinClimatologyYears,
		MinCoverageYears:    cfg.MinCoverageYears,
		MinRecordYears:      cfg.MinRecordYears,
	}, logger, metrics)

	runner := recompute.New(st, engine, recompute.Config{
		DefaultMetric:   cfg.DefaultMetric,
		LatestWindows:   cfg.LatestWindows,
		RecordWindows:   cfg.RecordWindows,
		MinRecordYears:  cfg.MinRecordYears,
		MaxLookbackDays: cfg.LatestMaxLookbackDays,
		Parallelism:     cfg.RecomputeParallelism,
	}, logger, metrics, clockwork.NewRealClock())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ids, err := resolveStations(ctx, st, stationsFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	fmt.Printf("=== Backfilling %d stations ===\n", len(ids))
	start := time.Now()
	var failed int

	for _, id := range ids {
		if ctx.Err() != nil {
			fmt.Fprintf(os.Stderr, "FATAL: interrupted, %d stations left\n", remaining(ids, id))
			return 1
		}
		if err := runner.Backfill(ctx, id); err != nil {
			failed++
			fmt.Printf("  %-14s FAILED: %v\n", id, err)
			continue
		}
		fmt.Printf("  %-14s ok\n", id)
	}

	fmt.Printf("\n%d backfilled, %d failed in %s\n",
		len(ids)-failed, failed, time.Since(start).Round(time.Millisecond))
	if failed > 0 {
		return 1
	}
	return 0
}

func resolveStations(ctx context.Context, st *store.Store, stationsFlag string) ([]string, error) {
	if stationsFlag != "" {
		var ids []string
		for _, id := range strings.Split(stationsFlag, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("-stations %q holds no station ids", stationsFlag)
		}
		return ids, nil
	}

	stations, err := st.ListStations(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	if len(stations) == 0 {
		return nil, fmt.Errorf("no stations in the store; seed them first")
	}
	ids := make([]string, 0, len(stations))
	for _, s := range stations {
		ids = append(ids, s.ID)
	}
	return ids, nil
}

func remaining(ids []string, current string) int {
	for i, id := range ids {
		if id == current {
			return len(ids) - i
		}
	}
	return 0
}
