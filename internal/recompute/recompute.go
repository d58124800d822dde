// Package recompute owns the service's mutable state: it applies ingested
// observations, re-evaluates station records over the window ends a batch can
// change, and refreshes the latest-insight cache. Snapshot writers are
// serialized per (station, window) key; everything else runs in parallel.
package recompute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/couchcryptid/climate-insights/internal/climate"
	"github.com/couchcryptid/climate-insights/internal/domain"
	"github.com/couchcryptid/climate-insights/internal/observability"
)

// Store is the persistence surface the runner mutates and reads back.
type Store interface {
	UpsertObservations(ctx context.Context, obs []domain.Observation) error
	CountYears(ctx context.Context, stationID string, metric domain.Metric) (int, error)
	ReplaceRecordIfBeaten(ctx context.Context, candidate domain.StationRecord) (bool, error)
	PutSnapshotIfNewer(ctx context.Context, snap domain.LatestInsightSnapshot) (bool, error)
	ListStations(ctx context.Context, activeOnly bool) ([]domain.Station, error)
}

// InsightEngine evaluates windows and composes insights over the store.
type InsightEngine interface {
	Insight(ctx context.Context, req climate.InsightRequest) (domain.Insight, error)
	WindowExtremes(ctx context.Context, stationID string, metric domain.Metric, windowDays int, from, to domain.Date) (highest, lowest *climate.WindowExtreme, err error)
	ResolveLatestDate(ctx context.Context, stationID string, metric domain.Metric) (domain.Date, error)
}

// Config sizes the runner's refresh work.
type Config struct {
	// DefaultMetric is the metric latest-insight snapshots are computed for.
	DefaultMetric domain.Metric
	// LatestWindows are the window lengths cached per station.
	LatestWindows []int
	// RecordWindows are the window lengths tracked as station records.
	RecordWindows []int
	// MinRecordYears is the years-of-data floor below which no record rows
	// are written.
	MinRecordYears int
	// MaxLookbackDays bounds the snapshot walk-back from the latest
	// observation date when recent windows are not yet computable.
	MaxLookbackDays int
	// Parallelism bounds concurrent station refreshes in a full recompute.
	Parallelism int
	// RefreshInterval is the scheduler period; zero disables the ticker.
	RefreshInterval time.Duration
	// MinTriggerInterval rate-limits external recompute triggers.
	MinTriggerInterval time.Duration
}

var (
	// ErrAlreadyRunning reports that a full recompute is in flight.
	ErrAlreadyRunning = errors.New("recompute already running")
	// ErrRateLimited reports a trigger arriving before MinTriggerInterval
	// has elapsed.
	ErrRateLimited = errors.New("recompute triggered too frequently")
)

// Runner executes the recompute workflows against the store.
type Runner struct {
	store   Store
	engine  InsightEngine
	cfg     Config
	logger  *slog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock
	limiter *rate.Limiter
	keys    keyedMutex
	running atomic.Bool
	ready   atomic.Bool
}

// New creates a Runner with the given collaborators.
func New(store Store, engine InsightEngine, cfg Config, logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock) *Runner {
	return &Runner{
		store:   store,
		engine:  engine,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		clock:   clock,
		limiter: rate.NewLimiter(rate.Every(cfg.MinTriggerInterval), 1),
	}
}

// CheckReadiness returns nil once a full recompute pass has completed, or an
// error describing why the service is not yet ready.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("first recompute pass has not completed yet")
	}
	return nil
}

// ApplyObservations persists a batch and re-derives everything it can have
// invalidated: station records over the newly computable window ends, then
// the affected stations' latest-insight snapshots. Re-delivery of the same
// batch converges to the same state.
func (r *Runner) ApplyObservations(ctx context.Context, obs []domain.Observation) error {
	if len(obs) == 0 {
		return nil
	}
	if err := r.store.UpsertObservations(ctx, obs); err != nil {
		return err
	}
	r.metrics.ObservationsIngested.Add(float64(len(obs)))

	type span struct {
		stationID string
		metric    domain.Metric
		from, to  domain.Date
	}
	spans := make(map[string]*span)
	stations := make(map[string]bool)
	for _, o := range obs {
		stations[o.StationID] = true
		key := o.StationID + "|" + string(o.Metric)
		sp := spans[key]
		if sp == nil {
			spans[key] = &span{stationID: o.StationID, metric: o.Metric, from: o.Date, to: o.Date}
			continue
		}
		if o.Date.Before(sp.from.Time) {
			sp.from = o.Date
		}
		if o.Date.After(sp.to.Time) {
			sp.to = o.Date
		}
	}

	for _, sp := range spans {
		if err := r.refreshRecords(ctx, sp.stationID, sp.metric, sp.from, sp.to); err != nil {
			return err
		}
	}
	for stationID := range stations {
		if err := r.RefreshStation(ctx, stationID); err != nil {
			return err
		}
	}
	return nil
}

// refreshRecords re-evaluates the record windows whose end dates observations
// in [from, to] can have changed: exactly those ending in [from, to+w−1].
// Zero from and to sweep the station's full history. Stations with fewer
// years of data than the record floor are skipped entirely.
func (r *Runner) refreshRecords(ctx context.Context, stationID string, metric domain.Metric, from, to domain.Date) error {
	years, err := r.store.CountYears(ctx, stationID, metric)
	if err != nil {
		return err
	}
	if years < r.cfg.MinRecordYears {
		return nil
	}

	for _, w := range r.cfg.RecordWindows {
		evalTo := to
		if !to.IsZero() {
			evalTo = to.AddDays(w - 1)
		}
		highest, lowest, err := r.engine.WindowExtremes(ctx, stationID, metric, w, from, evalTo)
		if err != nil {
			return fmt.Errorf("record extremes %s/%s/%dd: %w", stationID, metric, w, err)
		}
		for _, candidate := range []struct {
			extreme    *climate.WindowExtreme
			recordType domain.RecordType
		}{
			{highest, domain.RecordHighest},
			{lowest, domain.RecordLowest},
		} {
			if candidate.extreme == nil {
				continue
			}
			replaced, err := r.store.ReplaceRecordIfBeaten(ctx, domain.StationRecord{
				StationID:  stationID,
				Metric:     metric,
				WindowDays: w,
				RecordType: candidate.recordType,
				Value:      candidate.extreme.Value,
				StartDate:  candidate.extreme.EndDate.AddDays(-(w - 1)),
				EndDate:    candidate.extreme.EndDate,
				NYears:     years,
			})
			if err != nil {
				return err
			}
			if replaced {
				r.metrics.RecordsReplaced.Inc()
				r.logger.Info("station record replaced",
					"station_id", stationID,
					"metric", metric,
					"window_days", w,
					"record_type", candidate.recordType,
					"value", candidate.extreme.Value,
					"end_date", candidate.extreme.EndDate.String(),
				)
			}
		}
	}
	return nil
}

// RefreshStation recomputes the latest-insight snapshots for every configured
// window length, walking back from the newest observation date to absorb
// upstream publication lag. A station with no observations is a no-op.
func (r *Runner) RefreshStation(ctx context.Context, stationID string) error {
	latest, err := r.engine.ResolveLatestDate(ctx, stationID, r.cfg.DefaultMetric)
	if err != nil {
		if errors.Is(err, domain.ErrNoDataForDate) {
			return nil
		}
		return err
	}
	for _, w := range r.cfg.LatestWindows {
		if err := r.refreshSnapshot(ctx, stationID, w, latest); err != nil {
			return err
		}
	}
	return nil
}

// refreshSnapshot stores the first computable insight at or before latest.
func (r *Runner) refreshSnapshot(ctx context.Context, stationID string, windowDays int, latest domain.Date) error {
	unlock := r.keys.lock(fmt.Sprintf("%s|%d", stationID, windowDays))
	defer unlock()

	for offset := 0; offset <= r.cfg.MaxLookbackDays; offset++ {
		insight, err := r.engine.Insight(ctx, climate.InsightRequest{
			StationID:  stationID,
			Metric:     r.cfg.DefaultMetric,
			WindowDays: windowDays,
			EndDate:    latest.AddDays(-offset),
		})
		switch {
		case errors.Is(err, domain.ErrNoDataForDate), errors.Is(err, domain.ErrInsufficientCoverage):
			continue
		case err != nil:
			return fmt.Errorf("refresh snapshot %s/%dd: %w", stationID, windowDays, err)
		}

		written, err := r.store.PutSnapshotIfNewer(ctx, domain.LatestInsightSnapshot{
			Insight:    insight,
			ComputedAt: r.clock.Now().UTC(),
		})
		if err != nil {
			return err
		}
		if written {
			r.metrics.SnapshotWrites.Inc()
		} else {
			r.metrics.SnapshotSkips.Inc()
		}
		return nil
	}

	r.logger.Debug("no computable window for snapshot",
		"station_id", stationID, "window_days", windowDays, "latest", latest.String())
	return nil
}

// RecomputeAll refreshes the latest-insight snapshots of every active
// station, parallel across stations. Only one run executes at a time; a
// concurrent call reports ErrAlreadyRunning. A single station's failure is
// logged and counted without aborting the pass.
func (r *Runner) RecomputeAll(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer r.running.Store(false)
	return r.recomputeLocked(ctx)
}

func (r *Runner) recomputeLocked(ctx context.Context) error {
	start := r.clock.Now()
	r.metrics.RecomputeRuns.Inc()
	r.metrics.RecomputeRunning.Set(1)
	defer r.metrics.RecomputeRunning.Set(0)

	stations, err := r.store.ListStations(ctx, true)
	if err != nil {
		r.metrics.RecomputeFailures.Inc()
		return fmt.Errorf("list stations: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(r.cfg.Parallelism)
	for _, st := range stations {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if err := r.RefreshStation(ctx, st.ID); err != nil {
				r.metrics.RecomputeFailures.Inc()
				r.logger.Error("station refresh failed", "station_id", st.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.metrics.RecomputeDuration.Observe(r.clock.Since(start).Seconds())
	r.ready.Store(true)
	r.logger.Info("recompute pass finished", "stations", len(stations), "elapsed", r.clock.Since(start))
	return nil
}

// Trigger starts an asynchronous full recompute, subject to the trigger rate
// limit and the single-flight guard. The run detaches from the caller's
// request context.
func (r *Runner) Trigger() error {
	if !r.limiter.Allow() {
		return ErrRateLimited
	}
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	go func() {
		defer r.running.Store(false)
		if err := r.recomputeLocked(context.Background()); err != nil {
			r.logger.Error("triggered recompute failed", "error", err)
		}
	}()
	return nil
}

// Backfill sweeps one station's full history: records for every metric and
// tracked window, then the latest-insight snapshots.
func (r *Runner) Backfill(ctx context.Context, stationID string) error {
	for _, metric := range domain.Metrics {
		if err := r.refreshRecords(ctx, stationID, metric, domain.Date{}, domain.Date{}); err != nil {
			return err
		}
	}
	return r.RefreshStation(ctx, stationID)
}

// Run performs an initial recompute pass, then re-runs on the configured
// interval until the context is cancelled. A zero interval runs the initial
// pass only. Readiness flips after the first pass that completes.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("recompute scheduler started",
		"interval", r.cfg.RefreshInterval, "parallelism", r.cfg.Parallelism)

	if err := r.RecomputeAll(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
		r.logger.Error("initial recompute failed", "error", err)
	}
	if r.cfg.RefreshInterval <= 0 {
		return nil
	}

	ticker := r.clock.NewTicker(r.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("recompute scheduler stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			if err := r.RecomputeAll(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
				r.logger.Error("scheduled recompute failed", "error", err)
			}
		}
	}
}

// keyedMutex hands out one mutex per string key. Keys are never evicted; the
// population is bounded by stations × window lengths.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m := k.locks[key]
	if m == nil {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
