// Package climate is the insight-computation engine: rolling-window
// aggregation over daily series, climatology reference samples, percentile
// ranking, severity classification, seasonal and all-time extremes rankings.
//
// Every operation is a pure function over an ObservationSource; the engine
// owns no mutable state and is safe for unbounded concurrent use.
package climate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/climate-insights/internal/domain"
	"github.com/couchcryptid/climate-insights/internal/observability"
)

// ObservationSource streams a station's daily series in ascending date order.
// Implemented by the SQLite store; tests use an in-memory fake.
type ObservationSource interface {
	// ScanDaily invokes fn for every observation of (stationID, metric) with
	// date in [from, to], in ascending date order. A zero from means the start
	// of history; a zero to means the end. fn returning an error aborts the scan.
	ScanDaily(ctx context.Context, stationID string, metric domain.Metric, from, to domain.Date, fn func(date domain.Date, value float64) error) error

	// LatestDate returns the most recent observation date for the key, or
	// domain.ErrNoDataForDate when the key has no observations.
	LatestDate(ctx context.Context, stationID string, metric domain.Metric) (domain.Date, error)
}

// Params are the engine's classification thresholds. Zero values are not
// usable; start from DefaultParams.
type Params struct {
	// CoverageFloor is the minimum observed-days/window-days ratio a window
	// needs to produce a value, in (0, 1].
	CoverageFloor float64
	// MinClimatologyYears is the reference-sample size below which an insight
	// degrades to severity=insufficient_data.
	MinClimatologyYears int
	// MinCoverageYears is the sample size below which severity is downgraded
	// one level; skipped when the caller pinned since_year.
	MinCoverageYears int
	// MinRecordYears is the sample size a rank-1 period needs before the
	// narrative may claim a record.
	MinRecordYears int
}

// DefaultParams mirrors the thresholds the product shipped with.
func DefaultParams() Params {
	return Params{
		CoverageFloor:       0.5,
		MinClimatologyYears: 10,
		MinCoverageYears:    30,
		MinRecordYears:      10,
	}
}

// Engine computes insights, series, and rankings over an ObservationSource.
type Engine struct {
	source  ObservationSource
	params  Params
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates an Engine with the given source, thresholds, and observability.
func New(source ObservationSource, params Params, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		source:  source,
		params:  params,
		logger:  logger,
		metrics: metrics,
	}
}

// InsightRequest identifies one station period to judge.
type InsightRequest struct {
	StationID  string
	Metric     domain.Metric
	WindowDays int
	EndDate    domain.Date
	SinceYear  int // 0 = full history
}

func (r InsightRequest) validate() error {
	return validateKey(r.StationID, r.Metric, r.WindowDays, r.EndDate, r.SinceYear)
}

// SeriesRequest identifies a date range of insight-equivalent points.
type SeriesRequest struct {
	StationID  string
	Metric     domain.Metric
	WindowDays int
	StartDate  domain.Date
	EndDate    domain.Date
	SinceYear  int
}

func (r SeriesRequest) validate() error {
	if err := validateKey(r.StationID, r.Metric, r.WindowDays, r.EndDate, r.SinceYear); err != nil {
		return err
	}
	if r.StartDate.IsZero() {
		return fmt.Errorf("%w: start_date is required", domain.ErrInvalidParameter)
	}
	if r.StartDate.After(r.EndDate.Time) {
		return fmt.Errorf("%w: start_date %s is after end_date %s",
			domain.ErrInvalidParameter, r.StartDate, r.EndDate)
	}
	return nil
}

// RankingRequest identifies one station period to rank seasonally.
type RankingRequest struct {
	StationID  string
	Metric     domain.Metric
	WindowDays int
	EndDate    domain.Date
	SinceYear  int
}

func (r RankingRequest) validate() error {
	return validateKey(r.StationID, r.Metric, r.WindowDays, r.EndDate, r.SinceYear)
}

// ExtremesRequest identifies one station period to rank against all of
// history. Direction is caller-supplied, never derived.
type ExtremesRequest struct {
	StationID  string
	Metric     domain.Metric
	WindowDays int
	EndDate    domain.Date
	Direction  domain.Direction
	SinceYear  int
	Limit      int // 0 = default cap
}

func (r ExtremesRequest) validate() error {
	if err := validateKey(r.StationID, r.Metric, r.WindowDays, r.EndDate, r.SinceYear); err != nil {
		return err
	}
	if r.Direction != domain.DirectionCold && r.Direction != domain.DirectionWarm {
		return fmt.Errorf("%w: unknown direction %q", domain.ErrInvalidParameter, r.Direction)
	}
	if r.Limit < 0 {
		return fmt.Errorf("%w: limit must not be negative", domain.ErrInvalidParameter)
	}
	return nil
}

func validateKey(stationID string, metric domain.Metric, windowDays int, end domain.Date, sinceYear int) error {
	if stationID == "" {
		return fmt.Errorf("%w: station_id is required", domain.ErrInvalidParameter)
	}
	if _, err := domain.ParseMetric(string(metric)); err != nil {
		return err
	}
	if windowDays < 1 {
		return fmt.Errorf("%w: window_days must be >= 1, got %d", domain.ErrInvalidParameter, windowDays)
	}
	if end.IsZero() {
		return fmt.Errorf("%w: end_date is required", domain.ErrInvalidParameter)
	}
	if sinceYear < 0 {
		return fmt.Errorf("%w: since_year must be >= 0, got %d", domain.ErrInvalidParameter, sinceYear)
	}
	return nil
}

// ResolveLatestDate returns the most recent date with an observation for the
// key. Callers hit this before get_insight instead of probing end dates one
// by one when upstream publication lags.
func (e *Engine) ResolveLatestDate(ctx context.Context, stationID string, metric domain.Metric) (domain.Date, error) {
	if stationID == "" {
		return domain.Date{}, fmt.Errorf("%w: station_id is required", domain.ErrInvalidParameter)
	}
	if _, err := domain.ParseMetric(string(metric)); err != nil {
		return domain.Date{}, err
	}
	latest, err := e.source.LatestDate(ctx, stationID, metric)
	if err != nil {
		return domain.Date{}, fmt.Errorf("resolve latest date for %s/%s: %w", stationID, metric, err)
	}
	return latest, nil
}
