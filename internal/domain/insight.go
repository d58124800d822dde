package domain

import (
	"fmt"
	"time"
)

// Severity is the ordered unusualness label derived from percentile distance
// from the median: insufficient_data < normal < a_bit < unusual < extreme.
type Severity string

const (
	SeverityInsufficientData Severity = "insufficient_data"
	SeverityNormal           Severity = "normal"
	SeverityABit             Severity = "a_bit"
	SeverityUnusual          Severity = "unusual"
	SeverityExtreme          Severity = "extreme"
)

// Level returns the severity's position on the ordered scale, 0 for
// insufficient_data through 4 for extreme.
func (s Severity) Level() int {
	switch s {
	case SeverityNormal:
		return 1
	case SeverityABit:
		return 2
	case SeverityUnusual:
		return 3
	case SeverityExtreme:
		return 4
	default:
		return 0
	}
}

// Downgrade steps the severity one level toward normal. normal and
// insufficient_data are returned unchanged.
func (s Severity) Downgrade() Severity {
	switch s {
	case SeverityExtreme:
		return SeverityUnusual
	case SeverityUnusual:
		return SeverityABit
	case SeverityABit:
		return SeverityNormal
	default:
		return s
	}
}

// Direction is the side of the climatology a value sits on. Empty for
// insufficient_data, where no side can be judged.
type Direction string

const (
	DirectionCold Direction = "cold"
	DirectionWarm Direction = "warm"
	DirectionNone Direction = ""
)

// ParseDirection validates an explicit direction parameter, as supplied to
// the extremes ranking. Only cold and warm are accepted.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionCold, DirectionWarm:
		return Direction(s), nil
	}
	return DirectionNone, fmt.Errorf("%w: unknown direction %q", ErrInvalidParameter, s)
}

// RollingWindowValue is a trailing mean over [EndDate−WindowDays+1, EndDate].
// Derived on demand, never persisted as a primary entity.
type RollingWindowValue struct {
	StationID     string  `json:"station_id"`
	Metric        Metric  `json:"metric"`
	WindowDays    int     `json:"window_days"`
	EndDate       Date    `json:"end_date"`
	Mean          float64 `json:"mean"`
	CoverageRatio float64 `json:"coverage_ratio"`
}

// StartDate is the first calendar day inside the window.
func (w RollingWindowValue) StartDate() Date {
	return w.EndDate.AddDays(-(w.WindowDays - 1))
}

// NormalBand is the interquartile range of the climatology, the span of
// unremarkable values for the calendar position.
type NormalBand struct {
	P25 float64 `json:"p25"`
	P75 float64 `json:"p75"`
}

// DataQuality describes the reference sample behind an insight. Under strict
// year alignment NSamples equals CoverageYears: each qualifying year
// contributes exactly one rolling value.
type DataQuality struct {
	CoverageYears int     `json:"coverage_years"`
	FirstYear     int     `json:"first_year"`
	CoverageRatio float64 `json:"coverage_ratio"`
	NSamples      int     `json:"n_samples"`
	SinceYear     int     `json:"since_year,omitempty"`
}

// Insight is the engine's judgment of one station period: the rolling value,
// where it sits in the climatology, and how to say that to a person.
//
// Invariants: Percentile is in [0,100] or nil; Severity is
// insufficient_data exactly when Percentile is nil or the sample is below the
// configured minimum, and NormalBand is nil whenever Percentile is.
type Insight struct {
	StationID        string      `json:"station_id"`
	EndDate          Date        `json:"end_date"`
	WindowDays       int         `json:"window_days"`
	Metric           Metric      `json:"metric"`
	Value            float64     `json:"value"`
	Percentile       *float64    `json:"percentile"`
	Severity         Severity    `json:"severity"`
	Direction        Direction   `json:"direction,omitempty"`
	NormalBand       *NormalBand `json:"normal_band"`
	DataQuality      DataQuality `json:"data_quality"`
	PrimaryStatement string      `json:"primary_statement"`
	SupportingLine   string      `json:"supporting_line"`
}

// SeriesPoint is one day of a charting series: the rolling value plus the
// climatology band for that calendar position. Band fields are nil when the
// day has no reference sample.
type SeriesPoint struct {
	EndDate    Date     `json:"end_date"`
	Value      float64  `json:"value"`
	Percentile *float64 `json:"percentile"`
	P10        *float64 `json:"p10"`
	P25        *float64 `json:"p25"`
	P50        *float64 `json:"p50"`
	P75        *float64 `json:"p75"`
	P90        *float64 `json:"p90"`
}

// SeasonalRankingEntry is one year's standing in the same-calendar-position
// ranking.
type SeasonalRankingEntry struct {
	Rank             int     `json:"rank"`
	Year             int     `json:"year"`
	Value            float64 `json:"value"`
	DeltaFromCurrent float64 `json:"delta_from_current"`
	IsCurrent        bool    `json:"is_current"`
}

// SeasonalRanking ranks the current calendar-aligned value against every
// same-time-of-year historical value. Ranks are a dense 1..TotalYears
// permutation; exactly one entry has IsCurrent set.
type SeasonalRanking struct {
	StationID   string                 `json:"station_id"`
	Metric      Metric                 `json:"metric"`
	WindowDays  int                    `json:"window_days"`
	EndDate     Date                   `json:"end_date"`
	Direction   Direction              `json:"direction"`
	CurrentRank int                    `json:"current_rank"`
	TotalYears  int                    `json:"total_years"`
	Rankings    []SeasonalRankingEntry `json:"rankings"`
}

// ExtremesRankingEntry is one non-overlapping period in the all-history
// extremes ranking, carrying its full date span.
type ExtremesRankingEntry struct {
	Rank             int     `json:"rank"`
	Year             int     `json:"year"`
	Value            float64 `json:"value"`
	DeltaFromCurrent float64 `json:"delta_from_current"`
	IsCurrent        bool    `json:"is_current"`
	StartDate        Date    `json:"start_date"`
	EndDate          Date    `json:"end_date"`
}

// ExtremesRanking ranks the current window against the most extreme
// non-overlapping periods of that length across the station's entire history,
// irrespective of season. TotalYears counts ranked periods, mirroring the
// seasonal shape.
type ExtremesRanking struct {
	StationID   string                 `json:"station_id"`
	Metric      Metric                 `json:"metric"`
	WindowDays  int                    `json:"window_days"`
	EndDate     Date                   `json:"end_date"`
	Direction   Direction              `json:"direction"`
	CurrentRank int                    `json:"current_rank"`
	TotalYears  int                    `json:"total_years"`
	Rankings    []ExtremesRankingEntry `json:"rankings"`
}

// RecordType selects which end of the distribution a station record tracks.
type RecordType string

const (
	RecordHighest RecordType = "highest"
	RecordLowest  RecordType = "lowest"
)

// StationRecord is the single most extreme rolling value ever observed for a
// (station, metric, window, record type) key. Value, dates, and NYears are
// replaced together; readers never see a half-updated record.
type StationRecord struct {
	StationID  string     `json:"station_id"`
	Metric     Metric     `json:"metric"`
	WindowDays int        `json:"window_days"`
	RecordType RecordType `json:"record_type"`
	Value      float64    `json:"value"`
	StartDate  Date       `json:"start_date"`
	EndDate    Date       `json:"end_date"`
	NYears     int        `json:"n_years"`
}

// Beats reports whether candidate value v is strictly more extreme than the
// stored record in the record's own direction.
func (r StationRecord) Beats(v float64) bool {
	if r.RecordType == RecordHighest {
		return v > r.Value
	}
	return v < r.Value
}

// LatestInsightSnapshot is the cached most-recent Insight for one
// (station_id, window_days) key. Overwritten only by a compute whose EndDate
// is not older than the stored one.
type LatestInsightSnapshot struct {
	Insight
	ComputedAt time.Time `json:"computed_at"`
}
