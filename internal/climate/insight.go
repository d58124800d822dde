package climate

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/couchcryptid/climate-insights/internal/domain"
)

// Insight judges one station period against its own climatology: how far the
// rolling value sits from what is normal for that time of year, said plainly.
func (e *Engine) Insight(ctx context.Context, req InsightRequest) (domain.Insight, error) {
	if err := req.validate(); err != nil {
		return domain.Insight{}, err
	}

	current, sample, err := e.collectAligned(ctx, req.StationID, req.Metric, req.WindowDays, req.EndDate, req.SinceYear)
	if err != nil {
		return domain.Insight{}, err
	}
	if current == nil {
		return domain.Insight{}, fmt.Errorf("%w: %s/%s has no observations in the %d-day window ending %s",
			domain.ErrNoDataForDate, req.StationID, req.Metric, req.WindowDays, req.EndDate)
	}
	if current.CoverageRatio < e.params.CoverageFloor {
		return domain.Insight{}, fmt.Errorf("%w: window ending %s covers %.0f%% of %d days",
			domain.ErrInsufficientCoverage, req.EndDate, current.CoverageRatio*100, req.WindowDays)
	}

	insight := e.compose(req, *current, sample)
	e.metrics.InsightsComputed.WithLabelValues(string(insight.Severity)).Inc()
	e.logger.Debug("computed insight",
		"station_id", req.StationID,
		"metric", req.Metric,
		"window_days", req.WindowDays,
		"end_date", insight.EndDate.String(),
		"severity", insight.Severity,
		"sample_years", len(sample),
	)
	return insight, nil
}

// compose builds the Insight from an evaluated current window and its
// calendar-aligned reference sample. The sample arrives in ascending year
// order and never contains the current year.
func (e *Engine) compose(req InsightRequest, current domain.RollingWindowValue, sample []alignedValue) domain.Insight {
	label := windowLabel(req.WindowDays)
	insight := domain.Insight{
		StationID:  req.StationID,
		EndDate:    current.EndDate,
		WindowDays: req.WindowDays,
		Metric:     req.Metric,
		Value:      current.Mean,
		Severity:   domain.SeverityInsufficientData,
		DataQuality: domain.DataQuality{
			CoverageYears: len(sample),
			CoverageRatio: current.CoverageRatio,
			NSamples:      len(sample),
			SinceYear:     req.SinceYear,
		},
	}
	if len(sample) > 0 {
		insight.DataQuality.FirstYear = sample[0].year
	}
	if len(sample) < e.params.MinClimatologyYears {
		insight.PrimaryStatement = insufficientStatement(label)
		insight.SupportingLine = insufficientSupport(len(sample), e.params.MinClimatologyYears)
		return insight
	}

	values := make([]float64, len(sample))
	for i, s := range sample {
		values[i] = s.value
	}

	// The current value is ranked within the population of all
	// same-calendar periods, itself included.
	population := append(append(make([]float64, 0, len(values)+1), values...), current.Mean)
	p, _ := Percentile(current.Mean, population)

	severity, direction := Classify(p, true, len(sample), e.params.MinClimatologyYears)

	// Shallow records soften the headline; the current year counts toward
	// the years on record. A pinned since_year baseline is deliberate and
	// keeps its full severity.
	if req.SinceYear == 0 && len(sample)+1 < e.params.MinCoverageYears {
		severity = severity.Downgrade()
	}

	sort.Float64s(values)

	insight.Percentile = &p
	insight.Severity = severity
	insight.Direction = direction
	insight.NormalBand = &domain.NormalBand{
		P25: Quantile(values, 25),
		P75: Quantile(values, 75),
	}

	isRecord := len(sample) >= e.params.MinRecordYears &&
		ranksFirst(current.Mean, current.EndDate.Year(), sample, direction)
	insight.PrimaryStatement = primaryStatement(severity, direction, label, isRecord)
	insight.SupportingLine = supportingLine(p, direction, label, insight.DataQuality, current.EndDate.Year())
	return insight
}

// ranksFirst reports whether the current value would take rank 1 in its
// direction against the sample. Ties break toward the earlier year, so a tie
// with any prior year loses.
func ranksFirst(v float64, year int, sample []alignedValue, dir domain.Direction) bool {
	for _, s := range sample {
		switch {
		case dir == domain.DirectionWarm && s.value > v:
			return false
		case dir == domain.DirectionCold && s.value < v:
			return false
		case s.value == v && s.year < year:
			return false
		}
	}
	return true
}

// Series produces the charting series for [StartDate, EndDate]: each day's
// rolling value with the climatology band for that calendar position. Days
// below the coverage floor are omitted; days whose calendar position has no
// reference sample carry a value but nil band fields.
func (e *Engine) Series(ctx context.Context, req SeriesRequest) ([]domain.SeriesPoint, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	wanted := positionsIn(req.StartDate, req.EndDate)

	type yearValue struct {
		year  int
		value float64
	}
	buckets := make(map[int][]yearValue)
	type pointValue struct {
		date  domain.Date
		value float64
	}
	var points []pointValue

	startDay, endDay := epochDay(req.StartDate), epochDay(req.EndDate)

	err := e.scanWindows(ctx, req.StationID, req.Metric, req.WindowDays, domain.Date{}, domain.Date{}, func(d domain.Date, mean, coverage float64) {
		if coverage < e.params.CoverageFloor {
			return
		}
		pos := calendarPos(d)
		if wanted == nil || wanted[pos] {
			buckets[pos] = append(buckets[pos], yearValue{year: d.Year(), value: mean})
		}
		if day := epochDay(d); day >= startDay && day <= endDay {
			points = append(points, pointValue{date: d, value: mean})
		}
	})
	if err != nil {
		return nil, err
	}

	series := make([]domain.SeriesPoint, 0, len(points))
	for _, pt := range points {
		ref := make([]float64, 0, len(buckets[calendarPos(pt.date)]))
		for _, yv := range buckets[calendarPos(pt.date)] {
			if yv.year == pt.date.Year() {
				continue
			}
			if req.SinceYear > 0 && yv.year < req.SinceYear {
				continue
			}
			ref = append(ref, yv.value)
		}
		point := domain.SeriesPoint{EndDate: pt.date, Value: pt.value}
		if len(ref) > 0 {
			population := append(append(make([]float64, 0, len(ref)+1), ref...), pt.value)
			p, _ := Percentile(pt.value, population)
			sort.Float64s(ref)
			point.Percentile = &p
			point.P10 = f64ptr(Quantile(ref, 10))
			point.P25 = f64ptr(Quantile(ref, 25))
			point.P50 = f64ptr(Quantile(ref, 50))
			point.P75 = f64ptr(Quantile(ref, 75))
			point.P90 = f64ptr(Quantile(ref, 90))
		}
		series = append(series, point)
	}
	return series, nil
}

// positionsIn returns the set of calendar positions covered by [start, end],
// or nil when the range spans a whole year and every position qualifies.
func positionsIn(start, end domain.Date) map[int]bool {
	if end.DaysSince(start) >= 366 {
		return nil
	}
	set := make(map[int]bool)
	for d := start; !d.After(end.Time); d = d.AddDays(1) {
		set[calendarPos(d)] = true
	}
	return set
}

func calendarPos(d domain.Date) int {
	return int(d.Month())*100 + d.Day()
}

func f64ptr(v float64) *float64 {
	return &v
}

// windowLabel names a window length the way a person would.
func windowLabel(windowDays int) string {
	switch windowDays {
	case 1:
		return "day"
	case 7:
		return "week"
	case 365:
		return "year"
	default:
		return fmt.Sprintf("%d-day period", windowDays)
	}
}

func primaryStatement(sev domain.Severity, dir domain.Direction, label string, isRecord bool) string {
	if isRecord {
		if dir == domain.DirectionCold {
			return fmt.Sprintf("This %s is the coldest on record.", label)
		}
		return fmt.Sprintf("This %s is the warmest on record.", label)
	}
	side := "warm"
	comparative := "warmer"
	if dir == domain.DirectionCold {
		side = "cold"
		comparative = "colder"
	}
	switch sev {
	case domain.SeverityExtreme:
		return fmt.Sprintf("This %s is extremely %s.", label, side)
	case domain.SeverityUnusual:
		return fmt.Sprintf("This %s is unusually %s.", label, side)
	case domain.SeverityABit:
		return fmt.Sprintf("This %s is a bit %s than normal.", label, comparative)
	default:
		return fmt.Sprintf("This %s is near normal.", label)
	}
}

func supportingLine(p float64, dir domain.Direction, label string, dq domain.DataQuality, endYear int) string {
	comparative := "Warmer"
	pct := int(math.Round(p))
	if dir == domain.DirectionCold {
		comparative = "Colder"
		pct = int(math.Round(100 - p))
	}
	span := fmt.Sprintf("since %d", dq.FirstYear)
	if dq.SinceYear > 0 {
		span = fmt.Sprintf("%d–%d", dq.SinceYear, endYear)
	}
	return fmt.Sprintf("%s than %d%% of historical %ss (%s, %d years of data).",
		comparative, pct, label, span, dq.CoverageYears)
}

func insufficientStatement(label string) string {
	return fmt.Sprintf("Not enough history to judge this %s.", label)
}

func insufficientSupport(n, minYears int) string {
	switch n {
	case 0:
		return fmt.Sprintf("No comparable years available (minimum %d).", minYears)
	case 1:
		return fmt.Sprintf("Only 1 comparable year available (minimum %d).", minYears)
	default:
		return fmt.Sprintf("Only %d comparable years available (minimum %d).", n, minYears)
	}
}
