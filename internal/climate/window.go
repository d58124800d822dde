package climate

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/climate-insights/internal/domain"
)

const (
	secondsPerDay = 86400
	unsetDay      = math.MinInt64
)

func epochDay(d domain.Date) int64 {
	return d.Unix() / secondsPerDay
}

func dateFromEpochDay(day int64) domain.Date {
	return domain.DateOf(time.Unix(day*secondsPerDay, 0))
}

// windowScanner maintains a trailing N-day window over a daily series fed in
// ascending date order. Advancing and observing are O(1) per day; slots are
// indexed by calendar day, so gaps in the series clear the days they skip.
type windowScanner struct {
	days int
	vals []float64
	set  []bool
	sum  float64
	n    int
	end  int64 // epoch day the window currently ends on
}

func newWindowScanner(days int) *windowScanner {
	return &windowScanner{
		days: days,
		vals: make([]float64, days),
		set:  make([]bool, days),
		end:  unsetDay,
	}
}

func (w *windowScanner) slot(day int64) int {
	s := int(day % int64(w.days))
	if s < 0 {
		s += w.days
	}
	return s
}

// advanceTo slides the window end forward to day, evicting days that fall out
// of [day−days+1, day]. Jumping past the whole window resets it.
func (w *windowScanner) advanceTo(day int64) {
	if day <= w.end {
		return
	}
	if w.end == unsetDay || day-w.end >= int64(w.days) {
		for i := range w.set {
			w.set[i] = false
		}
		w.sum, w.n = 0, 0
		w.end = day
		return
	}
	for w.end < day {
		w.end++
		idx := w.slot(w.end)
		if w.set[idx] {
			w.sum -= w.vals[idx]
			w.n--
			w.set[idx] = false
		}
	}
}

// observe records the value for day and makes day the window end.
func (w *windowScanner) observe(day int64, v float64) {
	w.advanceTo(day)
	idx := w.slot(day)
	if w.set[idx] {
		w.sum -= w.vals[idx]
		w.n--
	}
	w.vals[idx] = v
	w.set[idx] = true
	w.sum += v
	w.n++
}

func (w *windowScanner) mean() (float64, bool) {
	if w.n == 0 {
		return 0, false
	}
	return w.sum / float64(w.n), true
}

func (w *windowScanner) coverage() float64 {
	return float64(w.n) / float64(w.days)
}

// scanWindows streams the (stationID, metric) series once and evaluates the
// trailing window at every date in [evalFrom, evalTo] whose window holds at
// least one observation, invoking visit in ascending date order. Zero
// evalFrom starts at the first observation; zero evalTo runs until windows
// drain past the last one. Memory stays O(windowDays) regardless of history
// length.
func (e *Engine) scanWindows(ctx context.Context, stationID string, metric domain.Metric, windowDays int, evalFrom, evalTo domain.Date, visit func(end domain.Date, mean, coverage float64)) error {
	var scanFrom domain.Date
	if !evalFrom.IsZero() {
		scanFrom = evalFrom.AddDays(-(windowDays - 1))
	}

	evalStart := int64(unsetDay)
	if !evalFrom.IsZero() {
		evalStart = epochDay(evalFrom)
	}
	evalEnd := int64(math.MaxInt64)
	if !evalTo.IsZero() {
		evalEnd = epochDay(evalTo)
	}

	w := newWindowScanner(windowDays)
	cursor := int64(unsetDay)
	lastData := int64(unsetDay)

	emit := func(day int64) {
		if mean, ok := w.mean(); ok {
			visit(dateFromEpochDay(day), mean, w.coverage())
		}
	}

	err := e.source.ScanDaily(ctx, stationID, metric, scanFrom, evalTo, func(date domain.Date, value float64) error {
		day := epochDay(date)
		if cursor == unsetDay {
			cursor = day
			if evalStart != unsetDay && evalStart > cursor {
				cursor = evalStart
			}
		}

		// Evaluate dates preceding this observation while their windows still
		// hold earlier data; skip straight here once they drain.
		for cursor < day {
			if lastData == unsetDay || cursor >= lastData+int64(windowDays) {
				cursor = day
				break
			}
			w.advanceTo(cursor)
			emit(cursor)
			cursor++
		}

		w.observe(day, value)
		lastData = day
		if cursor == day {
			emit(cursor)
			cursor++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan %s/%s: %w", stationID, metric, err)
	}

	if cursor == unsetDay {
		return nil // no observations in range
	}

	// Drain evaluation dates past the last observation.
	for ; cursor <= evalEnd && cursor < lastData+int64(windowDays); cursor++ {
		w.advanceTo(cursor)
		emit(cursor)
	}
	return nil
}

// WindowValue computes the trailing mean ending at end.
//
// Fails with domain.ErrNoDataForDate when the window holds no observations
// and domain.ErrInsufficientCoverage when it holds some but fewer than the
// coverage floor requires.
func (e *Engine) WindowValue(ctx context.Context, stationID string, metric domain.Metric, windowDays int, end domain.Date) (domain.RollingWindowValue, error) {
	if err := validateKey(stationID, metric, windowDays, end, 0); err != nil {
		return domain.RollingWindowValue{}, err
	}

	var got *domain.RollingWindowValue
	err := e.scanWindows(ctx, stationID, metric, windowDays, end, end, func(d domain.Date, mean, coverage float64) {
		got = &domain.RollingWindowValue{
			StationID:     stationID,
			Metric:        metric,
			WindowDays:    windowDays,
			EndDate:       d,
			Mean:          mean,
			CoverageRatio: coverage,
		}
	})
	if err != nil {
		return domain.RollingWindowValue{}, err
	}
	if got == nil {
		return domain.RollingWindowValue{}, fmt.Errorf("%w: %s/%s window ending %s is empty",
			domain.ErrNoDataForDate, stationID, metric, end)
	}
	if got.CoverageRatio < e.params.CoverageFloor {
		return domain.RollingWindowValue{}, fmt.Errorf("%w: %s/%s window ending %s covers %.0f%% of %d days",
			domain.ErrInsufficientCoverage, stationID, metric, end, got.CoverageRatio*100, windowDays)
	}
	return *got, nil
}
