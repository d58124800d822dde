package climate

import (
	"context"

	"github.com/couchcryptid/climate-insights/internal/domain"
)

// alignedValue is one year's rolling value at a query's calendar position.
type alignedValue struct {
	year  int
	value float64
}

// collectAligned gathers, in one streaming pass over the station's history,
// the rolling value ending on end's month/day for every year on record.
//
// Returns the query year's own window (nil when it cannot be evaluated at
// all) and the reference sample of every other qualifying year in ascending
// year order. Sample years must clear the coverage floor and, when sinceYear
// is set, fall on or after it; the current year is exempt from both filters
// so the caller can report its coverage precisely. A position of Feb 29
// contributes nothing from non-leap years, which simply have no such date.
func (e *Engine) collectAligned(ctx context.Context, stationID string, metric domain.Metric, windowDays int, end domain.Date, sinceYear int) (*domain.RollingWindowValue, []alignedValue, error) {
	month, day := end.Month(), end.Day()
	endYear := end.Year()

	var current *domain.RollingWindowValue
	var sample []alignedValue

	err := e.scanWindows(ctx, stationID, metric, windowDays, domain.Date{}, domain.Date{}, func(d domain.Date, mean, coverage float64) {
		if d.Month() != month || d.Day() != day {
			return
		}
		if d.Year() == endYear {
			current = &domain.RollingWindowValue{
				StationID:     stationID,
				Metric:        metric,
				WindowDays:    windowDays,
				EndDate:       d,
				Mean:          mean,
				CoverageRatio: coverage,
			}
			return
		}
		if coverage < e.params.CoverageFloor {
			return
		}
		if sinceYear > 0 && d.Year() < sinceYear {
			return
		}
		sample = append(sample, alignedValue{year: d.Year(), value: mean})
	})
	if err != nil {
		return nil, nil, err
	}
	return current, sample, nil
}
