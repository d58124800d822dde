package climate

import (
	"context"
	"fmt"
	"sort"

	"github.com/couchcryptid/climate-insights/internal/domain"
)

// topExtremes is the default cap on an extremes ranking's entry list.
// CurrentRank and TotalYears still describe the full selection; the current
// period is appended past the cap when it ranks below it.
const topExtremes = 10

// SeasonalRanking ranks the current calendar-aligned window against the same
// window in every other qualifying year. The ranking direction follows the
// current value's side of the distribution, so the current period always
// ranks from its own extreme.
func (e *Engine) SeasonalRanking(ctx context.Context, req RankingRequest) (domain.SeasonalRanking, error) {
	if err := req.validate(); err != nil {
		return domain.SeasonalRanking{}, err
	}

	current, sample, err := e.collectAligned(ctx, req.StationID, req.Metric, req.WindowDays, req.EndDate, req.SinceYear)
	if err != nil {
		return domain.SeasonalRanking{}, err
	}
	if current == nil {
		return domain.SeasonalRanking{}, fmt.Errorf("%w: %s/%s has no observations in the %d-day window ending %s",
			domain.ErrNoDataForDate, req.StationID, req.Metric, req.WindowDays, req.EndDate)
	}
	if current.CoverageRatio < e.params.CoverageFloor {
		return domain.SeasonalRanking{}, fmt.Errorf("%w: window ending %s covers %.0f%% of %d days",
			domain.ErrInsufficientCoverage, req.EndDate, current.CoverageRatio*100, req.WindowDays)
	}

	population := make([]float64, 0, len(sample)+1)
	for _, s := range sample {
		population = append(population, s.value)
	}
	population = append(population, current.Mean)
	p, _ := Percentile(current.Mean, population)

	direction := domain.DirectionWarm
	if p <= 50 {
		direction = domain.DirectionCold
	}

	years := append(append(make([]alignedValue, 0, len(sample)+1), sample...),
		alignedValue{year: current.EndDate.Year(), value: current.Mean})
	sort.SliceStable(years, func(i, j int) bool {
		if years[i].value != years[j].value {
			if direction == domain.DirectionCold {
				return years[i].value < years[j].value
			}
			return years[i].value > years[j].value
		}
		return years[i].year < years[j].year
	})

	ranking := domain.SeasonalRanking{
		StationID:  req.StationID,
		Metric:     req.Metric,
		WindowDays: req.WindowDays,
		EndDate:    current.EndDate,
		Direction:  direction,
		TotalYears: len(years),
		Rankings:   make([]domain.SeasonalRankingEntry, 0, len(years)),
	}
	for i, y := range years {
		entry := domain.SeasonalRankingEntry{
			Rank:             i + 1,
			Year:             y.year,
			Value:            y.value,
			DeltaFromCurrent: y.value - current.Mean,
			IsCurrent:        y.year == current.EndDate.Year(),
		}
		if entry.IsCurrent {
			ranking.CurrentRank = entry.Rank
		}
		ranking.Rankings = append(ranking.Rankings, entry)
	}
	return ranking, nil
}

// windowCandidate is one evaluable window end in the all-history scan.
type windowCandidate struct {
	day   int64 // epoch day of the window end
	value float64
}

// ExtremesRanking ranks the current window against the most extreme
// non-overlapping windows of the same length anywhere in the station's
// history. The current span is reserved first, then remaining windows are
// taken greedily from the supplied direction's extreme, skipping any that
// overlap an already selected span.
func (e *Engine) ExtremesRanking(ctx context.Context, req ExtremesRequest) (domain.ExtremesRanking, error) {
	if err := req.validate(); err != nil {
		return domain.ExtremesRanking{}, err
	}

	currentDay := epochDay(req.EndDate)
	var current *windowCandidate
	var currentCoverage float64
	var candidates []windowCandidate

	err := e.scanWindows(ctx, req.StationID, req.Metric, req.WindowDays, domain.Date{}, domain.Date{}, func(d domain.Date, mean, coverage float64) {
		day := epochDay(d)
		if day == currentDay {
			current = &windowCandidate{day: day, value: mean}
			currentCoverage = coverage
			return
		}
		if coverage < e.params.CoverageFloor {
			return
		}
		if req.SinceYear > 0 && d.Year() < req.SinceYear {
			return
		}
		candidates = append(candidates, windowCandidate{day: day, value: mean})
	})
	if err != nil {
		return domain.ExtremesRanking{}, err
	}
	if current == nil {
		return domain.ExtremesRanking{}, fmt.Errorf("%w: %s/%s has no observations in the %d-day window ending %s",
			domain.ErrNoDataForDate, req.StationID, req.Metric, req.WindowDays, req.EndDate)
	}
	if currentCoverage < e.params.CoverageFloor {
		return domain.ExtremesRanking{}, fmt.Errorf("%w: window ending %s covers %.0f%% of %d days",
			domain.ErrInsufficientCoverage, req.EndDate, currentCoverage*100, req.WindowDays)
	}

	moreExtreme := func(a, b windowCandidate) bool {
		if a.value != b.value {
			if req.Direction == domain.DirectionCold {
				return a.value < b.value
			}
			return a.value > b.value
		}
		return a.day < b.day
	}
	sort.Slice(candidates, func(i, j int) bool { return moreExtreme(candidates[i], candidates[j]) })

	// Greedy non-overlap selection. Two windows of length w overlap exactly
	// when their end days are less than w apart, so a sorted set of selected
	// ends needs only its nearest neighbors checked.
	windowSpan := int64(req.WindowDays)
	selectedDays := []int64{current.day}
	var picks []windowCandidate
	currentRank := 1
	for _, c := range candidates {
		i := sort.Search(len(selectedDays), func(i int) bool { return selectedDays[i] >= c.day })
		if i > 0 && c.day-selectedDays[i-1] < windowSpan {
			continue
		}
		if i < len(selectedDays) && selectedDays[i]-c.day < windowSpan {
			continue
		}
		selectedDays = append(selectedDays, 0)
		copy(selectedDays[i+1:], selectedDays[i:])
		selectedDays[i] = c.day
		picks = append(picks, c)
		if moreExtreme(c, *current) {
			currentRank++
		}
	}

	ranking := domain.ExtremesRanking{
		StationID:   req.StationID,
		Metric:      req.Metric,
		WindowDays:  req.WindowDays,
		EndDate:     req.EndDate,
		Direction:   req.Direction,
		CurrentRank: currentRank,
		TotalYears:  len(picks) + 1,
	}

	entry := func(rank int, c windowCandidate, isCurrent bool) domain.ExtremesRankingEntry {
		end := dateFromEpochDay(c.day)
		return domain.ExtremesRankingEntry{
			Rank:             rank,
			Year:             end.Year(),
			Value:            c.value,
			DeltaFromCurrent: c.value - current.value,
			IsCurrent:        isCurrent,
			StartDate:        end.AddDays(-(req.WindowDays - 1)),
			EndDate:          end,
		}
	}

	limit := req.Limit
	if limit == 0 {
		limit = topExtremes
	}

	// picks are already in rank order; splice the current period in at its
	// rank, then cap the list while keeping the current entry visible.
	ordered := make([]windowCandidate, 0, len(picks)+1)
	ordered = append(ordered, picks[:currentRank-1]...)
	ordered = append(ordered, *current)
	ordered = append(ordered, picks[currentRank-1:]...)

	for i, c := range ordered {
		isCurrent := i+1 == currentRank
		if i >= limit {
			if currentRank <= limit {
				break
			}
			if !isCurrent {
				continue
			}
		}
		ranking.Rankings = append(ranking.Rankings, entry(i+1, c, isCurrent))
		if i >= limit {
			break
		}
	}
	return ranking, nil
}

// WindowExtreme is the most extreme rolling value found in a scan, with the
// window end it occurred on.
type WindowExtreme struct {
	Value   float64
	EndDate domain.Date
}

// WindowExtremes scans window ends in [from, to] and returns the highest and
// lowest evaluable values. Ties keep the earlier end date. Both results are
// nil when no window in the range clears the coverage floor.
func (e *Engine) WindowExtremes(ctx context.Context, stationID string, metric domain.Metric, windowDays int, from, to domain.Date) (highest, lowest *WindowExtreme, err error) {
	err = e.scanWindows(ctx, stationID, metric, windowDays, from, to, func(d domain.Date, mean, coverage float64) {
		if coverage < e.params.CoverageFloor {
			return
		}
		if highest == nil || mean > highest.Value {
			highest = &WindowExtreme{Value: mean, EndDate: d}
		}
		if lowest == nil || mean < lowest.Value {
			lowest = &WindowExtreme{Value: mean, EndDate: d}
		}
	})
	if err != nil {
		return nil, nil, err
	}
	return highest, lowest, nil
}
