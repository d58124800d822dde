package climate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/climate-insights/internal/domain"
)

func TestEngine_SeasonalRanking(t *testing.T) {
	seed := func() *memSource {
		src := newMemSource()
		seedJul15(src, map[int]float64{2019: 10, 2020: 12, 2021: 12, 2022: 8, 2023: 15})
		return src
	}
	rank := func(t *testing.T, src *memSource, sinceYear int) domain.SeasonalRanking {
		t.Helper()
		engine := newTestEngine(src)
		got, err := engine.SeasonalRanking(context.Background(), RankingRequest{
			StationID:  testStationID,
			Metric:     domain.MetricTAvg,
			WindowDays: 1,
			EndDate:    date("2024-07-15"),
			SinceYear:  sinceYear,
		})
		require.NoError(t, err)
		return got
	}

	t.Run("cold side ranks coldest first", func(t *testing.T) {
		src := seed()
		src.put(testStationID, domain.MetricTAvg, "2024-07-15", 9)
		got := rank(t, src, 0)

		assert.Equal(t, domain.DirectionCold, got.Direction)
		assert.Equal(t, 2, got.CurrentRank)
		assert.Equal(t, 6, got.TotalYears)

		want := []domain.SeasonalRankingEntry{
			{Rank: 1, Year: 2022, Value: 8, DeltaFromCurrent: -1},
			{Rank: 2, Year: 2024, Value: 9, DeltaFromCurrent: 0, IsCurrent: true},
			{Rank: 3, Year: 2019, Value: 10, DeltaFromCurrent: 1},
			{Rank: 4, Year: 2020, Value: 12, DeltaFromCurrent: 3},
			{Rank: 5, Year: 2021, Value: 12, DeltaFromCurrent: 3},
			{Rank: 6, Year: 2023, Value: 15, DeltaFromCurrent: 6},
		}
		assert.Equal(t, want, got.Rankings)
	})

	t.Run("warm side ranks warmest first", func(t *testing.T) {
		src := seed()
		src.put(testStationID, domain.MetricTAvg, "2024-07-15", 14)
		got := rank(t, src, 0)

		assert.Equal(t, domain.DirectionWarm, got.Direction)
		assert.Equal(t, 2, got.CurrentRank)
		require.Len(t, got.Rankings, 6)
		assert.Equal(t, 2023, got.Rankings[0].Year)
		assert.True(t, got.Rankings[1].IsCurrent)
		// Equal values order by earlier year.
		assert.Equal(t, 2020, got.Rankings[2].Year)
		assert.Equal(t, 2021, got.Rankings[3].Year)
	})

	t.Run("tie with earlier years ranks after them", func(t *testing.T) {
		src := newMemSource()
		seedJul15(src, map[int]float64{2019: 10, 2020: 10})
		src.put(testStationID, domain.MetricTAvg, "2024-07-15", 10)
		got := rank(t, src, 0)

		assert.Equal(t, 3, got.CurrentRank)
		assert.Equal(t, []int{2019, 2020, 2024}, []int{got.Rankings[0].Year, got.Rankings[1].Year, got.Rankings[2].Year})
	})

	t.Run("since year drops older entries", func(t *testing.T) {
		src := seed()
		src.put(testStationID, domain.MetricTAvg, "2024-07-15", 9)
		got := rank(t, src, 2021)

		assert.Equal(t, 4, got.TotalYears)
		for _, entry := range got.Rankings {
			assert.GreaterOrEqual(t, entry.Year, 2021)
		}
	})

	t.Run("no current window", func(t *testing.T) {
		engine := newTestEngine(seed())
		_, err := engine.SeasonalRanking(context.Background(), RankingRequest{
			StationID:  testStationID,
			Metric:     domain.MetricTAvg,
			WindowDays: 1,
			EndDate:    date("2024-07-15"),
		})
		assert.ErrorIs(t, err, domain.ErrNoDataForDate)
	})
}

func TestEngine_ExtremesRanking(t *testing.T) {
	// Two heat spells and a quiet current window, separated far enough that
	// the 3-day windows between them drain below the coverage floor.
	seed := func() *memSource {
		src := newMemSource()
		src.fill(testStationID, domain.MetricTAvg, "2024-01-01", "2024-01-03", func(domain.Date) float64 { return 30 })
		src.fill(testStationID, domain.MetricTAvg, "2024-01-10", "2024-01-12", func(domain.Date) float64 { return 25 })
		src.fill(testStationID, domain.MetricTAvg, "2024-01-20", "2024-01-22", func(domain.Date) float64 { return 10 })
		return src
	}
	rank := func(t *testing.T, direction domain.Direction) domain.ExtremesRanking {
		t.Helper()
		engine := newTestEngine(seed())
		got, err := engine.ExtremesRanking(context.Background(), ExtremesRequest{
			StationID:  testStationID,
			Metric:     domain.MetricTAvg,
			WindowDays: 3,
			EndDate:    date("2024-01-22"),
			Direction:  direction,
		})
		require.NoError(t, err)
		return got
	}

	t.Run("warm direction picks non-overlapping spells", func(t *testing.T) {
		got := rank(t, domain.DirectionWarm)

		assert.Equal(t, 3, got.CurrentRank)
		assert.Equal(t, 3, got.TotalYears)
		require.Len(t, got.Rankings, 3)

		assert.Equal(t, 1, got.Rankings[0].Rank)
		assert.Equal(t, 30.0, got.Rankings[0].Value)
		assert.Equal(t, "2024-01-02", got.Rankings[0].EndDate.String())
		assert.Equal(t, "2023-12-31", got.Rankings[0].StartDate.String())

		assert.Equal(t, 2, got.Rankings[1].Rank)
		assert.Equal(t, 25.0, got.Rankings[1].Value)
		assert.Equal(t, "2024-01-11", got.Rankings[1].EndDate.String())

		current := got.Rankings[2]
		assert.True(t, current.IsCurrent)
		assert.Equal(t, 3, current.Rank)
		assert.Equal(t, 10.0, current.Value)
		assert.Equal(t, "2024-01-20", current.StartDate.String())
		assert.Equal(t, "2024-01-22", current.EndDate.String())
		assert.Equal(t, 0.0, current.DeltaFromCurrent)
		assert.Equal(t, 20.0, got.Rankings[0].DeltaFromCurrent)
	})

	t.Run("cold direction puts the current window first", func(t *testing.T) {
		got := rank(t, domain.DirectionCold)

		assert.Equal(t, 1, got.CurrentRank)
		require.Len(t, got.Rankings, 3)
		assert.True(t, got.Rankings[0].IsCurrent)
		assert.Equal(t, 25.0, got.Rankings[1].Value)
		assert.Equal(t, 30.0, got.Rankings[2].Value)
	})

	t.Run("list caps at the top with the current entry appended", func(t *testing.T) {
		src := newMemSource()
		for i := 0; i < 15; i++ {
			start := date("2024-03-01").AddDays(i * 5)
			v := float64(30 - i)
			src.fill(testStationID, domain.MetricTAvg, start.String(), start.AddDays(2).String(), func(domain.Date) float64 { return v })
		}
		src.fill(testStationID, domain.MetricTAvg, "2024-06-28", "2024-06-30", func(domain.Date) float64 { return 5 })
		engine := newTestEngine(src)

		got, err := engine.ExtremesRanking(context.Background(), ExtremesRequest{
			StationID:  testStationID,
			Metric:     domain.MetricTAvg,
			WindowDays: 3,
			EndDate:    date("2024-06-30"),
			Direction:  domain.DirectionWarm,
		})
		require.NoError(t, err)

		assert.Equal(t, 16, got.CurrentRank)
		assert.Equal(t, 16, got.TotalYears)
		require.Len(t, got.Rankings, topExtremes+1)
		for i, entry := range got.Rankings[:topExtremes] {
			assert.Equal(t, i+1, entry.Rank)
			assert.Equal(t, float64(30-i), entry.Value)
		}
		last := got.Rankings[topExtremes]
		assert.True(t, last.IsCurrent)
		assert.Equal(t, 16, last.Rank)

		got, err = engine.ExtremesRanking(context.Background(), ExtremesRequest{
			StationID:  testStationID,
			Metric:     domain.MetricTAvg,
			WindowDays: 3,
			EndDate:    date("2024-06-30"),
			Direction:  domain.DirectionWarm,
			Limit:      3,
		})
		require.NoError(t, err)
		assert.Equal(t, 16, got.CurrentRank, "explicit limit does not change the ranking itself")
		require.Len(t, got.Rankings, 4)
		assert.Equal(t, []float64{30, 29, 28}, []float64{got.Rankings[0].Value, got.Rankings[1].Value, got.Rankings[2].Value})
		assert.True(t, got.Rankings[3].IsCurrent)
	})

	t.Run("no current window", func(t *testing.T) {
		engine := newTestEngine(seed())
		_, err := engine.ExtremesRanking(context.Background(), ExtremesRequest{
			StationID:  testStationID,
			Metric:     domain.MetricTAvg,
			WindowDays: 3,
			EndDate:    date("2024-02-15"),
			Direction:  domain.DirectionWarm,
		})
		assert.ErrorIs(t, err, domain.ErrNoDataForDate)
	})

	t.Run("current window below the coverage floor", func(t *testing.T) {
		src := seed()
		src.put(testStationID, domain.MetricTAvg, "2024-02-15", 12)
		engine := newTestEngine(src)

		_, err := engine.ExtremesRanking(context.Background(), ExtremesRequest{
			StationID:  testStationID,
			Metric:     domain.MetricTAvg,
			WindowDays: 3,
			EndDate:    date("2024-02-15"),
			Direction:  domain.DirectionWarm,
		})
		assert.ErrorIs(t, err, domain.ErrInsufficientCoverage)
	})

	t.Run("since year drops older candidates", func(t *testing.T) {
		src := newMemSource()
		src.fill(testStationID, domain.MetricTAvg, "2022-01-01", "2022-01-03", func(domain.Date) float64 { return 40 })
		src.fill(testStationID, domain.MetricTAvg, "2024-01-20", "2024-01-22", func(domain.Date) float64 { return 10 })
		engine := newTestEngine(src)

		got, err := engine.ExtremesRanking(context.Background(), ExtremesRequest{
			StationID:  testStationID,
			Metric:     domain.MetricTAvg,
			WindowDays: 3,
			EndDate:    date("2024-01-22"),
			Direction:  domain.DirectionWarm,
			SinceYear:  2023,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, got.CurrentRank)
		require.Len(t, got.Rankings, 1)
		assert.True(t, got.Rankings[0].IsCurrent)
	})
}

func TestEngine_WindowExtremes(t *testing.T) {
	t.Run("highest and lowest across the range", func(t *testing.T) {
		src := newMemSource()
		src.fill(testStationID, domain.MetricTAvg, "2024-01-01", "2024-01-10", func(d domain.Date) float64 {
			return float64(d.Day())
		})
		engine := newTestEngine(src)

		highest, lowest, err := engine.WindowExtremes(context.Background(), testStationID, domain.MetricTAvg, 3, domain.Date{}, domain.Date{})
		require.NoError(t, err)

		require.NotNil(t, highest)
		assert.Equal(t, 9.5, highest.Value)
		assert.Equal(t, "2024-01-11", highest.EndDate.String())

		require.NotNil(t, lowest)
		assert.Equal(t, 1.5, lowest.Value)
		assert.Equal(t, "2024-01-02", lowest.EndDate.String())
	})

	t.Run("bounded range", func(t *testing.T) {
		src := newMemSource()
		src.fill(testStationID, domain.MetricTAvg, "2024-01-01", "2024-01-10", func(d domain.Date) float64 {
			return float64(d.Day())
		})
		engine := newTestEngine(src)

		highest, lowest, err := engine.WindowExtremes(context.Background(), testStationID, domain.MetricTAvg, 3, date("2024-01-04"), date("2024-01-06"))
		require.NoError(t, err)

		require.NotNil(t, highest)
		assert.Equal(t, 5.0, highest.Value)
		assert.Equal(t, "2024-01-06", highest.EndDate.String())
		require.NotNil(t, lowest)
		assert.Equal(t, 3.0, lowest.Value)
		assert.Equal(t, "2024-01-04", lowest.EndDate.String())
	})

	t.Run("tie keeps the earlier end", func(t *testing.T) {
		src := newMemSource()
		src.fill(testStationID, domain.MetricTAvg, "2024-01-01", "2024-01-10", func(domain.Date) float64 { return 3 })
		engine := newTestEngine(src)

		highest, lowest, err := engine.WindowExtremes(context.Background(), testStationID, domain.MetricTAvg, 3, domain.Date{}, domain.Date{})
		require.NoError(t, err)
		require.NotNil(t, highest)
		assert.Equal(t, "2024-01-02", highest.EndDate.String())
		assert.Equal(t, highest.EndDate, lowest.EndDate)
	})

	t.Run("empty range", func(t *testing.T) {
		src := newMemSource()
		src.fill(testStationID, domain.MetricTAvg, "2024-01-01", "2024-01-10", func(domain.Date) float64 { return 3 })
		engine := newTestEngine(src)

		highest, lowest, err := engine.WindowExtremes(context.Background(), testStationID, domain.MetricTAvg, 3, date("2024-03-01"), date("2024-03-31"))
		require.NoError(t, err)
		assert.Nil(t, highest)
		assert.Nil(t, lowest)
	})
}
