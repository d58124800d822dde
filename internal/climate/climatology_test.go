package climate

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/climate-insights/internal/domain"
)

// seedAlignedWindows writes a full 7-day window ending Jul 15 for each year
// in [fromYear, toYear], holding the given per-year constant value.
func seedAlignedWindows(src *memSource, fromYear, toYear int, value func(year int) float64) {
	for year := fromYear; year <= toYear; year++ {
		v := value(year)
		src.fill(testStationID, domain.MetricTAvg,
			fmt.Sprintf("%d-07-09", year), fmt.Sprintf("%d-07-15", year),
			func(domain.Date) float64 { return v })
	}
}

func TestEngine_CollectAligned(t *testing.T) {
	t.Run("one value per qualifying year in ascending order", func(t *testing.T) {
		src := newMemSource()
		seedAlignedWindows(src, 2000, 2024, func(year int) float64 { return float64(year - 2000) })
		engine := newTestEngine(src)

		current, sample, err := engine.collectAligned(context.Background(), testStationID, domain.MetricTAvg, 7, date("2024-07-15"), 0)
		require.NoError(t, err)

		require.NotNil(t, current)
		assert.Equal(t, 24.0, current.Mean)
		assert.Equal(t, 1.0, current.CoverageRatio)
		assert.Equal(t, "2024-07-15", current.EndDate.String())

		require.Len(t, sample, 24)
		for i, s := range sample {
			assert.Equal(t, 2000+i, s.year)
			assert.Equal(t, float64(i), s.value)
		}
	})

	t.Run("current year is returned even below the coverage floor", func(t *testing.T) {
		src := newMemSource()
		seedAlignedWindows(src, 2000, 2023, func(int) float64 { return 10 })
		src.put(testStationID, domain.MetricTAvg, "2024-07-14", 20)
		src.put(testStationID, domain.MetricTAvg, "2024-07-15", 22)
		engine := newTestEngine(src)

		current, sample, err := engine.collectAligned(context.Background(), testStationID, domain.MetricTAvg, 7, date("2024-07-15"), 0)
		require.NoError(t, err)

		require.NotNil(t, current)
		assert.Equal(t, 21.0, current.Mean)
		assert.InDelta(t, 2.0/7, current.CoverageRatio, 1e-12)
		assert.Len(t, sample, 24)
	})

	t.Run("years below the coverage floor drop out of the sample", func(t *testing.T) {
		src := newMemSource()
		seedAlignedWindows(src, 2000, 2024, func(int) float64 { return 10 })
		// Replace 2010 with a 2-of-7-day window.
		for d := date("2010-07-09"); !d.After(date("2010-07-13").Time); d = d.AddDays(1) {
			delete(src.values[sourceKey(testStationID, domain.MetricTAvg)], epochDay(d))
		}
		engine := newTestEngine(src)

		_, sample, err := engine.collectAligned(context.Background(), testStationID, domain.MetricTAvg, 7, date("2024-07-15"), 0)
		require.NoError(t, err)

		years := make([]int, 0, len(sample))
		for _, s := range sample {
			years = append(years, s.year)
		}
		assert.NotContains(t, years, 2010)
		assert.Len(t, sample, 23)
	})

	t.Run("since year trims the sample only", func(t *testing.T) {
		src := newMemSource()
		seedAlignedWindows(src, 2000, 2024, func(year int) float64 { return float64(year) })
		engine := newTestEngine(src)

		current, sample, err := engine.collectAligned(context.Background(), testStationID, domain.MetricTAvg, 7, date("2024-07-15"), 2015)
		require.NoError(t, err)

		require.NotNil(t, current)
		require.Len(t, sample, 9)
		assert.Equal(t, 2015, sample[0].year)
		assert.Equal(t, 2023, sample[len(sample)-1].year)
	})

	t.Run("leap day aligns only to leap years", func(t *testing.T) {
		src := newMemSource()
		for year := 2014; year <= 2024; year++ {
			src.put(testStationID, domain.MetricTAvg, fmt.Sprintf("%d-02-28", year), 1)
		}
		src.put(testStationID, domain.MetricTAvg, "2016-02-29", 2)
		src.put(testStationID, domain.MetricTAvg, "2020-02-29", 3)
		src.put(testStationID, domain.MetricTAvg, "2024-02-29", 4)
		engine := newTestEngine(src)

		current, sample, err := engine.collectAligned(context.Background(), testStationID, domain.MetricTAvg, 1, date("2024-02-29"), 0)
		require.NoError(t, err)

		require.NotNil(t, current)
		assert.Equal(t, 4.0, current.Mean)
		require.Len(t, sample, 2)
		assert.Equal(t, []alignedValue{{year: 2016, value: 2}, {year: 2020, value: 3}}, sample)
	})

	t.Run("missing current year", func(t *testing.T) {
		src := newMemSource()
		seedAlignedWindows(src, 2000, 2023, func(int) float64 { return 10 })
		engine := newTestEngine(src)

		current, sample, err := engine.collectAligned(context.Background(), testStationID, domain.MetricTAvg, 7, date("2024-07-15"), 0)
		require.NoError(t, err)
		assert.Nil(t, current)
		assert.Len(t, sample, 24)
	})
}
