package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/climate-insights/internal/adapter/http"
	"github.com/couchcryptid/climate-insights/internal/climate"
	"github.com/couchcryptid/climate-insights/internal/domain"
	"github.com/couchcryptid/climate-insights/internal/observability"
	"github.com/couchcryptid/climate-insights/internal/recompute"
	"github.com/couchcryptid/climate-insights/internal/store"
)

const (
	ladderStation = "USW00014922"
	thinStation   = "USC00210018"
	spellStation  = "USC00213303"
)

type harness struct {
	server *httpadapter.Server
	store  *store.Store
	runner *recompute.Runner
}

// newHarness builds the API over a real SQLite store and engine so handler
// tests exercise the same pipeline the service runs.
func newHarness(t *testing.T) *harness {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	engine := climate.New(st, climate.DefaultParams(), logger, metrics)
	runner := recompute.New(st, engine, recompute.Config{
		DefaultMetric:   domain.MetricTAvg,
		LatestWindows:   []int{1, 7},
		RecordWindows:   []int{1, 7},
		MinRecordYears:  10,
		MaxLookbackDays: 7,
		Parallelism:     2,
	}, logger, metrics, clockwork.NewFakeClockAt(time.Date(2024, time.July, 16, 3, 0, 0, 0, time.UTC)))

	srv := httpadapter.NewServer(":0", engine, st, runner, runner, domain.MetricTAvg, logger)
	return &harness{server: srv, store: st, runner: runner}
}

func (h *harness) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), "body: %s", rec.Body.String())
}

// seedLadder writes one July 15 observation per year 1994..2023 valued
// 1..30 °C, plus 15.2 °C for 2024, giving a station whose current day sits at
// the median of thirty years.
func seedLadder(t *testing.T, st *store.Store) {
	t.Helper()
	var obs []domain.Observation
	for y := 1994; y <= 2023; y++ {
		obs = append(obs, domain.Observation{
			StationID: ladderStation,
			Metric:    domain.MetricTAvg,
			Date:      domain.NewDate(y, time.July, 15),
			Value:     float64(y - 1993),
		})
	}
	obs = append(obs, domain.Observation{
		StationID: ladderStation,
		Metric:    domain.MetricTAvg,
		Date:      domain.NewDate(2024, time.July, 15),
		Value:     15.2,
	})
	require.NoError(t, st.UpsertObservations(context.Background(), obs))
}

func seedStations(t *testing.T, st *store.Store) {
	t.Helper()
	require.NoError(t, st.UpsertStations(context.Background(), []domain.Station{
		{ID: ladderStation, Name: "Minneapolis-St Paul Intl", Latitude: 44.8831, Longitude: -93.2289, ElevationM: 265.8, FirstYear: 1994, Active: true},
		{ID: thinStation, Name: "Ada", Latitude: 47.3211, Longitude: -96.5144, ElevationM: 274.3, FirstYear: 2023, Active: false},
	}))
}

func TestInsightEndpoint(t *testing.T) {
	h := newHarness(t)
	seedLadder(t, h.store)

	t.Run("returns the composed insight", func(t *testing.T) {
		rec := h.get(t, "/api/insight?station_id="+ladderStation+"&end_date=2024-07-15&window_days=1")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got domain.Insight
		decodeInto(t, rec, &got)
		assert.Equal(t, ladderStation, got.StationID)
		assert.Equal(t, domain.MetricTAvg, got.Metric, "default metric applies")
		assert.Equal(t, 15.2, got.Value)
		require.NotNil(t, got.Percentile)
		assert.InDelta(t, 50.0, *got.Percentile, 1e-9)
		assert.Equal(t, domain.SeverityNormal, got.Severity)
		assert.Equal(t, "This day is near normal.", got.PrimaryStatement)
	})

	t.Run("missing station is a 400", func(t *testing.T) {
		rec := h.get(t, "/api/insight?end_date=2024-07-15&window_days=1")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown metric is a 400", func(t *testing.T) {
		rec := h.get(t, "/api/insight?station_id="+ladderStation+"&end_date=2024-07-15&window_days=1&metric=humidity")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed end date is a 400", func(t *testing.T) {
		rec := h.get(t, "/api/insight?station_id="+ladderStation+"&end_date=July+15&window_days=1")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("non-integer window is a 400", func(t *testing.T) {
		rec := h.get(t, "/api/insight?station_id="+ladderStation+"&end_date=2024-07-15&window_days=week")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("no observations is a 404", func(t *testing.T) {
		rec := h.get(t, "/api/insight?station_id=NOSUCH&end_date=2024-07-15&window_days=1")
		assert.Equal(t, http.StatusNotFound, rec.Code)

		var body map[string]string
		decodeInto(t, rec, &body)
		assert.Contains(t, body["error"], "no observations")
	})

	t.Run("thin window is a 422", func(t *testing.T) {
		require.NoError(t, h.store.UpsertObservations(context.Background(), []domain.Observation{
			{StationID: thinStation, Metric: domain.MetricTAvg, Date: domain.NewDate(2024, time.July, 14), Value: 20},
			{StationID: thinStation, Metric: domain.MetricTAvg, Date: domain.NewDate(2024, time.July, 15), Value: 21},
		}))
		rec := h.get(t, "/api/insight?station_id="+thinStation+"&end_date=2024-07-15&window_days=7")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestSeriesEndpoint(t *testing.T) {
	h := newHarness(t)
	seedLadder(t, h.store)

	t.Run("returns points with climatology bands", func(t *testing.T) {
		rec := h.get(t, "/api/series?station_id="+ladderStation+"&window_days=1&start_date=2024-07-14&end_date=2024-07-15")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got struct {
			StationID  string               `json:"station_id"`
			WindowDays int                  `json:"window_days"`
			Points     []domain.SeriesPoint `json:"points"`
		}
		decodeInto(t, rec, &got)
		assert.Equal(t, ladderStation, got.StationID)
		assert.Equal(t, 1, got.WindowDays)
		require.Len(t, got.Points, 1, "July 14 has no observation")
		assert.Equal(t, "2024-07-15", got.Points[0].EndDate.String())
		assert.Equal(t, 15.2, got.Points[0].Value)
		require.NotNil(t, got.Points[0].P50)
	})

	t.Run("start after end is a 400", func(t *testing.T) {
		rec := h.get(t, "/api/series?station_id="+ladderStation+"&window_days=1&start_date=2024-07-16&end_date=2024-07-15")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty range serializes as an empty array", func(t *testing.T) {
		rec := h.get(t, "/api/series?station_id="+ladderStation+"&window_days=1&start_date=2024-08-01&end_date=2024-08-05")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"points":[]`)
	})
}

func TestSeasonalRankingEndpoint(t *testing.T) {
	h := newHarness(t)
	seedLadder(t, h.store)

	rec := h.get(t, "/api/rankings/seasonal?station_id="+ladderStation+"&end_date=2024-07-15&window_days=1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got domain.SeasonalRanking
	decodeInto(t, rec, &got)
	assert.Equal(t, domain.DirectionCold, got.Direction)
	assert.Equal(t, 16, got.CurrentRank)
	assert.Equal(t, 31, got.TotalYears)
	require.Len(t, got.Rankings, 31)
	assert.True(t, got.Rankings[15].IsCurrent)
}

func TestExtremesRankingEndpoint(t *testing.T) {
	h := newHarness(t)
	spell := func(startDay string, value float64) []domain.Observation {
		start, err := domain.ParseDate(startDay)
		require.NoError(t, err)
		var obs []domain.Observation
		for i := 0; i < 3; i++ {
			obs = append(obs, domain.Observation{
				StationID: spellStation, Metric: domain.MetricTAvg, Date: start.AddDays(i), Value: value,
			})
		}
		return obs
	}
	for _, batch := range [][]domain.Observation{
		spell("2024-01-01", 30),
		spell("2024-01-10", 25),
		spell("2024-01-20", 10),
	} {
		require.NoError(t, h.store.UpsertObservations(context.Background(), batch))
	}

	t.Run("ranks the current window against history", func(t *testing.T) {
		rec := h.get(t, "/api/rankings/extremes?station_id="+spellStation+"&end_date=2024-01-22&window_days=3&direction=warm")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got domain.ExtremesRanking
		decodeInto(t, rec, &got)
		assert.Equal(t, 3, got.CurrentRank)
		assert.Equal(t, 3, got.TotalYears)
		require.Len(t, got.Rankings, 3)
		assert.Equal(t, 30.0, got.Rankings[0].Value)
		assert.True(t, got.Rankings[2].IsCurrent)
	})

	t.Run("missing direction is a 400", func(t *testing.T) {
		rec := h.get(t, "/api/rankings/extremes?station_id="+spellStation+"&end_date=2024-01-22&window_days=3")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("limit caps the list", func(t *testing.T) {
		rec := h.get(t, "/api/rankings/extremes?station_id="+spellStation+"&end_date=2024-01-22&window_days=3&direction=warm&limit=1")
		require.Equal(t, http.StatusOK, rec.Code)

		var got domain.ExtremesRanking
		decodeInto(t, rec, &got)
		assert.Equal(t, 3, got.CurrentRank)
		require.Len(t, got.Rankings, 2, "top entry plus the current period")
		assert.True(t, got.Rankings[1].IsCurrent)
	})
}

func TestRecordsEndpoint(t *testing.T) {
	h := newHarness(t)
	seedStations(t, h.store)

	seedRecord := func(metric domain.Metric, recordType domain.RecordType, value float64) {
		_, err := h.store.ReplaceRecordIfBeaten(context.Background(), domain.StationRecord{
			StationID:  ladderStation,
			Metric:     metric,
			WindowDays: 7,
			RecordType: recordType,
			Value:      value,
			StartDate:  domain.NewDate(2021, time.June, 22),
			EndDate:    domain.NewDate(2021, time.June, 28),
			NYears:     30,
		})
		require.NoError(t, err)
	}
	seedRecord(domain.MetricTAvg, domain.RecordHighest, 31.4)
	seedRecord(domain.MetricTMin, domain.RecordLowest, -30.2)

	t.Run("lists all records", func(t *testing.T) {
		rec := h.get(t, "/api/records?station_id="+ladderStation)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got struct {
			Records []domain.StationRecord `json:"records"`
		}
		decodeInto(t, rec, &got)
		require.Len(t, got.Records, 2)
	})

	t.Run("filters by metric", func(t *testing.T) {
		rec := h.get(t, "/api/records?station_id="+ladderStation+"&metric=tmin_c")
		require.Equal(t, http.StatusOK, rec.Code)

		var got struct {
			Records []domain.StationRecord `json:"records"`
		}
		decodeInto(t, rec, &got)
		require.Len(t, got.Records, 1)
		assert.Equal(t, -30.2, got.Records[0].Value)
	})

	t.Run("unknown station is a 404", func(t *testing.T) {
		rec := h.get(t, "/api/records?station_id=NOSUCH")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing station_id is a 400", func(t *testing.T) {
		rec := h.get(t, "/api/records")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLatestInsightsEndpoint(t *testing.T) {
	h := newHarness(t)
	put := func(stationID string, windowDays int) {
		_, err := h.store.PutSnapshotIfNewer(context.Background(), domain.LatestInsightSnapshot{
			Insight: domain.Insight{
				StationID:        stationID,
				EndDate:          domain.NewDate(2024, time.July, 15),
				WindowDays:       windowDays,
				Metric:           domain.MetricTAvg,
				Value:            22.4,
				Severity:         domain.SeverityNormal,
				PrimaryStatement: "This day is near normal.",
			},
			ComputedAt: time.Date(2024, time.July, 16, 3, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}
	put(ladderStation, 1)
	put(thinStation, 7)

	t.Run("lists every station", func(t *testing.T) {
		rec := h.get(t, "/api/insights/latest")
		require.Equal(t, http.StatusOK, rec.Code)

		var got struct {
			Insights []domain.LatestInsightSnapshot `json:"insights"`
		}
		decodeInto(t, rec, &got)
		require.Len(t, got.Insights, 2)
	})

	t.Run("filters by station", func(t *testing.T) {
		rec := h.get(t, "/api/insights/latest?station_id="+thinStation)
		require.Equal(t, http.StatusOK, rec.Code)

		var got struct {
			Insights []domain.LatestInsightSnapshot `json:"insights"`
		}
		decodeInto(t, rec, &got)
		require.Len(t, got.Insights, 1)
		assert.Equal(t, 7, got.Insights[0].WindowDays)
	})

	t.Run("empty cache serializes as an empty array", func(t *testing.T) {
		rec := h.get(t, "/api/insights/latest?station_id=NOSUCH")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"insights":[]`)
	})
}

func TestLatestDateEndpoint(t *testing.T) {
	h := newHarness(t)
	seedLadder(t, h.store)

	t.Run("resolves the newest observation date", func(t *testing.T) {
		rec := h.get(t, "/api/latest-date?station_id="+ladderStation)
		require.Equal(t, http.StatusOK, rec.Code)

		var got struct {
			StationID  string      `json:"station_id"`
			LatestDate domain.Date `json:"latest_date"`
		}
		decodeInto(t, rec, &got)
		assert.Equal(t, ladderStation, got.StationID)
		assert.Equal(t, "2024-07-15", got.LatestDate.String())
	})

	t.Run("station without data is a 404", func(t *testing.T) {
		rec := h.get(t, "/api/latest-date?station_id=NOSUCH")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestStationEndpoints(t *testing.T) {
	h := newHarness(t)
	seedStations(t, h.store)

	t.Run("lists all stations", func(t *testing.T) {
		rec := h.get(t, "/api/stations")
		require.Equal(t, http.StatusOK, rec.Code)

		var got struct {
			Stations []domain.Station `json:"stations"`
		}
		decodeInto(t, rec, &got)
		require.Len(t, got.Stations, 2)
	})

	t.Run("filters to active stations", func(t *testing.T) {
		rec := h.get(t, "/api/stations?active=true")
		require.Equal(t, http.StatusOK, rec.Code)

		var got struct {
			Stations []domain.Station `json:"stations"`
		}
		decodeInto(t, rec, &got)
		require.Len(t, got.Stations, 1)
		assert.Equal(t, ladderStation, got.Stations[0].ID)
	})

	t.Run("gets a station by id", func(t *testing.T) {
		rec := h.get(t, "/api/stations/"+thinStation)
		require.Equal(t, http.StatusOK, rec.Code)

		var got domain.Station
		decodeInto(t, rec, &got)
		assert.Equal(t, "Ada", got.Name)
		assert.False(t, got.Active)
	})

	t.Run("unknown id is a 404", func(t *testing.T) {
		rec := h.get(t, "/api/stations/NOSUCH")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

// stubTrigger lets the recompute route tests exercise each status mapping
// without racing a real pass.
type stubTrigger struct {
	err error
}

func (s *stubTrigger) Trigger() error { return s.err }

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

func TestRecomputeEndpoint(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	post := func(t *testing.T, trigger error) *httptest.ResponseRecorder {
		t.Helper()
		srv := httpadapter.NewServer(":0", nil, nil, &stubTrigger{err: trigger}, &mockReadiness{}, domain.MetricTAvg, logger)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/recompute", nil))
		return rec
	}

	t.Run("starts a run", func(t *testing.T) {
		rec := post(t, nil)
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Contains(t, rec.Body.String(), `"started"`)
	})

	t.Run("single flight conflict", func(t *testing.T) {
		rec := post(t, recompute.ErrAlreadyRunning)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), `"already_running"`)
	})

	t.Run("throttled", func(t *testing.T) {
		rec := post(t, recompute.ErrRateLimited)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Contains(t, rec.Body.String(), `"throttled"`)
	})

	t.Run("unexpected failure is a 500", func(t *testing.T) {
		rec := post(t, errors.New("scheduler wedged"))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "scheduler wedged", "internal detail stays out of the response")
	})
}

func TestAmbientEndpoints(t *testing.T) {
	t.Run("healthz", func(t *testing.T) {
		h := newHarness(t)
		rec := h.get(t, "/healthz")
		assert.Equal(t, http.StatusOK, rec.Code)

		var body map[string]string
		decodeInto(t, rec, &body)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("readyz flips after the first recompute pass", func(t *testing.T) {
		h := newHarness(t)
		seedStations(t, h.store)
		seedLadder(t, h.store)

		rec := h.get(t, "/readyz")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		require.NoError(t, h.runner.RecomputeAll(context.Background()))

		rec = h.get(t, "/readyz")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("metrics", func(t *testing.T) {
		h := newHarness(t)
		rec := h.get(t, "/metrics")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "go_goroutines")
	})
}

func TestMethodNotAllowed(t *testing.T) {
	h := newHarness(t)
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/recompute", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.server.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/insight?station_id=%s", ladderStation), nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
