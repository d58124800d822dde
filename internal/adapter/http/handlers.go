package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/couchcryptid/climate-insights/internal/climate"
	"github.com/couchcryptid/climate-insights/internal/domain"
	"github.com/couchcryptid/climate-insights/internal/recompute"
)

func (s *Server) handleInsight(w http.ResponseWriter, r *http.Request) {
	req, err := s.insightParams(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	insight, err := s.engine.Insight(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, insight)
}

type seriesResponse struct {
	StationID  string               `json:"station_id"`
	Metric     domain.Metric        `json:"metric"`
	WindowDays int                  `json:"window_days"`
	StartDate  domain.Date          `json:"start_date"`
	EndDate    domain.Date          `json:"end_date"`
	SinceYear  int                  `json:"since_year,omitempty"`
	Points     []domain.SeriesPoint `json:"points"`
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	metric, err := s.queryMetric(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	start, err := queryDate(q, "start_date")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	end, err := queryDate(q, "end_date")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	windowDays, err := queryInt(q, "window_days")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sinceYear, err := queryInt(q, "since_year")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	req := climate.SeriesRequest{
		StationID:  q.Get("station_id"),
		Metric:     metric,
		WindowDays: windowDays,
		StartDate:  start,
		EndDate:    end,
		SinceYear:  sinceYear,
	}
	points, err := s.engine.Series(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if points == nil {
		points = []domain.SeriesPoint{}
	}
	writeJSON(w, http.StatusOK, seriesResponse{
		StationID:  req.StationID,
		Metric:     req.Metric,
		WindowDays: req.WindowDays,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		SinceYear:  req.SinceYear,
		Points:     points,
	})
}

type recordsResponse struct {
	StationID string                 `json:"station_id"`
	Records   []domain.StationRecord `json:"records"`
}

// handleRecords lists a station's standing records, optionally filtered to
// one metric. Unknown stations report 404 instead of an empty list.
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	stationID := q.Get("station_id")
	if stationID == "" {
		s.writeError(w, r, fmt.Errorf("%w: station_id is required", domain.ErrInvalidParameter))
		return
	}
	var metric domain.Metric
	if raw := q.Get("metric"); raw != "" {
		var err error
		if metric, err = domain.ParseMetric(raw); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if _, err := s.catalog.GetStation(r.Context(), stationID); err != nil {
		s.writeError(w, r, err)
		return
	}

	records, err := s.catalog.ListRecords(r.Context(), stationID, metric)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []domain.StationRecord{}
	}
	writeJSON(w, http.StatusOK, recordsResponse{StationID: stationID, Records: records})
}

func (s *Server) handleSeasonalRanking(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	metric, err := s.queryMetric(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	end, err := queryDate(q, "end_date")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	windowDays, err := queryInt(q, "window_days")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sinceYear, err := queryInt(q, "since_year")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ranking, err := s.engine.SeasonalRanking(r.Context(), climate.RankingRequest{
		StationID:  q.Get("station_id"),
		Metric:     metric,
		WindowDays: windowDays,
		EndDate:    end,
		SinceYear:  sinceYear,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ranking)
}

func (s *Server) handleExtremesRanking(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	metric, err := s.queryMetric(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	end, err := queryDate(q, "end_date")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	windowDays, err := queryInt(q, "window_days")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sinceYear, err := queryInt(q, "since_year")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := queryInt(q, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	direction, err := domain.ParseDirection(q.Get("direction"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ranking, err := s.engine.ExtremesRanking(r.Context(), climate.ExtremesRequest{
		StationID:  q.Get("station_id"),
		Metric:     metric,
		WindowDays: windowDays,
		EndDate:    end,
		Direction:  direction,
		SinceYear:  sinceYear,
		Limit:      limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ranking)
}

type latestInsightsResponse struct {
	Insights []domain.LatestInsightSnapshot `json:"insights"`
}

// handleLatestInsights serves the snapshot cache; an optional station_id
// narrows the listing to one station.
func (s *Server) handleLatestInsights(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.catalog.ListSnapshots(r.Context(), r.URL.Query().Get("station_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if snaps == nil {
		snaps = []domain.LatestInsightSnapshot{}
	}
	writeJSON(w, http.StatusOK, latestInsightsResponse{Insights: snaps})
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	switch err := s.recompute.Trigger(); {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
	case errors.Is(err, recompute.ErrAlreadyRunning):
		writeJSON(w, http.StatusConflict, map[string]string{"status": "already_running"})
	case errors.Is(err, recompute.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"status": "throttled"})
	default:
		s.writeError(w, r, err)
	}
}

type latestDateResponse struct {
	StationID  string        `json:"station_id"`
	Metric     domain.Metric `json:"metric"`
	LatestDate domain.Date   `json:"latest_date"`
}

func (s *Server) handleLatestDate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	metric, err := s.queryMetric(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stationID := q.Get("station_id")
	latest, err := s.engine.ResolveLatestDate(r.Context(), stationID, metric)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, latestDateResponse{StationID: stationID, Metric: metric, LatestDate: latest})
}

type stationsResponse struct {
	Stations []domain.Station `json:"stations"`
}

func (s *Server) handleListStations(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	stations, err := s.catalog.ListStations(r.Context(), activeOnly)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if stations == nil {
		stations = []domain.Station{}
	}
	writeJSON(w, http.StatusOK, stationsResponse{Stations: stations})
}

func (s *Server) handleGetStation(w http.ResponseWriter, r *http.Request) {
	station, err := s.catalog.GetStation(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, station)
}

func (s *Server) insightParams(q url.Values) (climate.InsightRequest, error) {
	metric, err := s.queryMetric(q)
	if err != nil {
		return climate.InsightRequest{}, err
	}
	end, err := queryDate(q, "end_date")
	if err != nil {
		return climate.InsightRequest{}, err
	}
	windowDays, err := queryInt(q, "window_days")
	if err != nil {
		return climate.InsightRequest{}, err
	}
	sinceYear, err := queryInt(q, "since_year")
	if err != nil {
		return climate.InsightRequest{}, err
	}
	return climate.InsightRequest{
		StationID:  q.Get("station_id"),
		Metric:     metric,
		WindowDays: windowDays,
		EndDate:    end,
		SinceYear:  sinceYear,
	}, nil
}

// queryMetric parses the metric parameter, falling back to the configured
// default when absent.
func (s *Server) queryMetric(q url.Values) (domain.Metric, error) {
	raw := q.Get("metric")
	if raw == "" {
		return s.defaultMetric, nil
	}
	return domain.ParseMetric(raw)
}

// queryDate parses a YYYY-MM-DD parameter; absence yields a zero Date so the
// engine's own validation decides whether the field was required.
func queryDate(q url.Values, key string) (domain.Date, error) {
	raw := q.Get(key)
	if raw == "" {
		return domain.Date{}, nil
	}
	d, err := domain.ParseDate(raw)
	if err != nil {
		return domain.Date{}, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func queryInt(q url.Values, key string) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", domain.ErrInvalidParameter, key, raw)
	}
	return n, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrStationNotFound), errors.Is(err, domain.ErrNoDataForDate):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientCoverage):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
