// Package http exposes the read API over the climatology engine plus the
// service's health, readiness, and metrics endpoints.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/climate-insights/internal/climate"
	"github.com/couchcryptid/climate-insights/internal/domain"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// InsightService evaluates windows against station climatology on demand.
type InsightService interface {
	Insight(ctx context.Context, req climate.InsightRequest) (domain.Insight, error)
	Series(ctx context.Context, req climate.SeriesRequest) ([]domain.SeriesPoint, error)
	SeasonalRanking(ctx context.Context, req climate.RankingRequest) (domain.SeasonalRanking, error)
	ExtremesRanking(ctx context.Context, req climate.ExtremesRequest) (domain.ExtremesRanking, error)
	ResolveLatestDate(ctx context.Context, stationID string, metric domain.Metric) (domain.Date, error)
}

// Catalog reads stations, station records, and cached latest insights.
type Catalog interface {
	ListStations(ctx context.Context, activeOnly bool) ([]domain.Station, error)
	GetStation(ctx context.Context, id string) (domain.Station, error)
	ListRecords(ctx context.Context, stationID string, metric domain.Metric) ([]domain.StationRecord, error)
	ListSnapshots(ctx context.Context, stationID string) ([]domain.LatestInsightSnapshot, error)
}

// RecomputeTrigger starts an asynchronous refresh of the latest-insight cache.
type RecomputeTrigger interface {
	Trigger() error
}

// Server exposes the climate insights API.
type Server struct {
	httpServer    *http.Server
	engine        InsightService
	catalog       Catalog
	recompute     RecomputeTrigger
	defaultMetric domain.Metric
	logger        *slog.Logger
}

// NewServer wires the API routes. Queries that omit a metric fall back to
// defaultMetric.
func NewServer(addr string, engine InsightService, catalog Catalog, recompute RecomputeTrigger, ready ReadinessChecker, defaultMetric domain.Metric, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		engine:        engine,
		catalog:       catalog,
		recompute:     recompute,
		defaultMetric: defaultMetric,
		logger:        logger,
	}

	mux.HandleFunc("GET /api/insight", s.handleInsight)
	mux.HandleFunc("GET /api/series", s.handleSeries)
	mux.HandleFunc("GET /api/records", s.handleRecords)
	mux.HandleFunc("GET /api/rankings/seasonal", s.handleSeasonalRanking)
	mux.HandleFunc("GET /api/rankings/extremes", s.handleExtremesRanking)
	mux.HandleFunc("GET /api/insights/latest", s.handleLatestInsights)
	mux.HandleFunc("POST /api/recompute", s.handleRecompute)
	mux.HandleFunc("GET /api/latest-date", s.handleLatestDate)
	mux.HandleFunc("GET /api/stations", s.handleListStations)
	mux.HandleFunc("GET /api/stations/{id}", s.handleGetStation)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
