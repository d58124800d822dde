package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/climate-insights/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr      string
	DBPath        string
	StationsFile  string
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaGroupID  string
	LogLevel      string
	LogFormat     string
	ShutdownGrace time.Duration

	// Climatology thresholds.
	DefaultMetric       domain.Metric
	CoverageFloor       float64
	MinClimatologyYears int
	MinCoverageYears    int
	MinRecordYears      int

	// Recompute sizing.
	LatestWindows         []int
	RecordWindows         []int
	LatestMaxLookbackDays int
	RefreshInterval       time.Duration
	RecomputeParallelism  int
	RecomputeMinInterval  time.Duration
}

// IntakeEnabled reports whether the Kafka intake should run. An empty broker
// list means the service runs API-only.
func (c *Config) IntakeEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	metric, err := domain.ParseMetric(envOrDefault("DEFAULT_METRIC", "tavg_c"))
	if err != nil {
		return nil, errors.New("invalid DEFAULT_METRIC")
	}

	coverageFloor, err := parseRatio("COVERAGE_FLOOR", 0.5)
	if err != nil {
		return nil, err
	}
	minClimatologyYears, err := parsePositiveInt("MIN_CLIMATOLOGY_YEARS", 10)
	if err != nil {
		return nil, err
	}
	minCoverageYears, err := parsePositiveInt("MIN_COVERAGE_YEARS", 30)
	if err != nil {
		return nil, err
	}
	minRecordYears, err := parsePositiveInt("MIN_RECORD_YEARS", 10)
	if err != nil {
		return nil, err
	}

	latestWindows, err := parseWindowList("LATEST_WINDOW_DAYS", "1,7,30")
	if err != nil {
		return nil, err
	}
	recordWindows, err := parseWindowList("RECORD_WINDOW_DAYS", "1,3,7,14,30,90,365")
	if err != nil {
		return nil, err
	}
	maxLookback, err := parseNonNegativeInt("LATEST_MAX_LOOKBACK_DAYS", 7)
	if err != nil {
		return nil, err
	}
	refreshInterval, err := parseNonNegativeDuration("REFRESH_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}
	parallelism, err := parsePositiveInt("RECOMPUTE_PARALLELISM", 4)
	if err != nil {
		return nil, err
	}
	minTriggerInterval, err := parseNonNegativeDuration("RECOMPUTE_MIN_INTERVAL", 10*time.Second)
	if err != nil {
		return nil, err
	}
	shutdownGrace, err := parsePositiveDuration("SHUTDOWN_GRACE", 10*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:      envOrDefault("HTTP_ADDR", ":8080"),
		DBPath:        envOrDefault("DB_PATH", "./data/climate.db"),
		StationsFile:  os.Getenv("STATIONS_FILE"),
		KafkaBrokers:  parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:    envOrDefault("KAFKA_TOPIC", "climate.observations.daily"),
		KafkaGroupID:  envOrDefault("KAFKA_GROUP_ID", "climate-insights"),
		LogLevel:      envOrDefault("LOG_LEVEL", "info"),
		LogFormat:     envOrDefault("LOG_FORMAT", "json"),
		ShutdownGrace: shutdownGrace,

		DefaultMetric:       metric,
		CoverageFloor:       coverageFloor,
		MinClimatologyYears: minClimatologyYears,
		MinCoverageYears:    minCoverageYears,
		MinRecordYears:      minRecordYears,

		LatestWindows:         latestWindows,
		RecordWindows:         recordWindows,
		LatestMaxLookbackDays: maxLookback,
		RefreshInterval:       refreshInterval,
		RecomputeParallelism:  parallelism,
		RecomputeMinInterval:  minTriggerInterval,
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("HTTP_ADDR is required")
	}
	if cfg.DBPath == "" {
		return nil, errors.New("DB_PATH is required")
	}
	if cfg.IntakeEnabled() {
		if cfg.KafkaTopic == "" {
			return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
		}
		if cfg.KafkaGroupID == "" {
			return nil, errors.New("KAFKA_GROUP_ID is required when KAFKA_BROKERS is set")
		}
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parseBrokers splits a comma-separated broker list, dropping empty entries.
func parseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// parseWindowList parses a comma-separated list of window lengths in days.
func parseWindowList(key, fallback string) ([]int, error) {
	raw := envOrDefault(key, fallback)
	var windows []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid %s: %q is not a positive day count", key, part)
		}
		windows = append(windows, n)
	}
	if len(windows) == 0 {
		return nil, fmt.Errorf("invalid %s: no window lengths", key)
	}
	return windows, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func parseNonNegativeInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

// parseRatio parses a float in (0, 1].
func parseRatio(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 || f > 1 {
		return 0, fmt.Errorf("invalid %s: %q must be in (0, 1]", key, s)
	}
	return f, nil
}

func parsePositiveDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func parseNonNegativeDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}
