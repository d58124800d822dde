package domain

import "fmt"

// Metric identifies a daily observation variable. Values follow the upstream
// ingestion naming: variable name plus unit suffix.
type Metric string

const (
	// MetricTAvg is the daily mean air temperature in °C.
	MetricTAvg Metric = "tavg_c"
	// MetricTMin is the daily minimum air temperature in °C.
	MetricTMin Metric = "tmin_c"
	// MetricTMax is the daily maximum air temperature in °C.
	MetricTMax Metric = "tmax_c"
)

// Metrics lists every supported metric in display order.
var Metrics = []Metric{MetricTAvg, MetricTMin, MetricTMax}

// ParseMetric validates a metric name from a query or message. Unknown names
// wrap ErrInvalidParameter.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricTAvg, MetricTMin, MetricTMax:
		return Metric(s), nil
	}
	return "", fmt.Errorf("%w: unknown metric %q", ErrInvalidParameter, s)
}

// Observation is one daily scalar value for a station and metric. Immutable
// once ingested; a later write for the same (station, metric, date) replaces
// the value. Source-quality resolution happens upstream of this service.
type Observation struct {
	StationID string  `json:"station_id"`
	Metric    Metric  `json:"metric"`
	Date      Date    `json:"date"`
	Value     float64 `json:"value"`
}

// Station is registry metadata for one observation site. Seeded from a YAML
// file and served read-only; the engine itself only ever needs the ID.
type Station struct {
	ID         string  `json:"id" yaml:"id"`
	Name       string  `json:"name" yaml:"name"`
	Latitude   float64 `json:"latitude" yaml:"latitude"`
	Longitude  float64 `json:"longitude" yaml:"longitude"`
	ElevationM float64 `json:"elevation_m" yaml:"elevation_m"`
	FirstYear  int     `json:"first_year" yaml:"first_year"`
	Active     bool    `json:"active" yaml:"active"`
}
