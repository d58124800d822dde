package domain

import (
	"encoding/json"
	"fmt"
)

// Plausibility bounds for daily air temperature in °C. The world extremes are
// −89.2 °C (Vostok, 1983) and +56.7 °C (Furnace Creek, 1913); anything outside
// this envelope is an upstream encoding error, not weather.
const (
	minPlausibleTempC = -90.0
	maxPlausibleTempC = 60.0
)

// ObservationRecord is the flat JSON structure the ingestion service
// publishes to the observation topic: one message per station-day, carrying
// whichever metric values the upstream sources reported.
type ObservationRecord struct {
	StationID string   `json:"station_id"`
	Date      string   `json:"date"`
	TAvgC     *float64 `json:"tavg_c,omitempty"`
	TMinC     *float64 `json:"tmin_c,omitempty"`
	TMaxC     *float64 `json:"tmax_c,omitempty"`
	Source    string   `json:"source,omitempty"`
}

// ParseObservationRecord deserializes and validates one intake message.
// Invalid records are rejected whole: partially trusting a message that
// failed validation would let encoding errors into the climatology.
func ParseObservationRecord(data []byte) (ObservationRecord, error) {
	var rec ObservationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return ObservationRecord{}, fmt.Errorf("parse observation record: %w", err)
	}
	if err := rec.validate(); err != nil {
		return ObservationRecord{}, err
	}
	return rec, nil
}

func (r ObservationRecord) validate() error {
	if r.StationID == "" {
		return fmt.Errorf("observation record missing station_id")
	}
	if _, err := ParseDate(r.Date); err != nil {
		return fmt.Errorf("observation record for %s: %w", r.StationID, err)
	}
	if r.TAvgC == nil && r.TMinC == nil && r.TMaxC == nil {
		return fmt.Errorf("observation record for %s at %s carries no values", r.StationID, r.Date)
	}
	for _, mv := range []struct {
		metric Metric
		value  *float64
	}{
		{MetricTAvg, r.TAvgC},
		{MetricTMin, r.TMinC},
		{MetricTMax, r.TMaxC},
	} {
		if mv.value == nil {
			continue
		}
		if *mv.value < minPlausibleTempC || *mv.value > maxPlausibleTempC {
			return fmt.Errorf("observation record for %s at %s: %s=%g outside plausible range [%g, %g]",
				r.StationID, r.Date, mv.metric, *mv.value, minPlausibleTempC, maxPlausibleTempC)
		}
	}
	if r.TMinC != nil && r.TMaxC != nil && *r.TMinC > *r.TMaxC {
		return fmt.Errorf("observation record for %s at %s: tmin %g exceeds tmax %g",
			r.StationID, r.Date, *r.TMinC, *r.TMaxC)
	}
	return nil
}

// Observations expands the record into one Observation per metric present.
// The record must have passed validation; the date is known to parse.
func (r ObservationRecord) Observations() []Observation {
	date, err := ParseDate(r.Date)
	if err != nil {
		return nil
	}

	obs := make([]Observation, 0, 3)
	add := func(metric Metric, value *float64) {
		if value == nil {
			return
		}
		obs = append(obs, Observation{
			StationID: r.StationID,
			Metric:    metric,
			Date:      date,
			Value:     *value,
		})
	}
	add(MetricTAvg, r.TAvgC)
	add(MetricTMin, r.TMinC)
	add(MetricTMax, r.TMaxC)
	return obs
}
