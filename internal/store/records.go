package store

import (
	"context"
	"fmt"

	"github.com/couchcryptid/climate-insights/internal/domain"
)

// ReplaceRecordIfBeaten installs candidate as the station record when none
// exists, or replaces the stored one when the candidate is strictly more
// extreme in the record's direction. Value, dates, and n_years change in the
// same statement; an equal or less extreme candidate leaves the row untouched.
// Reports whether the row changed.
func (s *Store) ReplaceRecordIfBeaten(ctx context.Context, candidate domain.StationRecord) (bool, error) {
	beats := "excluded.value > station_records.value"
	if candidate.RecordType == domain.RecordLowest {
		beats = "excluded.value < station_records.value"
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO station_records
			(station_id, metric, window_days, record_type, value, start_date, end_date, n_years)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (station_id, metric, window_days, record_type) DO UPDATE SET
			value      = excluded.value,
			start_date = excluded.start_date,
			end_date   = excluded.end_date,
			n_years    = excluded.n_years
		WHERE `+beats,
		candidate.StationID, string(candidate.Metric), candidate.WindowDays, string(candidate.RecordType),
		candidate.Value, candidate.StartDate.String(), candidate.EndDate.String(), candidate.NYears)
	if err != nil {
		return false, fmt.Errorf("replace record %s/%s/%dd/%s: %w",
			candidate.StationID, candidate.Metric, candidate.WindowDays, candidate.RecordType, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("replace record rows affected: %w", err)
	}
	return n > 0, nil
}

// ListRecords returns a station's records, optionally filtered to one metric,
// ordered by metric, window length, then record type.
func (s *Store) ListRecords(ctx context.Context, stationID string, metric domain.Metric) ([]domain.StationRecord, error) {
	query := `
		SELECT station_id, metric, window_days, record_type, value, start_date, end_date, n_years
		FROM station_records
		WHERE station_id = ?`
	args := []any{stationID}
	if metric != "" {
		query += ` AND metric = ?`
		args = append(args, string(metric))
	}
	query += ` ORDER BY metric, window_days, record_type`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records for %s: %w", stationID, err)
	}
	defer rows.Close()

	var records []domain.StationRecord
	for rows.Next() {
		var r domain.StationRecord
		var metric, recordType, startDate, endDate string
		if err := rows.Scan(&r.StationID, &metric, &r.WindowDays, &recordType, &r.Value, &startDate, &endDate, &r.NYears); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		r.Metric = domain.Metric(metric)
		r.RecordType = domain.RecordType(recordType)
		if r.StartDate, err = domain.ParseDate(startDate); err != nil {
			return nil, fmt.Errorf("stored record start date %q: %w", startDate, err)
		}
		if r.EndDate, err = domain.ParseDate(endDate); err != nil {
			return nil, fmt.Errorf("stored record end date %q: %w", endDate, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
