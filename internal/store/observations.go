package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/couchcryptid/climate-insights/internal/domain"
)

// UpsertObservations writes a batch in one transaction, replacing values on
// the (station, metric, date) key. Re-delivered batches are harmless.
func (s *Store) UpsertObservations(ctx context.Context, obs []domain.Observation) error {
	if len(obs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin observation batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO observations (station_id, metric, obs_date, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (station_id, metric, obs_date) DO UPDATE SET value = excluded.value`)
	if err != nil {
		return fmt.Errorf("prepare observation upsert: %w", err)
	}
	defer stmt.Close()

	for _, o := range obs {
		if _, err := stmt.ExecContext(ctx, o.StationID, string(o.Metric), o.Date.String(), o.Value); err != nil {
			return fmt.Errorf("upsert observation %s/%s at %s: %w", o.StationID, o.Metric, o.Date, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit observation batch: %w", err)
	}
	return nil
}

// ScanDaily streams the key's values in ascending date order, one callback per
// day. Zero from or to leaves that bound open. A non-nil error from fn aborts
// the scan and is returned as-is.
func (s *Store) ScanDaily(ctx context.Context, stationID string, metric domain.Metric, from, to domain.Date, fn func(date domain.Date, value float64) error) error {
	query := `SELECT obs_date, value FROM observations WHERE station_id = ? AND metric = ?`
	args := []any{stationID, string(metric)}
	if !from.IsZero() {
		query += ` AND obs_date >= ?`
		args = append(args, from.String())
	}
	if !to.IsZero() {
		query += ` AND obs_date <= ?`
		args = append(args, to.String())
	}
	query += ` ORDER BY obs_date`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("scan observations %s/%s: %w", stationID, metric, err)
	}
	defer rows.Close()

	for rows.Next() {
		var day string
		var value float64
		if err := rows.Scan(&day, &value); err != nil {
			return fmt.Errorf("scan observation row: %w", err)
		}
		d, err := domain.ParseDate(day)
		if err != nil {
			return fmt.Errorf("stored observation date %q: %w", day, err)
		}
		if err := fn(d, value); err != nil {
			return err
		}
	}
	return rows.Err()
}

// LatestDate returns the most recent observation date for the key, or
// domain.ErrNoDataForDate when the key has none.
func (s *Store) LatestDate(ctx context.Context, stationID string, metric domain.Metric) (domain.Date, error) {
	var day sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(obs_date) FROM observations WHERE station_id = ? AND metric = ?`,
		stationID, string(metric)).Scan(&day)
	if err != nil {
		return domain.Date{}, fmt.Errorf("latest observation date %s/%s: %w", stationID, metric, err)
	}
	if !day.Valid {
		return domain.Date{}, fmt.Errorf("%w: no observations for %s/%s", domain.ErrNoDataForDate, stationID, metric)
	}
	return domain.ParseDate(day.String)
}

// CountYears returns how many distinct calendar years hold at least one
// observation for the key. Record rows carry this as their n_years context.
func (s *Store) CountYears(ctx context.Context, stationID string, metric domain.Metric) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT substr(obs_date, 1, 4)) FROM observations WHERE station_id = ? AND metric = ?`,
		stationID, string(metric)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count observation years %s/%s: %w", stationID, metric, err)
	}
	return n, nil
}
