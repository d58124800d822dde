package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/climate-insights/internal/domain"
)

// SeedStations loads a YAML list of stations from path and upserts each row.
// Returns how many stations the file held.
func (s *Store) SeedStations(ctx context.Context, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read stations file: %w", err)
	}
	var stations []domain.Station
	if err := yaml.Unmarshal(raw, &stations); err != nil {
		return 0, fmt.Errorf("parse stations file %s: %w", path, err)
	}
	if err := s.UpsertStations(ctx, stations); err != nil {
		return 0, err
	}
	return len(stations), nil
}

// UpsertStations writes station metadata in one transaction, replacing
// existing rows by id.
func (s *Store) UpsertStations(ctx context.Context, stations []domain.Station) error {
	if len(stations) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin station batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO stations (id, name, latitude, longitude, elevation_m, first_year, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name        = excluded.name,
			latitude    = excluded.latitude,
			longitude   = excluded.longitude,
			elevation_m = excluded.elevation_m,
			first_year  = excluded.first_year,
			active      = excluded.active`)
	if err != nil {
		return fmt.Errorf("prepare station upsert: %w", err)
	}
	defer stmt.Close()

	for _, st := range stations {
		active := 0
		if st.Active {
			active = 1
		}
		if _, err := stmt.ExecContext(ctx, st.ID, st.Name, st.Latitude, st.Longitude, st.ElevationM, st.FirstYear, active); err != nil {
			return fmt.Errorf("upsert station %s: %w", st.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit station batch: %w", err)
	}
	return nil
}

// ListStations returns all stations ordered by id. When activeOnly is set,
// inactive stations are skipped.
func (s *Store) ListStations(ctx context.Context, activeOnly bool) ([]domain.Station, error) {
	query := `SELECT id, name, latitude, longitude, elevation_m, first_year, active FROM stations`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	defer rows.Close()

	var stations []domain.Station
	for rows.Next() {
		st, err := scanStation(rows.Scan)
		if err != nil {
			return nil, err
		}
		stations = append(stations, st)
	}
	return stations, rows.Err()
}

// GetStation returns one station by id, or domain.ErrStationNotFound.
func (s *Store) GetStation(ctx context.Context, id string) (domain.Station, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, latitude, longitude, elevation_m, first_year, active FROM stations WHERE id = ?`, id)
	st, err := scanStation(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Station{}, fmt.Errorf("%w: %s", domain.ErrStationNotFound, id)
	}
	return st, err
}

func scanStation(scan func(dest ...any) error) (domain.Station, error) {
	var st domain.Station
	var active int
	if err := scan(&st.ID, &st.Name, &st.Latitude, &st.Longitude, &st.ElevationM, &st.FirstYear, &active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Station{}, err
		}
		return domain.Station{}, fmt.Errorf("scan station row: %w", err)
	}
	st.Active = active == 1
	return st, nil
}
