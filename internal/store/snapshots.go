package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/couchcryptid/climate-insights/internal/domain"
)

// PutSnapshotIfNewer upserts the latest-insight snapshot for the
// (station_id, window_days) key unless the stored snapshot already covers a
// later end date. The recency guard runs inside the statement, so concurrent
// or out-of-order recomputes cannot regress the cache. Reports whether the
// snapshot was written.
func (s *Store) PutSnapshotIfNewer(ctx context.Context, snap domain.LatestInsightSnapshot) (bool, error) {
	payload, err := json.Marshal(snap.Insight)
	if err != nil {
		return false, fmt.Errorf("encode snapshot insight: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO insight_snapshots (station_id, window_days, metric, end_date, insight, computed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (station_id, window_days) DO UPDATE SET
			metric      = excluded.metric,
			end_date    = excluded.end_date,
			insight     = excluded.insight,
			computed_at = excluded.computed_at
		WHERE excluded.end_date >= insight_snapshots.end_date`,
		snap.StationID, snap.WindowDays, string(snap.Metric), snap.EndDate.String(),
		string(payload), snap.ComputedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("put snapshot %s/%dd: %w", snap.StationID, snap.WindowDays, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("put snapshot rows affected: %w", err)
	}
	return n > 0, nil
}

// ListSnapshots returns cached latest insights ascending by station and
// window length. An empty stationID lists every station; missing windows are
// simply absent.
func (s *Store) ListSnapshots(ctx context.Context, stationID string) ([]domain.LatestInsightSnapshot, error) {
	query := `SELECT insight, computed_at FROM insight_snapshots`
	var args []any
	if stationID != "" {
		query += ` WHERE station_id = ?`
		args = append(args, stationID)
	}
	query += ` ORDER BY station_id, window_days`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.LatestInsightSnapshot
	for rows.Next() {
		var payload, computedAt string
		if err := rows.Scan(&payload, &computedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		var snap domain.LatestInsightSnapshot
		if err := json.Unmarshal([]byte(payload), &snap.Insight); err != nil {
			return nil, fmt.Errorf("decode stored snapshot: %w", err)
		}
		if snap.ComputedAt, err = time.Parse(time.RFC3339Nano, computedAt); err != nil {
			return nil, fmt.Errorf("stored snapshot timestamp %q: %w", computedAt, err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}
