package store

import (
	"context"
	"fmt"
	"time"

	"github.com/kenet-project/seismic-fusion/internal/domain"
)

// UpsertOfficialQuakes inserts feed records that are not yet known,
// keyed by the feed's external identifier. Already-seen records are left
// untouched. Returns the number of new records.
func (s *Store) UpsertOfficialQuakes(ctx context.Context, quakes []domain.OfficialQuake) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin feed transaction: %w", err)
	}
	defer tx.Rollback()

	fetchedAt := s.clock.Now().UnixMilli()
	inserted := 0
	for _, q := range quakes {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO official_earthquakes (external_id, title, magnitude, depth, lat, lng, occurred_at, fetched_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (external_id) DO NOTHING`,
			q.ExternalID, q.Title, q.Magnitude, q.Depth, q.Lat, q.Lng, q.OccurredAt.UnixMilli(), fetchedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("insert official quake %s: %w", q.ExternalID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit feed transaction: %w", err)
	}
	return inserted, nil
}

// ListOfficialQuakes returns official records that occurred at or after
// since, newest first.
func (s *Store) ListOfficialQuakes(ctx context.Context, since time.Time) ([]domain.OfficialQuake, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT external_id, title, magnitude, depth, lat, lng, occurred_at
		 FROM official_earthquakes
		 WHERE occurred_at >= ?
		 ORDER BY occurred_at DESC`,
		since.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("query official quakes: %w", err)
	}
	defer rows.Close()

	var quakes []domain.OfficialQuake
	for rows.Next() {
		var q domain.OfficialQuake
		var occurredAt int64
		if err := rows.Scan(&q.ExternalID, &q.Title, &q.Magnitude, &q.Depth, &q.Lat, &q.Lng, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan official quake: %w", err)
		}
		q.OccurredAt = time.UnixMilli(occurredAt).UTC()
		quakes = append(quakes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate official quakes: %w", err)
	}
	return quakes, nil
}
