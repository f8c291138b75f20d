package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kenet-project/seismic-fusion/internal/domain"
)

// RecordOrReuseEvent inserts a confirmed event unless a recent event
// already exists within radiusKm of the candidate and inside the cooldown
// window, in which case the existing event is returned unchanged. The
// check and insert run in one transaction; the caller serializes
// concurrent candidates for the same area so two near-simultaneous
// confirmations cannot both pass the check.
//
// The returned bool is true when a fresh event was created.
func (s *Store) RecordOrReuseEvent(ctx context.Context, candidate domain.DetectedEvent, radiusKm float64, cooldown time.Duration) (domain.DetectedEvent, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.DetectedEvent{}, false, fmt.Errorf("begin dedup transaction: %w", err)
	}
	defer tx.Rollback()

	box := domain.BoxAround(candidate.Lat, candidate.Lng, radiusKm)
	cutoff := s.clock.Now().Add(-cooldown).UnixMilli()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, lat, lng, intensity, max_pga, avg_pga, participants, created_at
		 FROM detected_events
		 WHERE created_at >= ? AND lat BETWEEN ? AND ? AND lng BETWEEN ? AND ?
		 ORDER BY created_at DESC`,
		cutoff, box.MinLat, box.MaxLat, box.MinLng, box.MaxLng,
	)
	if err != nil {
		return domain.DetectedEvent{}, false, fmt.Errorf("query recent events: %w", err)
	}

	existing, found, err := scanFirstWithin(rows, candidate.Lat, candidate.Lng, radiusKm)
	if err != nil {
		return domain.DetectedEvent{}, false, err
	}
	if found {
		return existing, false, tx.Commit()
	}

	created := candidate
	created.ID = uuid.New().String()
	created.CreatedAt = s.clock.Now().UTC()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO detected_events (id, lat, lng, intensity, max_pga, avg_pga, participants, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		created.ID, created.Lat, created.Lng, created.Intensity,
		created.MaxPGA, created.AvgPGA, created.Participants, created.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return domain.DetectedEvent{}, false, fmt.Errorf("insert event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.DetectedEvent{}, false, fmt.Errorf("commit event: %w", err)
	}
	return created, true, nil
}

// scanFirstWithin walks candidate rows newest-first and returns the first
// event within radiusKm of the point. Closes rows before returning.
func scanFirstWithin(rows *sql.Rows, lat, lng, radiusKm float64) (domain.DetectedEvent, bool, error) {
	defer rows.Close()
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return domain.DetectedEvent{}, false, err
		}
		if domain.DistanceKm(lat, lng, ev.Lat, ev.Lng) <= radiusKm {
			return ev, true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return domain.DetectedEvent{}, false, fmt.Errorf("iterate events: %w", err)
	}
	return domain.DetectedEvent{}, false, nil
}

// ListEvents returns detected events created at or after since, newest
// first.
func (s *Store) ListEvents(ctx context.Context, since time.Time) ([]domain.DetectedEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lat, lng, intensity, max_pga, avg_pga, participants, created_at
		 FROM detected_events
		 WHERE created_at >= ?
		 ORDER BY created_at DESC`,
		since.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []domain.DetectedEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (domain.DetectedEvent, error) {
	var ev domain.DetectedEvent
	var createdAt int64
	if err := rows.Scan(&ev.ID, &ev.Lat, &ev.Lng, &ev.Intensity, &ev.MaxPGA, &ev.AvgPGA, &ev.Participants, &createdAt); err != nil {
		return domain.DetectedEvent{}, fmt.Errorf("scan event: %w", err)
	}
	ev.CreatedAt = time.UnixMilli(createdAt).UTC()
	return ev, nil
}
