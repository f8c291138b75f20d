package store

import (
	"context"
	"fmt"
	"time"

	"github.com/kenet-project/seismic-fusion/internal/domain"
)

// RecordSignal appends one raw observation. No uniqueness constraint
// applies; the store accepts every well-formed signal, including
// pathological magnitudes (filtering is the fusion engine's job).
func (s *Store) RecordSignal(ctx context.Context, sig domain.Signal) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO signals (device_id, pga, lat, lng, observed_at) VALUES (?, ?, ?, ?, ?)`,
		sig.DeviceID, sig.PGA, sig.Lat, sig.Lng, sig.ObservedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record signal: %w", err)
	}
	return nil
}

// RefreshDeviceLocation upserts a device's last known position and
// last-seen timestamp.
func (s *Store) RefreshDeviceLocation(ctx context.Context, loc domain.DeviceLocation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO device_locations (device_id, lat, lng, last_seen) VALUES (?, ?, ?, ?)
		 ON CONFLICT (device_id) DO UPDATE SET lat = excluded.lat, lng = excluded.lng, last_seen = excluded.last_seen`,
		loc.DeviceID, loc.Lat, loc.Lng, loc.LastSeen.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("refresh device location: %w", err)
	}
	return nil
}

// SignalsNear returns all signals within radiusKm of the query point
// observed within the window ending now. Rows are prefiltered by a
// bounding box in SQL; the exact haversine check happens here.
func (s *Store) SignalsNear(ctx context.Context, lat, lng, radiusKm float64, window time.Duration) ([]domain.Signal, error) {
	box := domain.BoxAround(lat, lng, radiusKm)
	cutoff := s.clock.Now().Add(-window).UnixMilli()

	rows, err := s.db.QueryContext(ctx,
		`SELECT device_id, pga, lat, lng, observed_at
		 FROM signals
		 WHERE observed_at >= ? AND lat BETWEEN ? AND ? AND lng BETWEEN ? AND ?`,
		cutoff, box.MinLat, box.MaxLat, box.MinLng, box.MaxLng,
	)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var signals []domain.Signal
	for rows.Next() {
		var sig domain.Signal
		var observedAt int64
		if err := rows.Scan(&sig.DeviceID, &sig.PGA, &sig.Lat, &sig.Lng, &observedAt); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		if domain.DistanceKm(lat, lng, sig.Lat, sig.Lng) > radiusKm {
			continue
		}
		sig.ObservedAt = time.UnixMilli(observedAt).UTC()
		signals = append(signals, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signals: %w", err)
	}
	return signals, nil
}

// ActiveNearby counts devices whose last known position is within
// radiusKm and whose last-seen is inside the recency window. Returns at
// least 1 even when the true count is 0: an isolated signal with no
// nearby population is conservatively treated as a one-person area, which
// also keeps the quorum ratio divisor non-zero.
func (s *Store) ActiveNearby(ctx context.Context, lat, lng, radiusKm float64, recency time.Duration) (int, error) {
	box := domain.BoxAround(lat, lng, radiusKm)
	cutoff := s.clock.Now().Add(-recency).UnixMilli()

	rows, err := s.db.QueryContext(ctx,
		`SELECT lat, lng
		 FROM device_locations
		 WHERE last_seen >= ? AND lat BETWEEN ? AND ? AND lng BETWEEN ? AND ?`,
		cutoff, box.MinLat, box.MaxLat, box.MinLng, box.MaxLng,
	)
	if err != nil {
		return 0, fmt.Errorf("query device locations: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var devLat, devLng float64
		if err := rows.Scan(&devLat, &devLng); err != nil {
			return 0, fmt.Errorf("scan device location: %w", err)
		}
		if domain.DistanceKm(lat, lng, devLat, devLng) <= radiusKm {
			count++
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate device locations: %w", err)
	}

	if count < 1 {
		count = 1
	}
	return count, nil
}
