package domain

import (
	"fmt"
	"math"
)

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance between two WGS-84
// coordinates using the haversine formula.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// BoundingBox is a latitude/longitude envelope used to prefilter rows
// before the exact haversine check. It overshoots near the poles, which
// is fine for a prefilter.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// BoxAround returns a bounding box that fully contains the circle of
// radiusKm around the given point. Boxes that would cross the
// antimeridian widen to the full longitude range, so a plain BETWEEN
// range scan stays correct without wrap-around logic.
func BoxAround(lat, lng, radiusKm float64) BoundingBox {
	dLat := radiusKm / 111.0 // ~111 km per degree of latitude
	dLng := dLat
	if cos := math.Cos(radians(lat)); cos > 0.01 {
		dLng = dLat / cos
	} else {
		// Near the poles the longitude band degenerates; take everything.
		dLng = 180
	}

	box := BoundingBox{
		MinLat: lat - dLat,
		MaxLat: lat + dLat,
		MinLng: lng - dLng,
		MaxLng: lng + dLng,
	}
	if box.MinLng < -180 || box.MaxLng > 180 {
		box.MinLng, box.MaxLng = -180, 180
	}
	return box
}

// Aggregate computes ClusterStats over a set of signals: distinct-device
// count, mean and max PGA, and the centroid (mean coordinate) of all
// matching signals. Returns a zero ClusterStats for an empty input.
func Aggregate(signals []Signal) ClusterStats {
	if len(signals) == 0 {
		return ClusterStats{}
	}

	devices := make(map[string]struct{}, len(signals))
	var sumPGA, maxPGA, sumLat, sumLng float64
	for _, s := range signals {
		devices[s.DeviceID] = struct{}{}
		sumPGA += s.PGA
		if s.PGA > maxPGA {
			maxPGA = s.PGA
		}
		sumLat += s.Lat
		sumLng += s.Lng
	}

	n := float64(len(signals))
	return ClusterStats{
		SignalCount: len(devices),
		AvgPGA:      sumPGA / n,
		MaxPGA:      maxPGA,
		CentroidLat: sumLat / n,
		CentroidLng: sumLng / n,
	}
}

// cellSizeDeg is the coarse grid used for serializing concurrent fusion
// runs over the same area. 0.25° is ~28 km of latitude, on the order of
// the cluster radius; runs landing in the same cell share a lock.
const cellSizeDeg = 0.25

// CellKey quantizes a coordinate onto the coarse serialization grid.
// Runs in adjacent cells can still race across a cell border; the
// store's transactional check-then-insert closes that gap.
func CellKey(lat, lng float64) string {
	return fmt.Sprintf("%d:%d",
		int(math.Floor(lat/cellSizeDeg)),
		int(math.Floor(lng/cellSizeDeg)),
	)
}
