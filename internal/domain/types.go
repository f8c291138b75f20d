package domain

import "time"

// Signal is one raw accelerometer observation reported by a device.
// Signals are append-only and never mutated; they age out of relevance
// once older than the fusion window.
type Signal struct {
	DeviceID   string    `json:"device_id"`
	PGA        float64   `json:"pga"` // peak ground acceleration, g
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	ObservedAt time.Time `json:"observed_at"`
}

// DeviceLocation is a device's last known position, used only to size the
// active nearby population. A device counts as active while its LastSeen
// is within the configured recency window.
type DeviceLocation struct {
	DeviceID string    `json:"device_id"`
	Lat      float64   `json:"lat"`
	Lng      float64   `json:"lng"`
	LastSeen time.Time `json:"last_seen"`
}

// ClusterStats is the ephemeral aggregate over signals inside a
// radius/time window. SignalCount counts distinct devices. A zero
// SignalCount means no cluster exists and fusion must abort; the
// remaining fields are undefined in that case.
type ClusterStats struct {
	SignalCount int
	AvgPGA      float64
	MaxPGA      float64
	CentroidLat float64
	CentroidLng float64
}

// Defined reports whether the cluster contains any signals.
func (c ClusterStats) Defined() bool { return c.SignalCount > 0 }

// DetectedEvent is a confirmed app-detected earthquake. Created exactly
// once per physically distinct occurrence and immutable afterwards.
type DetectedEvent struct {
	ID           string    `json:"id"`
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	Intensity    string    `json:"intensity"`
	MaxPGA       float64   `json:"max_pga"`
	AvgPGA       float64   `json:"avg_pga"`
	Participants int       `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
}

// OfficialQuake is one row of the third-party observatory feed, kept as a
// separate dataset for side-by-side display. The fusion core never reads
// these.
type OfficialQuake struct {
	ExternalID string    `json:"external_id"`
	Title      string    `json:"title"`
	Magnitude  float64   `json:"magnitude"`
	Depth      float64   `json:"depth"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	OccurredAt time.Time `json:"occurred_at"`
}
