package location

import (
	"math"
	"sync"
)

type SpoofingReason string

const (
	ReasonMockLocationEnabled     SpoofingReason = "MOCK_LOCATION_ENABLED"
	ReasonFromMockProvider        SpoofingReason = "FROM_MOCK_PROVIDER"
	ReasonSpoofingAppsInstalled   SpoofingReason = "SPOOFING_APPS_INSTALLED"
	ReasonSpeedAnomaly            SpoofingReason = "SPEED_ANOMALY"
	ReasonNetworkLocationMismatch SpoofingReason = "NETWORK_LOCATION_MISMATCH"
)

const (
	MaxRealisticSpeedKmh = 300.0
	minSpeedSampleMillis = 1000
	earthRadiusMeters    = 6371008.8
)

type SpoofingResult struct {
	Detected bool             `json:"potentially_spoofed"`
	Reasons  []SpoofingReason `json:"spoofing_reasons,omitempty"`
}

// SpoofingDetector flags implausible movement between consecutive fixes.
// Only the speed check applies server-side; the device-local checks are
// reported by clients as reasons directly.
type SpoofingDetector struct {
	mu   sync.Mutex
	last *Fix
}

func NewSpoofingDetector() *SpoofingDetector {
	return &SpoofingDetector{}
}

func (d *SpoofingDetector) Check(f Fix) SpoofingResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	var res SpoofingResult
	if d.last != nil && speedAnomaly(*d.last, f) {
		res.Detected = true
		res.Reasons = append(res.Reasons, ReasonSpeedAnomaly)
	}
	last := f
	d.last = &last
	return res
}

func speedAnomaly(prev, cur Fix) bool {
	dt := cur.Timestamp - prev.Timestamp
	if dt < minSpeedSampleMillis {
		return false
	}
	meters := Distance(prev.Latitude, prev.Longitude, cur.Latitude, cur.Longitude)
	kmh := meters / (float64(dt) / 1000) * 3.6
	return kmh > MaxRealisticSpeedKmh
}

// Distance returns the great-circle distance in meters.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(a)))
}
