// Package location defines location fixes, the subscription policy and the
// providers that deliver fixes to the reporting process.
package location

import "time"

// Fix is one position report. Timestamp is epoch milliseconds.
type Fix struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
	Accuracy  float64 `json:"accuracy" validate:"gte=0"`
	Altitude  float64 `json:"altitude"`
	Speed     float64 `json:"speed" validate:"gte=0"`
	Timestamp int64   `json:"time" validate:"required"`
}

// Payload returns the six fields as named values, unconverted.
func (f Fix) Payload() map[string]interface{} {
	return map[string]interface{}{
		"latitude":  f.Latitude,
		"longitude": f.Longitude,
		"accuracy":  f.Accuracy,
		"altitude":  f.Altitude,
		"speed":     f.Speed,
		"time":      f.Timestamp,
	}
}

func (f Fix) Time() time.Time {
	return time.UnixMilli(f.Timestamp)
}

type Priority int

const (
	PriorityHighAccuracy Priority = iota
	PriorityBalancedPowerAccuracy
	PriorityLowPower
	PriorityPassive
)

func (p Priority) String() string {
	switch p {
	case PriorityHighAccuracy:
		return "high_accuracy"
	case PriorityBalancedPowerAccuracy:
		return "balanced_power_accuracy"
	case PriorityLowPower:
		return "low_power"
	case PriorityPassive:
		return "passive"
	default:
		return "unknown"
	}
}

// Request is the subscription policy handed to a Provider.
type Request struct {
	Interval    time.Duration
	MinInterval time.Duration
	Priority    Priority
}

func DefaultRequest() Request {
	return Request{
		Interval:    60 * time.Second,
		MinInterval: 30 * time.Second,
		Priority:    PriorityHighAccuracy,
	}
}
