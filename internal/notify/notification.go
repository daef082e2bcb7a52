// Package notify renders the user-visible notifications of the tracking
// process and keeps the active set and its history.
package notify

import "time"

type Importance int

const (
	ImportanceLow Importance = iota + 1
	ImportanceDefault
	ImportanceHigh
)

type Priority int

const (
	PriorityLow Priority = iota - 1
	PriorityDefault
	PriorityHigh
)

// ChannelSpec describes a notification channel.
type ChannelSpec struct {
	ID          string     `json:"id" bson:"id"`
	Name        string     `json:"name" bson:"name"`
	Description string     `json:"description" bson:"description"`
	Importance  Importance `json:"importance" bson:"importance"`
	ShowBadge   bool       `json:"show_badge" bson:"show_badge"`
	Vibration   []int64    `json:"vibration,omitempty" bson:"vibration,omitempty"`
}

const (
	TrackingChannelID = "LocationTrackingServiceChannel"
	AlertChannelID    = "GeofenceAlertChannel"
	SpoofingChannelID = "location_spoofing_channel"
)

// Notification ids. Alerts of one category share a slot.
const (
	ForegroundID         = 1
	GeofenceAlertID      = 2
	AdminGeofenceAlertID = 3
	SpoofingBaseID       = 12345
)

var (
	AlertVibration    = []int64{0, 1000, 500, 1000}
	SpoofingVibration = []int64{0, 500, 200, 500}
)

func TrackingChannel() ChannelSpec {
	return ChannelSpec{
		ID:          TrackingChannelID,
		Name:        "Location Tracking Service",
		Description: "Used for tracking your location in the background",
		Importance:  ImportanceLow,
		ShowBadge:   false,
	}
}

func AlertChannel() ChannelSpec {
	return ChannelSpec{
		ID:          AlertChannelID,
		Name:        "Geofence Alerts",
		Description: "Alerts when you or your users leave the allowed area",
		Importance:  ImportanceHigh,
		ShowBadge:   true,
		Vibration:   AlertVibration,
	}
}

func SpoofingChannel() ChannelSpec {
	return ChannelSpec{
		ID:          SpoofingChannelID,
		Name:        "Location Spoofing Alerts",
		Description: "Urgent notifications for potential location spoofing detection",
		Importance:  ImportanceHigh,
		ShowBadge:   true,
		Vibration:   SpoofingVibration,
	}
}

// TapAction is what opening the notification does. An empty View opens the
// default view.
type TapAction struct {
	View   string            `json:"view,omitempty" bson:"view,omitempty"`
	Extras map[string]string `json:"extras,omitempty" bson:"extras,omitempty"`
}

type Notification struct {
	ID         int       `json:"id" bson:"notification_id"`
	ChannelID  string    `json:"channel_id" bson:"channel_id"`
	Title      string    `json:"title" bson:"title"`
	Text       string    `json:"text" bson:"text"`
	BigText    string    `json:"big_text,omitempty" bson:"big_text,omitempty"`
	Priority   Priority  `json:"priority" bson:"priority"`
	Ongoing    bool      `json:"ongoing" bson:"ongoing"`
	AutoCancel bool      `json:"auto_cancel" bson:"auto_cancel"`
	Vibration  []int64   `json:"vibration,omitempty" bson:"vibration,omitempty"`
	Tap        TapAction `json:"tap" bson:"tap"`
	PostedAt   time.Time `json:"posted_at" bson:"posted_at"`
}
