package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/SUF145/call-geo/common/request"
	"github.com/SUF145/call-geo/internal/location"
)

const (
	DefaultAlertTitle  = "⚠️ Geofence Alert"
	RemoteAlertTitle   = "Geofence Alert"
	RemoteAlertMessage = "A user has left their geofence area"

	ExtraViewUserLocation = "view_user_location"
	ExtraUserID           = "user_id"
	ViewUserLocation      = "user_location"
)

// AlertRequest asks for a geofence alert. UserID only targets the alert when
// IsAdminNotification is set.
type AlertRequest struct {
	Distance            float64 `json:"distance"`
	Message             string  `json:"message" validate:"required"`
	Title               string  `json:"title,omitempty"`
	IsAdminNotification bool    `json:"is_admin_notification,omitempty"`
	UserID              string  `json:"user_id,omitempty"`
}

// RenderAlert builds the geofence alert for req.
func RenderAlert(req AlertRequest) Notification {
	title := req.Title
	if title == "" {
		title = DefaultAlertTitle
	}

	n := Notification{
		ID:         GeofenceAlertID,
		ChannelID:  AlertChannelID,
		Title:      title,
		Text:       req.Message,
		BigText:    req.Message,
		Priority:   PriorityHigh,
		AutoCancel: true,
		Vibration:  AlertVibration,
	}
	if req.IsAdminNotification {
		n.ID = AdminGeofenceAlertID
		if req.UserID != "" {
			n.Tap = TapAction{
				View: ViewUserLocation,
				Extras: map[string]string{
					ExtraViewUserLocation: "true",
					ExtraUserID:           req.UserID,
				},
			}
		}
	}
	return n
}

// ShowAlert validates, renders and posts a geofence alert.
func ShowAlert(ctx context.Context, m Manager, req AlertRequest) (Notification, error) {
	if err := request.Validate(&req); err != nil {
		return Notification{}, err
	}
	if err := m.CreateChannel(ctx, AlertChannel()); err != nil {
		return Notification{}, err
	}
	n := RenderAlert(req)
	if err := m.Notify(ctx, n); err != nil {
		return Notification{}, err
	}
	return n, nil
}

func RenderForeground() Notification {
	return Notification{
		ID:        ForegroundID,
		ChannelID: TrackingChannelID,
		Title:     "Location Tracking Active",
		Text:      "Your location is being tracked in the background",
		Priority:  PriorityLow,
		Ongoing:   true,
	}
}

var spoofingCounter atomic.Uint64

var spoofingReasonText = map[location.SpoofingReason]string{
	location.ReasonMockLocationEnabled:     "Mock location enabled in developer settings",
	location.ReasonFromMockProvider:        "Fake location provider detected",
	location.ReasonSpoofingAppsInstalled:   "Location spoofing apps found on device",
	location.ReasonSpeedAnomaly:            "Impossible movement speed detected",
	location.ReasonNetworkLocationMismatch: "Location verification failed",
}

// RenderSpoofing builds a spoofing warning. Ids rotate through 100 slots.
func RenderSpoofing(reasons []location.SpoofingReason) Notification {
	text := spoofingText(reasons)
	id := SpoofingBaseID + int((spoofingCounter.Add(1)-1)%100)
	return Notification{
		ID:         id,
		ChannelID:  SpoofingChannelID,
		Title:      "⚠️ LOCATION SPOOFING DETECTED ⚠️",
		Text:       text,
		BigText:    text,
		Priority:   PriorityHigh,
		AutoCancel: true,
		Vibration:  SpoofingVibration,
	}
}

func spoofingText(reasons []location.SpoofingReason) string {
	const base = "URGENT: Location spoofing detected! "
	if len(reasons) == 0 {
		return base + " Please disable any mock location features immediately."
	}
	texts := make([]string, 0, len(reasons))
	for _, r := range reasons {
		t, ok := spoofingReasonText[r]
		if !ok {
			t = string(r)
		}
		texts = append(texts, t)
	}
	return fmt.Sprintf("%sIssues detected: %s - Please disable all location spoofing immediately!", base, strings.Join(texts, ", "))
}

// RemoteMessage is a push message as delivered by the messaging backend.
type RemoteMessage struct {
	From         string            `json:"from,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
	Notification *RemoteNotice     `json:"notification,omitempty"`
}

type RemoteNotice struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

// FromRemoteMessage maps a push message to the alerts it should raise: one
// for a data payload and one for a notification payload.
func FromRemoteMessage(msg RemoteMessage) []AlertRequest {
	var out []AlertRequest
	if len(msg.Data) > 0 {
		req := AlertRequest{
			Title:   valueOr(msg.Data["title"], RemoteAlertTitle),
			Message: valueOr(msg.Data["message"], RemoteAlertMessage),
			UserID:  msg.Data["user_id"],
		}
		req.IsAdminNotification, _ = strconv.ParseBool(msg.Data["is_admin_notification"])
		out = append(out, req)
	}
	if msg.Notification != nil {
		out = append(out, AlertRequest{
			Title:   valueOr(msg.Notification.Title, RemoteAlertTitle),
			Message: valueOr(msg.Notification.Body, RemoteAlertMessage),
		})
	}
	return out
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
