package notify

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/SUF145/call-geo/common/request"
	"github.com/SUF145/call-geo/internal/location"
)

func TestRenderAlert(t *testing.T) {
	tests := []struct {
		name       string
		req        AlertRequest
		wantID     int
		wantTitle  string
		wantExtras map[string]string
	}{
		{
			name:      "user alert",
			req:       AlertRequest{Distance: 120, Message: "You left the area"},
			wantID:    GeofenceAlertID,
			wantTitle: DefaultAlertTitle,
		},
		{
			name:      "admin alert",
			req:       AlertRequest{Message: "u1 left", Title: "Admin", IsAdminNotification: true, UserID: "u1"},
			wantID:    AdminGeofenceAlertID,
			wantTitle: "Admin",
			wantExtras: map[string]string{
				ExtraViewUserLocation: "true",
				ExtraUserID:           "u1",
			},
		},
		{
			name:      "admin without user",
			req:       AlertRequest{Message: "someone left", IsAdminNotification: true},
			wantID:    AdminGeofenceAlertID,
			wantTitle: DefaultAlertTitle,
		},
		{
			name:      "user id ignored for non-admin",
			req:       AlertRequest{Message: "left", UserID: "u1"},
			wantID:    GeofenceAlertID,
			wantTitle: DefaultAlertTitle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := RenderAlert(tt.req)
			if n.ID != tt.wantID || n.Title != tt.wantTitle {
				t.Errorf("id/title = %d/%q, want %d/%q", n.ID, n.Title, tt.wantID, tt.wantTitle)
			}
			if n.Text != tt.req.Message || n.BigText != tt.req.Message {
				t.Errorf("text = %q, big text = %q", n.Text, n.BigText)
			}
			if n.Priority != PriorityHigh || !n.AutoCancel || n.ChannelID != AlertChannelID {
				t.Errorf("unexpected presentation %+v", n)
			}
			if !reflect.DeepEqual(n.Vibration, []int64{0, 1000, 500, 1000}) {
				t.Errorf("vibration = %v", n.Vibration)
			}
			if !reflect.DeepEqual(n.Tap.Extras, tt.wantExtras) {
				t.Errorf("extras = %v, want %v", n.Tap.Extras, tt.wantExtras)
			}
		})
	}
}

func TestShowAlertRequiresMessage(t *testing.T) {
	tray := NewTray()
	_, err := ShowAlert(context.Background(), tray, AlertRequest{Distance: 5})
	if _, ok := request.IsValidationError(err); !ok {
		t.Fatalf("err = %v, want validation error", err)
	}
	if len(tray.Active()) != 0 {
		t.Error("nothing should be posted")
	}
}

func TestShowAlertLastWriteWins(t *testing.T) {
	tray := NewTray()
	ctx := context.Background()

	for _, msg := range []string{"first", "second"} {
		if _, err := ShowAlert(ctx, tray, AlertRequest{Message: msg}); err != nil {
			t.Fatalf("ShowAlert: %v", err)
		}
	}
	if _, err := ShowAlert(ctx, tray, AlertRequest{Message: "admin", IsAdminNotification: true, UserID: "u1"}); err != nil {
		t.Fatalf("ShowAlert: %v", err)
	}

	active := tray.Active()
	if len(active) != 2 {
		t.Fatalf("active = %d, want 2", len(active))
	}
	if active[0].ID != GeofenceAlertID || active[0].Text != "second" {
		t.Errorf("user slot = %+v", active[0])
	}
	if active[1].ID != AdminGeofenceAlertID {
		t.Errorf("admin slot = %+v", active[1])
	}
}

func TestTrayUnknownChannel(t *testing.T) {
	tray := NewTray()
	err := tray.Notify(context.Background(), RenderForeground())
	if !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("err = %v, want ErrUnknownChannel", err)
	}

	_ = tray.CreateChannel(context.Background(), TrackingChannel())
	if err := tray.Notify(context.Background(), RenderForeground()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	n, ok := tray.Get(ForegroundID)
	if !ok || !n.Ongoing || n.Title != "Location Tracking Active" {
		t.Errorf("foreground = %+v", n)
	}
	_ = tray.Cancel(context.Background(), ForegroundID)
	if _, ok := tray.Get(ForegroundID); ok {
		t.Error("foreground still active after Cancel")
	}
}

func TestChannelSpecs(t *testing.T) {
	if c := TrackingChannel(); c.Importance != ImportanceLow || c.ShowBadge {
		t.Errorf("tracking channel = %+v", c)
	}
	if c := AlertChannel(); c.Importance != ImportanceHigh || !reflect.DeepEqual(c.Vibration, AlertVibration) {
		t.Errorf("alert channel = %+v", c)
	}
}

func TestRenderSpoofing(t *testing.T) {
	n := RenderSpoofing([]location.SpoofingReason{location.ReasonSpeedAnomaly, location.ReasonFromMockProvider})
	if n.ID < SpoofingBaseID || n.ID >= SpoofingBaseID+100 {
		t.Errorf("id = %d out of range", n.ID)
	}
	want := "URGENT: Location spoofing detected! Issues detected: Impossible movement speed detected, Fake location provider detected - Please disable all location spoofing immediately!"
	if n.Text != want {
		t.Errorf("text = %q", n.Text)
	}

	empty := RenderSpoofing(nil)
	if !strings.Contains(empty.Text, "Please disable any mock location features immediately.") {
		t.Errorf("empty text = %q", empty.Text)
	}
	if empty.ID == n.ID {
		t.Error("consecutive spoofing notifications share an id")
	}
}

func TestFromRemoteMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  RemoteMessage
		want []AlertRequest
	}{
		{"empty", RemoteMessage{}, nil},
		{
			"data defaults",
			RemoteMessage{Data: map[string]string{"other": "x"}},
			[]AlertRequest{{Title: RemoteAlertTitle, Message: RemoteAlertMessage}},
		},
		{
			"admin data",
			RemoteMessage{Data: map[string]string{"title": "T", "message": "M", "is_admin_notification": "true", "user_id": "u1"}},
			[]AlertRequest{{Title: "T", Message: "M", IsAdminNotification: true, UserID: "u1"}},
		},
		{
			"data and notice",
			RemoteMessage{Data: map[string]string{"message": "M"}, Notification: &RemoteNotice{Body: "B"}},
			[]AlertRequest{
				{Title: RemoteAlertTitle, Message: "M"},
				{Title: RemoteAlertTitle, Message: "B"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromRemoteMessage(tt.msg); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FromRemoteMessage = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRecorder(t *testing.T) {
	tray := NewTray()
	hist := NewMemoryHistory(10)
	rec := NewRecorder(tray, hist)
	ctx := context.Background()

	if err := rec.Notify(ctx, RenderForeground()); err == nil {
		t.Fatal("expected unknown channel error")
	}
	_ = rec.CreateChannel(ctx, AlertChannel())
	if _, err := ShowAlert(ctx, rec, AlertRequest{Message: "one"}); err != nil {
		t.Fatalf("ShowAlert: %v", err)
	}
	if _, err := ShowAlert(ctx, rec, AlertRequest{Message: "two"}); err != nil {
		t.Fatalf("ShowAlert: %v", err)
	}

	recent, _ := hist.Recent(ctx, 5)
	if len(recent) != 2 || recent[0].Text != "two" || recent[1].Text != "one" {
		t.Errorf("history = %+v", recent)
	}
	if recent[0].PostedAt.IsZero() {
		t.Error("PostedAt not stamped")
	}
}
