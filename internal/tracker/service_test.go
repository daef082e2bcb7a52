package tracker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/SUF145/call-geo/internal/boot"
	"github.com/SUF145/call-geo/internal/bridge"
	"github.com/SUF145/call-geo/internal/events"
	"github.com/SUF145/call-geo/internal/location"
	"github.com/SUF145/call-geo/internal/notify"
	"github.com/SUF145/call-geo/internal/prefs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type sent struct {
	channel string
	call    bridge.MethodCall
}

type fakeMessenger struct {
	mu       sync.Mutex
	sent     []sent
	handlers map[string]bridge.MethodCallHandler
}

func (m *fakeMessenger) Send(_ context.Context, channel string, call bridge.MethodCall) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sent{channel, call})
	return nil
}

func (m *fakeMessenger) SetMessageHandler(channel string, h bridge.MethodCallHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handlers == nil {
		m.handlers = make(map[string]bridge.MethodCallHandler)
	}
	m.handlers[channel] = h
}

func (m *fakeMessenger) call(method string, args interface{}) bridge.Result {
	m.mu.Lock()
	h := m.handlers[bridge.ChannelName]
	m.mu.Unlock()
	call, _ := bridge.NewMethodCall(method, args)
	return h(context.Background(), call)
}

func (m *fakeMessenger) payloads(t *testing.T) []map[string]interface{} {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []map[string]interface{}
	for _, s := range m.sent {
		if s.call.Method != bridge.MethodLocationUpdate {
			continue
		}
		var p map[string]interface{}
		if err := json.Unmarshal(s.call.Arguments, &p); err != nil {
			t.Fatalf("payload: %v", err)
		}
		out = append(out, p)
	}
	return out
}

type harness struct {
	provider  *location.PushProvider
	tray      *notify.Tray
	registry  *bridge.MemoryRegistry
	host      *bridge.Host
	messenger *fakeMessenger
	publisher *events.Memory
	metrics   *Metrics
}

func newHarness(permitted bool) *harness {
	h := &harness{
		provider:  location.NewPushProvider(permitted),
		tray:      notify.NewTray(),
		registry:  bridge.NewMemoryRegistry(),
		messenger: &fakeMessenger{},
		publisher: &events.Memory{},
		metrics:   NewMetrics(prometheus.NewRegistry()),
	}
	h.host = bridge.NewHost(h.registry, func(int64) bridge.Messenger { return h.messenger })
	return h
}

func (h *harness) service() *Service {
	return NewService(Deps{
		Host:      h.host,
		Provider:  h.provider,
		Notifier:  h.tray,
		Publisher: h.publisher,
		Metrics:   h.metrics,
	})
}

func (h *harness) register(t *testing.T, name string) int64 {
	t.Helper()
	entry, err := h.registry.Register(context.Background(), name)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return entry.Handle
}

func TestCreatedSubscribesAndPostsForeground(t *testing.T) {
	h := newHarness(true)
	svc := h.service()

	if err := svc.Handle(context.Background(), Created{}); err != nil {
		t.Fatalf("Created: %v", err)
	}
	if svc.State() != StateTracking {
		t.Errorf("state = %v, want tracking", svc.State())
	}
	if n, ok := h.tray.Get(notify.ForegroundID); !ok || !n.Ongoing {
		t.Errorf("foreground notification = %+v, %v", n, ok)
	}
	if !svc.Status().Subscribed {
		t.Error("expected live subscription")
	}
}

func TestCreatedWithoutPermissionStaysStarting(t *testing.T) {
	h := newHarness(false)
	svc := h.service()

	if err := svc.Handle(context.Background(), Created{}); err != nil {
		t.Fatalf("Created: %v", err)
	}
	if svc.State() != StateStarting {
		t.Errorf("state = %v, want starting", svc.State())
	}
	if svc.Failures()[FailurePermissionDenied] != 1 {
		t.Errorf("failures = %v", svc.Failures())
	}
	if got := testutil.ToFloat64(h.metrics.failures.WithLabelValues(string(FailurePermissionDenied))); got != 1 {
		t.Errorf("permission_denied counter = %v", got)
	}
}

func TestFixRelayedWithExactPayload(t *testing.T) {
	h := newHarness(true)
	handle := h.register(t, "main.locationCallback")
	svc := h.service()
	ctx := context.Background()

	_ = svc.Handle(ctx, Created{})
	_ = svc.Handle(ctx, StartRequested{Handle: handle})

	fix := location.Fix{Latitude: 37.0, Longitude: -122.0, Accuracy: 5.0, Altitude: 10.0, Speed: 0.0, Timestamp: 1700000000000}
	h.provider.Ingest(ctx, fix)

	payloads := h.messenger.payloads(t)
	if len(payloads) != 1 {
		t.Fatalf("relayed %d fixes, want 1", len(payloads))
	}
	p := payloads[0]
	want := map[string]float64{"latitude": 37, "longitude": -122, "accuracy": 5, "altitude": 10, "speed": 0, "time": 1700000000000}
	if len(p) != len(want) {
		t.Errorf("payload fields = %v", p)
	}
	for k, v := range want {
		if p[k] != v {
			t.Errorf("payload[%s] = %v, want %v", k, p[k], v)
		}
	}
	if got := testutil.ToFloat64(h.metrics.relayed); got != 1 {
		t.Errorf("relayed counter = %v", got)
	}
}

func TestFixOrderPreserved(t *testing.T) {
	h := newHarness(true)
	handle := h.register(t, "main")
	svc := NewService(Deps{Host: h.host, Provider: h.provider, Notifier: h.tray, Request: location.Request{Interval: 1}})
	ctx := context.Background()
	_ = svc.Handle(ctx, Created{})
	_ = svc.Handle(ctx, StartRequested{Handle: handle})

	for i := 1; i <= 5; i++ {
		h.provider.Ingest(ctx, location.Fix{Latitude: float64(i), Timestamp: int64(i)})
	}
	payloads := h.messenger.payloads(t)
	if len(payloads) != 5 {
		t.Fatalf("relayed %d, want 5", len(payloads))
	}
	for i, p := range payloads {
		if p["latitude"] != float64(i+1) {
			t.Errorf("fix %d latitude = %v", i, p["latitude"])
		}
	}
}

func TestFixDroppedWhileChannelUninitialized(t *testing.T) {
	h := newHarness(true)
	svc := h.service()
	ctx := context.Background()
	_ = svc.Handle(ctx, Created{})

	fix := location.Fix{Latitude: 37.0, Longitude: -122.0, Accuracy: 5.0, Altitude: 10.0, Speed: 0.0, Timestamp: 1700000000000}
	if err := svc.Handle(ctx, LocationFix{Fix: fix}); err != nil {
		t.Fatalf("LocationFix: %v", err)
	}
	if len(h.messenger.sent) != 0 {
		t.Error("fix must not be relayed without a channel")
	}
	if svc.Failures()[FailureChannelUninitialized] != 1 {
		t.Errorf("failures = %v", svc.Failures())
	}
}

func TestFirstCallbackHandleWins(t *testing.T) {
	h := newHarness(true)
	first := h.register(t, "first")
	second := h.register(t, "second")
	svc := h.service()
	ctx := context.Background()

	_ = svc.Handle(ctx, Created{})
	_ = svc.Handle(ctx, StartRequested{Handle: first})
	_ = svc.Handle(ctx, StartRequested{Handle: second})

	if got := h.host.Engine().Handle; got != first {
		t.Errorf("engine handle = %d, want %d", got, first)
	}
	if svc.CallbackHandle() != first {
		t.Errorf("service handle = %d", svc.CallbackHandle())
	}
	started := 0
	for _, ev := range h.publisher.Events() {
		if ev.Name == events.TrackingStarted {
			started++
		}
	}
	if started != 1 {
		t.Errorf("tracking.started published %d times", started)
	}
}

func TestStartWithUnknownOrZeroHandle(t *testing.T) {
	h := newHarness(true)
	svc := h.service()
	ctx := context.Background()

	_ = svc.Handle(ctx, StartRequested{Handle: 0})
	_ = svc.Handle(ctx, StartRequested{Handle: 999})

	if h.host.Channel() != nil {
		t.Error("no context expected")
	}
	if f := svc.Failures(); f[FailureCallbackNotFound] != 1 {
		t.Errorf("failures = %v", f)
	}
}

func TestShowGeofenceAlertOverChannel(t *testing.T) {
	h := newHarness(true)
	handle := h.register(t, "main")
	svc := h.service()
	ctx := context.Background()
	_ = svc.Handle(ctx, Created{})
	_ = svc.Handle(ctx, StartRequested{Handle: handle})

	res := h.messenger.call(bridge.MethodShowGeofenceAlert, map[string]interface{}{
		"distance":              250.0,
		"message":               "u1 left the area",
		"is_admin_notification": true,
		"user_id":               "u1",
	})
	if res.Kind != bridge.ResultSuccess || res.Value != true {
		t.Fatalf("result = %+v", res)
	}
	n, ok := h.tray.Get(notify.AdminGeofenceAlertID)
	if !ok {
		t.Fatal("admin alert not posted")
	}
	if n.Tap.Extras[notify.ExtraViewUserLocation] != "true" || n.Tap.Extras[notify.ExtraUserID] != "u1" {
		t.Errorf("extras = %v", n.Tap.Extras)
	}

	res = h.messenger.call(bridge.MethodShowGeofenceAlert, map[string]interface{}{"message": "left", "is_admin_notification": false})
	if res.Kind != bridge.ResultSuccess {
		t.Fatalf("result = %+v", res)
	}
	n, _ = h.tray.Get(notify.GeofenceAlertID)
	if len(n.Tap.Extras) != 0 {
		t.Errorf("non-admin extras = %v", n.Tap.Extras)
	}
}

func TestHandleMethodCallResults(t *testing.T) {
	h := newHarness(true)
	svc := h.service()
	ctx := context.Background()

	tests := []struct {
		name     string
		call     bridge.MethodCall
		wantKind bridge.ResultKind
	}{
		{"unknown method", bridge.MethodCall{Method: "unknownMethod"}, bridge.ResultNotImplemented},
		{"missing arguments", bridge.MethodCall{Method: bridge.MethodShowGeofenceAlert}, bridge.ResultError},
		{"malformed arguments", bridge.MethodCall{Method: bridge.MethodShowGeofenceAlert, Arguments: []byte(`{"distance":"far"}`)}, bridge.ResultError},
		{"missing message", bridge.MethodCall{Method: bridge.MethodShowGeofenceAlert, Arguments: []byte(`{"distance":1}`)}, bridge.ResultError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := svc.HandleMethodCall(ctx, tt.call)
			if res.Kind != tt.wantKind {
				t.Fatalf("kind = %q, want %q", res.Kind, tt.wantKind)
			}
			if res.Kind == bridge.ResultError && res.Code != ErrorCodeNotification {
				t.Errorf("code = %q", res.Code)
			}
		})
	}
}

type panickingNotifier struct{ notify.Manager }

func (panickingNotifier) Notify(context.Context, notify.Notification) error {
	panic("notification service crashed")
}

func TestHandleMethodCallRecoversPanic(t *testing.T) {
	h := newHarness(true)
	svc := NewService(Deps{Host: h.host, Provider: h.provider, Notifier: panickingNotifier{h.tray}})

	args, _ := json.Marshal(notify.AlertRequest{Message: "boom"})
	res := svc.HandleMethodCall(context.Background(), bridge.MethodCall{Method: bridge.MethodShowGeofenceAlert, Arguments: args})
	if res.Kind != bridge.ResultError || res.Code != ErrorCodeNotification {
		t.Fatalf("result = %+v", res)
	}
	if svc.Failures()[FailureNotificationError] != 1 {
		t.Errorf("failures = %v", svc.Failures())
	}
}

func TestDestroyedRemovesSubscription(t *testing.T) {
	h := newHarness(true)
	handle := h.register(t, "main")
	svc := h.service()
	ctx := context.Background()
	_ = svc.Handle(ctx, Created{})
	_ = svc.Handle(ctx, StartRequested{Handle: handle})
	_ = svc.Handle(ctx, Destroyed{})

	if svc.State() != StateStopped {
		t.Errorf("state = %v", svc.State())
	}
	if n := h.provider.Ingest(ctx, location.Fix{Timestamp: 1}); n != 0 {
		t.Errorf("delivered %d fixes after destroy", n)
	}
	if _, ok := h.tray.Get(notify.ForegroundID); ok {
		t.Error("foreground notification still shown")
	}
	if err := svc.Handle(ctx, Created{}); err != ErrStopped {
		t.Errorf("event after stop err = %v", err)
	}
}

func TestSpoofingAlertThrottled(t *testing.T) {
	h := newHarness(true)
	svc := NewService(Deps{
		Host:     h.host,
		Provider: h.provider,
		Notifier: h.tray,
		Spoofing: location.NewSpoofingDetector(),
	})
	ctx := context.Background()
	base := int64(1700000000000)

	fixes := []location.Fix{
		{Latitude: 0, Timestamp: base},
		{Latitude: 0.009, Timestamp: base + 1000},
		{Latitude: 0.018, Timestamp: base + 2000},
		{Latitude: 0.2, Timestamp: base + 12_000},
	}
	for _, f := range fixes {
		svc.OnLocationFix(ctx, f)
	}

	spoofing := 0
	for _, n := range h.tray.Active() {
		if n.ChannelID == notify.SpoofingChannelID {
			spoofing++
		}
	}
	if spoofing != 2 {
		t.Errorf("spoofing notifications = %d, want 2", spoofing)
	}
}

func countSpoofing(tray *notify.Tray) int {
	n := 0
	for _, a := range tray.Active() {
		if a.ChannelID == notify.SpoofingChannelID {
			n++
		}
	}
	return n
}

func TestSpoofingThrottleWindow(t *testing.T) {
	base := int64(1700000000000)

	tests := []struct {
		name  string
		fixes []location.Fix
		want  int
	}{
		{
			name: "clean fix re-arms warning",
			fixes: []location.Fix{
				{Latitude: 0, Timestamp: base},
				{Latitude: 0.009, Timestamp: base + 1000},
				{Latitude: 0.009, Timestamp: base + 3000},
				{Latitude: 0.018, Timestamp: base + 4000},
			},
			want: 2,
		},
		{
			name: "exactly ten seconds is still throttled",
			fixes: []location.Fix{
				{Latitude: 0, Timestamp: base},
				{Latitude: 0.009, Timestamp: base + 1000},
				{Latitude: 0.1, Timestamp: base + 11_000},
				{Latitude: 0.2, Timestamp: base + 12_000},
			},
			want: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(true)
			svc := NewService(Deps{
				Host:     h.host,
				Provider: h.provider,
				Notifier: h.tray,
				Spoofing: location.NewSpoofingDetector(),
			})
			for _, f := range tt.fixes {
				svc.OnLocationFix(context.Background(), f)
			}
			if got := countSpoofing(h.tray); got != tt.want {
				t.Errorf("spoofing notifications = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestStateTextRoundTrip(t *testing.T) {
	for _, want := range []State{StateStarting, StateTracking, StateStopped} {
		data, err := json.Marshal(Status{State: want})
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		var got Status
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal(%s): %v", data, err)
		}
		if got.State != want {
			t.Errorf("state = %v, want %v", got.State, want)
		}
	}

	var s State
	if err := s.UnmarshalText([]byte("paused")); err == nil {
		t.Error("expected error for unknown state")
	}
}

func TestUnknownMethodCountedNotFailed(t *testing.T) {
	h := newHarness(true)
	svc := h.service()

	res := svc.HandleMethodCall(context.Background(), bridge.MethodCall{Method: "unknownMethod"})
	if res.Kind != bridge.ResultNotImplemented {
		t.Fatalf("kind = %q", res.Kind)
	}
	if got := svc.Failures()[FailureUnknownMethod]; got != 1 {
		t.Errorf("unknown_method count = %d, want 1", got)
	}
}

func TestSupervisorWithBootRestorer(t *testing.T) {
	h := newHarness(true)
	handle := h.register(t, "main")

	var states []State
	sup := NewSupervisor(h.service, func(s State) { states = append(states, s) })
	store := prefs.NewMemoryStore(prefs.TrackingPreference{Enabled: true, CallbackHandle: handle})

	started, err := boot.NewRestorer(store, sup).OnReceive(context.Background(), boot.ActionBootCompleted)
	if err != nil || !started {
		t.Fatalf("OnReceive = %v, %v", started, err)
	}
	if !sup.Tracking() || sup.Current().CallbackHandle() != handle {
		t.Fatalf("supervisor not tracking handle %d", handle)
	}

	svc := sup.Current()
	if err := sup.Start(context.Background(), handle); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sup.Current() != svc {
		t.Error("second start must reuse the running service")
	}

	stopped, err := sup.Stop(context.Background())
	if err != nil || !stopped {
		t.Fatalf("Stop = %v, %v", stopped, err)
	}
	if sup.Running() {
		t.Error("still running after Stop")
	}
	if stopped, _ := sup.Stop(context.Background()); stopped {
		t.Error("Stop on idle supervisor reported a running service")
	}
	if len(states) != 3 || states[0] != StateTracking || states[2] != StateStopped {
		t.Errorf("state notifications = %v", states)
	}
}

func TestRestartRebindsAlertHandler(t *testing.T) {
	h := newHarness(true)
	handle := h.register(t, "main")
	sup := NewSupervisor(h.service)
	ctx := context.Background()

	_ = sup.Start(ctx, handle)
	_, _ = sup.Stop(ctx)
	_ = sup.Start(ctx, handle)

	res := h.messenger.call(bridge.MethodShowGeofenceAlert, map[string]interface{}{"message": "again"})
	if res.Kind != bridge.ResultSuccess {
		t.Fatalf("result = %+v", res)
	}
	if sup.Current().Failures()[FailureNotificationError] != 0 {
		t.Error("alert handled by a stopped service")
	}
}
