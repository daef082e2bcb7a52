// Package tracker implements the background reporting process: a small state
// machine that keeps the foreground notification up, subscribes to location
// fixes, relays them to application logic and renders the alerts it asks for.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/SUF145/call-geo/common/logger"
	"github.com/SUF145/call-geo/internal/archive"
	"github.com/SUF145/call-geo/internal/bridge"
	"github.com/SUF145/call-geo/internal/events"
	"github.com/SUF145/call-geo/internal/location"
	"github.com/SUF145/call-geo/internal/notify"
)

const (
	ErrorCodeNotification = "NOTIFICATION_ERROR"

	spoofingAlertGapMillis = 10_000
)

var ErrStopped = errors.New("tracking service stopped")

type State int

const (
	StateStarting State = iota
	StateTracking
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateTracking:
		return "tracking"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "starting":
		*s = StateStarting
	case "tracking":
		*s = StateTracking
	case "stopped":
		*s = StateStopped
	default:
		return fmt.Errorf("unknown tracking state %q", text)
	}
	return nil
}

// Event drives the service. The host runtime adapts its callbacks to these.
type Event interface {
	event()
}

type (
	Created        struct{}
	StartRequested struct{ Handle int64 }
	Destroyed      struct{}
	LocationFix    struct{ Fix location.Fix }
	AlertRequested struct{ Request notify.AlertRequest }
)

func (Created) event()        {}
func (StartRequested) event() {}
func (Destroyed) event()      {}
func (LocationFix) event()    {}
func (AlertRequested) event() {}

// Deps are the collaborators of a Service. Publisher, Archive, Spoofing and
// Metrics are optional.
type Deps struct {
	Host      *bridge.Host
	Provider  location.Provider
	Notifier  notify.Manager
	Publisher events.Publisher
	Archive   archive.Archive
	Spoofing  *location.SpoofingDetector
	Metrics   *Metrics
	Request   location.Request
}

type Status struct {
	State          State             `json:"state"`
	CallbackHandle int64             `json:"callback_handle,omitempty"`
	Subscribed     bool              `json:"subscribed"`
	ChannelReady   bool              `json:"channel_ready"`
	Failures       map[Failure]int64 `json:"failures,omitempty"`
}

type Service struct {
	deps Deps

	mu           sync.Mutex
	state        State
	sub          *location.Subscription
	handle       int64
	failures     map[Failure]int64
	lastSpoofing int64

	// serializes relays so fixes leave in arrival order
	relayMu sync.Mutex
}

func NewService(deps Deps) *Service {
	if deps.Request == (location.Request{}) {
		deps.Request = location.DefaultRequest()
	}
	return &Service{
		deps:     deps,
		state:    StateStarting,
		failures: make(map[Failure]int64),
	}
}

// Handle dispatches one event.
func (s *Service) Handle(ctx context.Context, ev Event) error {
	if s.State() == StateStopped {
		return ErrStopped
	}
	switch e := ev.(type) {
	case Created:
		s.OnCreate(ctx)
	case StartRequested:
		s.OnStartCommand(ctx, e.Handle)
	case Destroyed:
		s.OnDestroy(ctx)
	case LocationFix:
		s.OnLocationFix(ctx, e.Fix)
	case AlertRequested:
		return s.ShowAlert(ctx, e.Request)
	default:
		return fmt.Errorf("unsupported event %T", ev)
	}
	return nil
}

// OnCreate posts the foreground notification and subscribes to fixes. When
// the subscription cannot be made the service stays in Starting.
func (s *Service) OnCreate(ctx context.Context) {
	s.deps.Metrics.setState(StateStarting)
	if err := s.deps.Notifier.CreateChannel(ctx, notify.TrackingChannel()); err != nil {
		logger.ErrorCtx(ctx, "Failed to create tracking channel", "error", err)
	}
	if err := s.deps.Notifier.Notify(ctx, notify.RenderForeground()); err != nil {
		s.fail(ctx, FailureNotificationError, "Failed to post foreground notification", "error", err)
	}

	sub, err := s.deps.Provider.RequestUpdates(ctx, s.deps.Request, s.onFixes)
	if err != nil {
		if errors.Is(err, location.ErrPermissionDenied) {
			s.fail(ctx, FailurePermissionDenied, "Lost location permission", "error", err)
		} else {
			s.fail(ctx, FailureSubscriptionFailed, "Failed to subscribe to location updates", "error", err)
		}
		return
	}

	s.mu.Lock()
	s.sub = &sub
	s.state = StateTracking
	s.mu.Unlock()
	s.deps.Metrics.setState(StateTracking)

	logger.InfoCtx(ctx, "Location updates requested",
		"subscription_id", sub.ID,
		"interval", s.deps.Request.Interval.String(),
		"min_interval", s.deps.Request.MinInterval.String(),
		"priority", s.deps.Request.Priority.String(),
	)
}

// OnStartCommand creates the execution context for handle if none exists.
// Later handles are ignored while the context lives.
func (s *Service) OnStartCommand(ctx context.Context, handle int64) {
	if handle == 0 {
		logger.DebugCtx(ctx, "Start command without callback handle")
		return
	}

	engine, created, err := s.deps.Host.EnsureEngine(ctx, handle, s.configureChannel)
	if err != nil {
		if errors.Is(err, bridge.ErrCallbackNotFound) {
			s.fail(ctx, FailureCallbackNotFound, "Callback handle not found", "callback_handle", handle)
		} else {
			s.fail(ctx, FailureCallbackNotFound, "Failed to create execution context", "callback_handle", handle, "error", err)
		}
		return
	}

	if !created {
		// the context outlives service instances; rebind its handler here
		s.configureChannel(engine.Channel())
	}

	s.mu.Lock()
	first := s.handle == 0
	if first {
		s.handle = engine.Handle
	}
	s.mu.Unlock()

	if first {
		s.publish(ctx, events.TrackingStarted, map[string]interface{}{
			"callback_handle": engine.Handle,
			"entry_point":     engine.EntryPoint,
		})
	}
}

func (s *Service) configureChannel(ch *bridge.Channel) {
	ch.SetMethodCallHandler(s.HandleMethodCall)
}

// OnDestroy removes the subscription and the foreground notification.
func (s *Service) OnDestroy(ctx context.Context) {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.state = StateStopped
	handle := s.handle
	s.mu.Unlock()
	s.deps.Metrics.setState(StateStopped)

	if sub != nil {
		if err := s.deps.Provider.RemoveUpdates(*sub); err != nil {
			logger.WarnCtx(ctx, "Failed to remove location updates", "subscription_id", sub.ID, "error", err)
		}
	}
	if err := s.deps.Notifier.Cancel(ctx, notify.ForegroundID); err != nil {
		logger.WarnCtx(ctx, "Failed to cancel foreground notification", "error", err)
	}

	logger.InfoCtx(ctx, "Tracking service destroyed", "callback_handle", handle)
	s.publish(ctx, events.TrackingStopped, map[string]interface{}{"callback_handle": handle})
}

func (s *Service) onFixes(ctx context.Context, fixes []location.Fix) {
	for _, f := range fixes {
		s.OnLocationFix(ctx, f)
	}
}

// OnLocationFix relays one fix. Without a channel the fix is dropped.
func (s *Service) OnLocationFix(ctx context.Context, fix location.Fix) {
	s.relayMu.Lock()
	defer s.relayMu.Unlock()

	var spoofing location.SpoofingResult
	if s.deps.Spoofing != nil {
		spoofing = s.deps.Spoofing.Check(fix)
		if spoofing.Detected {
			s.onSpoofing(ctx, fix, spoofing)
		} else {
			// a clean fix re-arms the warning
			s.mu.Lock()
			s.lastSpoofing = 0
			s.mu.Unlock()
		}
	}

	if s.deps.Archive != nil {
		rec := archive.Record{CallbackHandle: s.CallbackHandle(), Fix: fix, Spoofing: spoofing}
		if err := s.deps.Archive.Store(ctx, rec); err != nil {
			s.fail(ctx, FailureArchiveFailed, "Failed to archive location fix", "error", err)
		}
	}

	ch := s.deps.Host.Channel()
	if ch == nil {
		s.fail(ctx, FailureChannelUninitialized, "Background channel not initialized, dropping fix",
			"latitude", fix.Latitude,
			"longitude", fix.Longitude,
			"time", fix.Timestamp,
		)
		return
	}

	if err := ch.InvokeMethod(ctx, bridge.MethodLocationUpdate, fix.Payload()); err != nil {
		s.fail(ctx, FailureRelayFailed, "Error sending location to application logic", "error", err)
		return
	}
	s.deps.Metrics.relay()
	logger.DebugCtx(ctx, "Location update", "latitude", fix.Latitude, "longitude", fix.Longitude)
}

func (s *Service) onSpoofing(ctx context.Context, fix location.Fix, res location.SpoofingResult) {
	logger.WarnCtx(ctx, "Location spoofing suspected", "reasons", res.Reasons, "time", fix.Timestamp)

	s.mu.Lock()
	throttled := s.lastSpoofing != 0 && fix.Timestamp-s.lastSpoofing <= spoofingAlertGapMillis
	if !throttled {
		s.lastSpoofing = fix.Timestamp
	}
	s.mu.Unlock()
	if throttled {
		return
	}

	if err := s.deps.Notifier.CreateChannel(ctx, notify.SpoofingChannel()); err != nil {
		logger.ErrorCtx(ctx, "Failed to create spoofing channel", "error", err)
	}
	if err := s.deps.Notifier.Notify(ctx, notify.RenderSpoofing(res.Reasons)); err != nil {
		s.fail(ctx, FailureNotificationError, "No permission to show spoofing notification", "error", err)
		return
	}
	s.deps.Metrics.posted("spoofing")
	s.publish(ctx, events.SpoofingFlagged, map[string]interface{}{
		"callback_handle": s.CallbackHandle(),
		"reasons":         res.Reasons,
		"fix":             fix,
	})
}

// HandleMethodCall answers inbound calls on the background channel. It never
// panics.
func (s *Service) HandleMethodCall(ctx context.Context, call bridge.MethodCall) (res bridge.Result) {
	defer func() {
		if r := recover(); r != nil {
			s.fail(ctx, FailureNotificationError, "Panic while handling method call", "method", call.Method, "panic", r)
			res = bridge.Error(ErrorCodeNotification, fmt.Sprint(r), nil)
		}
	}()

	switch call.Method {
	case bridge.MethodShowGeofenceAlert:
		var req notify.AlertRequest
		if err := call.Decode(&req); err != nil {
			s.fail(ctx, FailureNotificationError, "Error showing geofence notification", "error", err)
			return bridge.Error(ErrorCodeNotification, err.Error(), nil)
		}
		logger.DebugCtx(ctx, "Showing geofence notification",
			"message", req.Message,
			"is_admin", req.IsAdminNotification,
			"user_id", req.UserID,
		)
		if err := s.ShowAlert(ctx, req); err != nil {
			return bridge.Error(ErrorCodeNotification, err.Error(), nil)
		}
		return bridge.Success(true)
	default:
		s.count(FailureUnknownMethod)
		logger.DebugCtx(ctx, "Unknown method on background channel", "method", call.Method)
		return bridge.NotImplemented()
	}
}

// ShowAlert renders and posts a geofence alert.
func (s *Service) ShowAlert(ctx context.Context, req notify.AlertRequest) error {
	n, err := notify.ShowAlert(ctx, s.deps.Notifier, req)
	if err != nil {
		s.fail(ctx, FailureNotificationError, "Error showing geofence notification", "error", err)
		return err
	}

	kind := "user"
	if req.IsAdminNotification {
		kind = "admin"
	}
	s.deps.Metrics.posted(kind)
	s.publish(ctx, events.AlertPosted, map[string]interface{}{
		"notification_id": n.ID,
		"title":           n.Title,
		"distance":        req.Distance,
		"is_admin":        req.IsAdminNotification,
		"user_id":         req.UserID,
	})
	return nil
}

func (s *Service) fail(ctx context.Context, f Failure, msg string, args ...any) {
	s.count(f)
	logger.ErrorCtx(ctx, msg, append(args, "failure", string(f))...)
}

func (s *Service) count(f Failure) {
	s.mu.Lock()
	s.failures[f]++
	s.mu.Unlock()
	s.deps.Metrics.failure(f)
}

func (s *Service) publish(ctx context.Context, name string, payload interface{}) {
	if s.deps.Publisher == nil {
		return
	}
	ev, err := events.New(name, payload)
	if err == nil {
		err = s.deps.Publisher.Publish(ctx, ev)
	}
	if err != nil {
		logger.WarnCtx(ctx, "Failed to publish event", "event_name", name, "error", err)
	}
}

func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Service) CallbackHandle() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Failures returns a snapshot of failure counts by category.
func (s *Service) Failures() map[Failure]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Failure]int64, len(s.failures))
	for k, v := range s.failures {
		out[k] = v
	}
	return out
}

func (s *Service) Status() Status {
	failures := s.Failures()
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:          s.state,
		CallbackHandle: s.handle,
		Subscribed:     s.sub != nil,
		ChannelReady:   s.deps.Host.Channel() != nil,
		Failures:       failures,
	}
}
