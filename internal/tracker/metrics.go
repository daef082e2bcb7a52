package tracker

import "github.com/prometheus/client_golang/prometheus"

// Failure is a category of non-fatal failure. Every failure degrades to
// skipping one event.
type Failure string

const (
	FailurePermissionDenied     Failure = "permission_denied"
	FailureSubscriptionFailed   Failure = "subscription_failed"
	FailureChannelUninitialized Failure = "channel_uninitialized"
	FailureCallbackNotFound     Failure = "callback_not_found"
	FailureRelayFailed          Failure = "relay_failed"
	FailureNotificationError    Failure = "notification_error"
	FailureUnknownMethod        Failure = "unknown_method"
	FailureArchiveFailed        Failure = "archive_failed"
)

// Metrics are shared by every service instance of one process.
type Metrics struct {
	failures *prometheus.CounterVec
	relayed  prometheus.Counter
	alerts   *prometheus.CounterVec
	state    prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_failures_total",
			Help: "Non-fatal tracker failures by category",
		}, []string{"category"}),
		relayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_fixes_relayed_total",
			Help: "Location fixes relayed to application logic",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_notifications_posted_total",
			Help: "Notifications posted by kind",
		}, []string{"kind"}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_state",
			Help: "Current tracker state (0 starting, 1 tracking, 2 stopped)",
		}),
	}
	reg.MustRegister(m.failures, m.relayed, m.alerts, m.state)
	return m
}

func (m *Metrics) failure(f Failure) {
	if m != nil {
		m.failures.WithLabelValues(string(f)).Inc()
	}
}

func (m *Metrics) relay() {
	if m != nil {
		m.relayed.Inc()
	}
}

func (m *Metrics) posted(kind string) {
	if m != nil {
		m.alerts.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) setState(s State) {
	if m != nil {
		m.state.Set(float64(s))
	}
}
