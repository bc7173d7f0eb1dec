package metrics

import "github.com/prometheus/client_golang/prometheus"

// KioskMetrics exposes counters/histograms for the kiosk flows.
type KioskMetrics struct {
	authAttempts    *prometheus.CounterVec
	gatewayRequests *prometheus.CounterVec
	gatewayLatency  *prometheus.HistogramVec
	sessionEvents   *prometheus.CounterVec
	staleResponses  prometheus.Counter
	actionFailures  *prometheus.CounterVec
}

func NewKioskMetrics(reg prometheus.Registerer) *KioskMetrics {
	m := &KioskMetrics{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kiosk",
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Patient authentication submissions by outcome",
		}, []string{"outcome"}),
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kiosk",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Calls made against the clinic API",
		}, []string{"call", "status"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kiosk",
			Subsystem: "gateway",
			Name:      "request_latency_seconds",
			Help:      "Latency of clinic API calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"call"}),
		sessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kiosk",
			Subsystem: "session",
			Name:      "events_total",
			Help:      "Session store repairs and cross-tab changes",
		}, []string{"kind"}),
		staleResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kiosk",
			Subsystem: "calendar",
			Name:      "stale_responses_total",
			Help:      "Slot inventory responses discarded because a newer fetch was issued",
		}),
		actionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kiosk",
			Subsystem: "actions",
			Name:      "failures_total",
			Help:      "Best-effort actions that failed and were only logged",
		}, []string{"action"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.authAttempts, m.gatewayRequests, m.gatewayLatency, m.sessionEvents, m.staleResponses, m.actionFailures)
	return m
}

func (m *KioskMetrics) ObserveAuth(outcome string) {
	if m == nil {
		return
	}
	m.authAttempts.WithLabelValues(outcome).Inc()
}

func (m *KioskMetrics) ObserveGatewayCall(call, status string, seconds float64) {
	if m == nil {
		return
	}
	m.gatewayRequests.WithLabelValues(call, status).Inc()
	m.gatewayLatency.WithLabelValues(call).Observe(seconds)
}

func (m *KioskMetrics) ObserveSessionEvent(kind string) {
	if m == nil {
		return
	}
	m.sessionEvents.WithLabelValues(kind).Inc()
}

func (m *KioskMetrics) ObserveStaleResponse() {
	if m == nil {
		return
	}
	m.staleResponses.Inc()
}

func (m *KioskMetrics) ObserveActionFailure(action string) {
	if m == nil {
		return
	}
	m.actionFailures.WithLabelValues(action).Inc()
}
