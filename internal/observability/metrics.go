package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for the attendance and alert paths.
type Metrics struct {
	CheckEvents       *prometheus.CounterVec
	AlertsGenerated   *prometheus.CounterVec
	ChannelDeliveries *prometheus.CounterVec
	DispatchPasses    *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	RequestErrors     *prometheus.CounterVec
}

// NewMetrics registers collectors on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CheckEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "check_events_total",
			Help:      "Check-in/check-out events by phase and resulting status.",
		}, []string{"phase", "status"}),
		AlertsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "alerts_generated_total",
			Help:      "Alerts generated by type and severity.",
		}, []string{"type", "severity"}),
		ChannelDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "channel_deliveries_total",
			Help:      "Notification channel attempts by channel and outcome.",
		}, []string{"channel", "outcome"}),
		DispatchPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "dispatch_passes_total",
			Help:      "Dispatch passes by outcome.",
		}, []string{"outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "attendance",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method", "status"}),
		RequestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "http_request_errors_total",
			Help:      "HTTP requests rejected with a domain error code.",
		}, []string{"path", "method", "code"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.CheckEvents,
			m.AlertsGenerated,
			m.ChannelDeliveries,
			m.DispatchPasses,
			m.RequestDuration,
			m.RequestErrors,
		)
	}
	return m
}

// RecordRequest observes one completed HTTP request.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(path, method, strconv.Itoa(status)).Observe(duration.Seconds())
}

// RecordError counts one domain-error response.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.RequestErrors.WithLabelValues(path, method, code).Inc()
}

// RecordCheckEvent counts one attendance event outcome.
func (m *Metrics) RecordCheckEvent(phase, status string) {
	if m == nil {
		return
	}
	m.CheckEvents.WithLabelValues(phase, status).Inc()
}

// RecordAlert counts one generated alert.
func (m *Metrics) RecordAlert(alertType, severity string) {
	if m == nil {
		return
	}
	m.AlertsGenerated.WithLabelValues(alertType, severity).Inc()
}

// RecordChannel counts one channel attempt outcome.
func (m *Metrics) RecordChannel(channel string, delivered bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if delivered {
		outcome = "success"
	}
	m.ChannelDeliveries.WithLabelValues(channel, outcome).Inc()
}

// RecordDispatchPass counts one dispatch pass outcome.
func (m *Metrics) RecordDispatchPass(outcome string) {
	if m == nil {
		return
	}
	m.DispatchPasses.WithLabelValues(outcome).Inc()
}
