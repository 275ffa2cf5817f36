package metrics

import "github.com/prometheus/client_golang/prometheus"

// ModerationMetrics exposes counters/histograms for the moderation pipeline.
type ModerationMetrics struct {
	classifications *prometheus.CounterVec
	oracleLatency   *prometheus.HistogramVec
	chatlogFailures *prometheus.CounterVec
	chatlogDropped  prometheus.Counter
	alerts          *prometheus.CounterVec
	activeSessions  prometheus.Gauge
}

func NewModerationMetrics(reg prometheus.Registerer) *ModerationMetrics {
	m := &ModerationMetrics{
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatmod",
			Subsystem: "moderation",
			Name:      "classifications_total",
			Help:      "Classified chat messages by outcome",
		}, []string{"outcome"}),
		oracleLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chatmod",
			Subsystem: "moderation",
			Name:      "oracle_latency_seconds",
			Help:      "Latency of language model classification calls",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"provider"}),
		chatlogFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatmod",
			Subsystem: "chatlog",
			Name:      "write_failures_total",
			Help:      "Chat log entries that could not be persisted",
		}, []string{"backend"}),
		chatlogDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatmod",
			Subsystem: "chatlog",
			Name:      "dropped_total",
			Help:      "Chat log entries dropped because the write buffer was full",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatmod",
			Subsystem: "alerts",
			Name:      "published_total",
			Help:      "Moderation alerts by delivery status",
		}, []string{"status"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatmod",
			Subsystem: "moderation",
			Name:      "active_sessions",
			Help:      "Conversations with an in-memory context window",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.classifications, m.oracleLatency, m.chatlogFailures, m.chatlogDropped, m.alerts, m.activeSessions)
	return m
}

func (m *ModerationMetrics) ObserveClassification(outcome string) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(outcome).Inc()
}

func (m *ModerationMetrics) ObserveOracleLatency(provider string, seconds float64) {
	if m == nil {
		return
	}
	m.oracleLatency.WithLabelValues(provider).Observe(seconds)
}

func (m *ModerationMetrics) ObserveChatlogFailure(backend string) {
	if m == nil {
		return
	}
	m.chatlogFailures.WithLabelValues(backend).Inc()
}

func (m *ModerationMetrics) ObserveChatlogDropped() {
	if m == nil {
		return
	}
	m.chatlogDropped.Inc()
}

func (m *ModerationMetrics) ObserveAlert(status string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(status).Inc()
}

func (m *ModerationMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}
