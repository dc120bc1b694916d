package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"portald/internal/domain"
)

type PrometheusMetrics struct {
	refreshDuration        *prometheus.HistogramVec
	portalRefreshFailures  *prometheus.CounterVec
	toolCallDuration       *prometheus.HistogramVec
	snapshotTools          prometheus.Gauge
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		refreshDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portald_refresh_duration_seconds",
				Help:    "Duration of registry refreshes in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"status"},
		),
		portalRefreshFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portald_portal_refresh_failures_total",
				Help: "Total number of per-portal refresh failures",
			},
			[]string{"portal"},
		),
		toolCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portald_tool_call_duration_seconds",
				Help:    "Duration of portal tool calls in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		),
		snapshotTools: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "portald_snapshot_tools",
				Help: "Number of tools in the current registry snapshot",
			},
		),
	}
}

func (m *PrometheusMetrics) ObserveRefresh(duration time.Duration, _, _ int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.refreshDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) ObservePortalRefreshFailure(portalID string) {
	m.portalRefreshFailures.WithLabelValues(portalID).Inc()
}

func (m *PrometheusMetrics) ObserveToolCall(outcome domain.CallOutcome, duration time.Duration) {
	m.toolCallDuration.WithLabelValues(string(outcome)).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) SetSnapshotTools(count int) {
	m.snapshotTools.Set(float64(count))
}

var _ domain.Metrics = (*PrometheusMetrics)(nil)
