package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
// All recording methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Recording metrics
	RecordingStartsTotal *prometheus.CounterVec
	RecordingStopsTotal  prometheus.Counter
	RecordingActive      prometheus.Gauge
	RecordedSeconds      prometheus.Histogram

	// Pipeline metrics
	PipelineRunsTotal     *prometheus.CounterVec
	PipelineStageDuration *prometheus.HistogramVec
	PipelineTempFiles     prometheus.Counter

	// Gateway metrics
	GatewayRequestsTotal *prometheus.CounterVec
	GatewayClients       prometheus.Gauge
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		// Recording metrics
		RecordingStartsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recording_starts_total",
				Help: "Total number of recording start attempts by outcome",
			},
			[]string{"outcome"},
		),
		RecordingStopsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "recording_stops_total",
				Help: "Total number of completed recordings",
			},
		),
		RecordingActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "recording_active",
				Help: "1 while a recording session is active",
			},
		),
		RecordedSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "recorded_seconds",
				Help:    "Active recording time per completed recording in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
			},
		),

		// Pipeline metrics
		PipelineRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_runs_total",
				Help: "Total number of concatenation runs by outcome",
			},
			[]string{"outcome"},
		),
		PipelineStageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_stage_duration_seconds",
				Help:    "Duration of transcoder invocations in seconds by stage and status",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage", "status"},
		),
		PipelineTempFiles: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pipeline_temp_files_removed_total",
				Help: "Total number of scratch files removed by pipeline cleanup",
			},
		),

		// Gateway metrics
		GatewayRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_requests_total",
				Help: "Total number of gateway RPC requests by method and status",
			},
			[]string{"method", "status"},
		),
		GatewayClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_clients",
				Help: "Number of connected gateway clients",
			},
		),
	}

	// Register all metrics
	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.RecordingStartsTotal)
	m.registry.MustRegister(m.RecordingStopsTotal)
	m.registry.MustRegister(m.RecordingActive)
	m.registry.MustRegister(m.RecordedSeconds)

	m.registry.MustRegister(m.PipelineRunsTotal)
	m.registry.MustRegister(m.PipelineStageDuration)
	m.registry.MustRegister(m.PipelineTempFiles)

	m.registry.MustRegister(m.GatewayRequestsTotal)
	m.registry.MustRegister(m.GatewayClients)
}

// RecordStart records a start attempt. outcome is "ok" or an error code.
func (m *Metrics) RecordStart(outcome string) {
	if m == nil {
		return
	}
	m.RecordingStartsTotal.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.RecordingActive.Set(1)
	}
}

// RecordStop records a completed recording
func (m *Metrics) RecordStop(seconds float64) {
	if m == nil {
		return
	}
	m.RecordingStopsTotal.Inc()
	m.RecordingActive.Set(0)
	m.RecordedSeconds.Observe(seconds)
}

// RecordPipelineRun records a finished pipeline run. outcome is "ok" or a failure reason kind.
func (m *Metrics) RecordPipelineRun(outcome string) {
	if m == nil {
		return
	}
	m.PipelineRunsTotal.WithLabelValues(outcome).Inc()
}

// RecordPipelineStage records one transcoder invocation
func (m *Metrics) RecordPipelineStage(stage string, duration time.Duration, ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.PipelineStageDuration.WithLabelValues(stage, status).Observe(duration.Seconds())
}

// RecordTempFilesRemoved records scratch files removed by cleanup
func (m *Metrics) RecordTempFilesRemoved(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PipelineTempFiles.Add(float64(n))
}

// RecordGatewayRequest records one RPC request
func (m *Metrics) RecordGatewayRequest(method string, ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.GatewayRequestsTotal.WithLabelValues(method, status).Inc()
}

// SetGatewayClients sets the connected client gauge
func (m *Metrics) SetGatewayClients(n int) {
	if m == nil {
		return
	}
	m.GatewayClients.Set(float64(n))
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
