package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Preview metrics
	Assemblies        *prometheus.CounterVec
	AssemblyDuration  *prometheus.HistogramVec
	TransformFailures prometheus.Counter
	LibrariesAttached *prometheus.CounterVec
	RegistryLibraries *prometheus.GaugeVec

	// Sandbox metrics
	SandboxRuns     *prometheus.CounterVec
	SandboxDuration prometheus.Histogram
	SandboxMessages *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	gatherer  prometheus.Gatherer
	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the JSON health endpoint
type Snapshot struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalErrors       int64   `json:"total_errors"`
	Assemblies        int64   `json:"assemblies"`
	TransformFailures int64   `json:"transform_failures"`
	SandboxRuns       int64   `json:"sandbox_runs"`
	ActiveConnections int64   `json:"active_connections"`
	AvgLatencyMs      float64 `json:"avg_latency_ms"`
	UptimeSeconds     float64 `json:"uptime_seconds"`

	totalDuration float64
}

// NewMetrics registers collectors on the default Prometheus registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewRegistryMetrics registers collectors on a private registry
func NewRegistryMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return NewMetricsWith(reg, reg)
}

// NewMetricsWith registers collectors on reg and serves them from gatherer
func NewMetricsWith(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		gatherer:  gatherer,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "preview_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "preview_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "preview_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "preview_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		Assemblies: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "preview_assemblies_total",
				Help: "Total number of preview assemblies by kind",
			},
			[]string{"kind"},
		),
		AssemblyDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "preview_assembly_duration_seconds",
				Help:    "Preview assembly duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
			},
			[]string{"kind"},
		),
		TransformFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "preview_transform_failures_total",
				Help: "User scripts dropped because loop bounding failed",
			},
		),
		LibrariesAttached: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "preview_libraries_attached_total",
				Help: "Libraries attached to previews by registry",
			},
			[]string{"registry"},
		),
		RegistryLibraries: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "preview_registry_libraries",
				Help: "Number of libraries loaded per registry",
			},
			[]string{"registry"},
		),

		SandboxRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_runs_total",
				Help: "Headless sandbox runs by outcome",
			},
			[]string{"status"},
		),
		SandboxDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sandbox_run_duration_seconds",
				Help:    "Headless sandbox run duration in seconds",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
			},
		),
		SandboxMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_messages_total",
				Help: "Messages posted from sandboxed pages to the host",
			},
			[]string{"type"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "preview_uptime_seconds",
			Help: "Service uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Handler serves the Prometheus exposition format for these metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.totalDuration += duration.Seconds()
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordAssembly records one preview assembly of the given kind
// ("document", "text", "snapshot")
func (m *Metrics) RecordAssembly(kind string, duration time.Duration) {
	m.Assemblies.WithLabelValues(kind).Inc()
	m.AssemblyDuration.WithLabelValues(kind).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.Assemblies++
	m.mu.Unlock()
}

// RecordTransformFailure records a user script dropped by the loop transform
func (m *Metrics) RecordTransformFailure() {
	m.TransformFailures.Inc()

	m.mu.Lock()
	m.snapshot.TransformFailures++
	m.mu.Unlock()
}

// RecordLibraryAttached records a library attached from registry
func (m *Metrics) RecordLibraryAttached(registry string) {
	m.LibrariesAttached.WithLabelValues(registry).Inc()
}

// SetRegistryLibraries sets the number of libraries loaded in registry
func (m *Metrics) SetRegistryLibraries(registry string, count int) {
	m.RegistryLibraries.WithLabelValues(registry).Set(float64(count))
}

// RecordSandboxRun records a sandbox run outcome ("ok", "timeout", "error")
func (m *Metrics) RecordSandboxRun(status string, duration time.Duration) {
	m.SandboxRuns.WithLabelValues(status).Inc()
	m.SandboxDuration.Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.SandboxRuns++
	m.mu.Unlock()
}

// RecordSandboxMessage records a message posted by a sandboxed page
func (m *Metrics) RecordSandboxMessage(msgType string) {
	m.SandboxMessages.WithLabelValues(msgType).Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// Snapshot returns a copy of the current counters
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	if s.TotalRequests > 0 {
		s.AvgLatencyMs = s.totalDuration / float64(s.TotalRequests) * 1000
	}
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
