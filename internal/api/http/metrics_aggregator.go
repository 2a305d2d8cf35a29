package http

import (
	"net/http"
	"time"

	"github.com/GriffinCanCode/livepreview/backend/internal/domain/library"
	"github.com/GriffinCanCode/livepreview/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/livepreview/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/livepreview/backend/internal/sandbox"
	"github.com/gin-gonic/gin"
)

// BreakerReporter exposes the state of the remote asset circuit breaker.
// *httpclient.Client satisfies it.
type BreakerReporter interface {
	BreakerState() resilience.State
}

// MetricsAggregator gathers service counters, pool state and registry sizes
// into one JSON document
type MetricsAggregator struct {
	metrics    *monitoring.Metrics
	runner     Runner
	registries library.Registries
	breaker    BreakerReporter
}

// NewMetricsAggregator creates an aggregator. runner and breaker may be nil.
func NewMetricsAggregator(metrics *monitoring.Metrics, runner Runner, registries library.Registries, breaker BreakerReporter) *MetricsAggregator {
	return &MetricsAggregator{
		metrics:    metrics,
		runner:     runner,
		registries: registries,
		breaker:    breaker,
	}
}

// MetricsSnapshot represents a snapshot of all service metrics
type MetricsSnapshot struct {
	Timestamp    time.Time           `json:"timestamp"`
	Service      monitoring.Snapshot `json:"service"`
	Sandbox      *sandbox.PoolStats  `json:"sandbox,omitempty"`
	Libraries    map[string]int      `json:"libraries"`
	RemoteAssets string              `json:"remote_assets,omitempty"`
	Summary      MetricsSummary      `json:"summary"`
}

// MetricsSummary provides high-level metrics
type MetricsSummary struct {
	TotalRequests      int64   `json:"total_requests"`
	AverageLatencyMs   float64 `json:"average_latency_ms"`
	ErrorRate          float64 `json:"error_rate"`
	TransformFailRate  float64 `json:"transform_failure_rate"`
	ActiveConnections  int64   `json:"active_connections"`
	SandboxUtilization float64 `json:"sandbox_utilization"`
	UptimeSeconds      float64 `json:"uptime_seconds"`
}

// Snapshot collects the current values
func (ma *MetricsAggregator) Snapshot() MetricsSnapshot {
	s := ma.metrics.Snapshot()
	snap := MetricsSnapshot{
		Timestamp: time.Now(),
		Service:   s,
		Libraries: map[string]int{
			library.UserRegistryName:  registryLen(ma.registries.User),
			library.FrameRegistryName: registryLen(ma.registries.Frame),
		},
		Summary: MetricsSummary{
			TotalRequests:     s.TotalRequests,
			AverageLatencyMs:  s.AvgLatencyMs,
			ActiveConnections: s.ActiveConnections,
			UptimeSeconds:     s.UptimeSeconds,
		},
	}
	if s.TotalRequests > 0 {
		snap.Summary.ErrorRate = float64(s.TotalErrors) / float64(s.TotalRequests)
	}
	if s.Assemblies > 0 {
		snap.Summary.TransformFailRate = float64(s.TransformFailures) / float64(s.Assemblies)
	}
	if ma.runner != nil {
		stats := ma.runner.Stats()
		snap.Sandbox = &stats
		if stats.Size > 0 {
			snap.Summary.SandboxUtilization = float64(stats.InUse) / float64(stats.Size)
		}
	}
	if ma.breaker != nil {
		snap.RemoteAssets = ma.breaker.BreakerState().String()
	}
	return snap
}

// GetAggregatedMetrics serves the snapshot
func (ma *MetricsAggregator) GetAggregatedMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, ma.Snapshot())
}
