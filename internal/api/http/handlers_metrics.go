package http

import (
	"github.com/GriffinCanCode/livepreview/backend/internal/domain/bridge"
	"github.com/GriffinCanCode/livepreview/backend/internal/infrastructure/monitoring"
)

// HandlerMetrics records what handlers observe about preview messages
type HandlerMetrics struct {
	metrics *monitoring.Metrics
}

// NewHandlerMetrics creates a metrics wrapper; metrics may be nil
func NewHandlerMetrics(metrics *monitoring.Metrics) *HandlerMetrics {
	return &HandlerMetrics{metrics: metrics}
}

// TrackMessage counts a decoded preview message by envelope type
func (hm *HandlerMetrics) TrackMessage(msg bridge.Received) {
	if hm == nil || hm.metrics == nil {
		return
	}
	hm.metrics.RecordSandboxMessage(msg.Type())
}
