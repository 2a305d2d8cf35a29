package http

import (
	"context"
	"net/http"
	"time"

	"github.com/GriffinCanCode/livepreview/backend/internal/domain/library"
	"github.com/GriffinCanCode/livepreview/backend/internal/domain/preview"
	"github.com/GriffinCanCode/livepreview/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/livepreview/backend/internal/sandbox"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Runner executes assembled documents headlessly. *sandbox.Pool satisfies it.
type Runner interface {
	Execute(ctx context.Context, doc *preview.Document, b sandbox.Bridge) (*sandbox.Result, error)
	Stats() sandbox.PoolStats
}

// Limits bounds request handling
type Limits struct {
	// MaxSourceBytes caps the combined size of a project's sources
	MaxSourceBytes int
	// RunTimeout caps a client supplied timeout_ms
	RunTimeout time.Duration
}

// Handlers contains all HTTP handlers
type Handlers struct {
	assembler *preview.Assembler
	runner    Runner
	limits    Limits
	metrics   *HandlerMetrics
	logger    *zap.Logger
}

// NewHandlers creates a new handler set. runner may be nil, in which case
// run requests answer 503.
func NewHandlers(
	assembler *preview.Assembler,
	runner Runner,
	limits Limits,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		assembler: assembler,
		runner:    runner,
		limits:    limits,
		metrics:   NewHandlerMetrics(metrics),
		logger:    logger.Named("api"),
	}
}

// Root handles the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "Live Preview Service (Go)",
		"version": "0.3.0",
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	regs := h.assembler.Registries()
	body := gin.H{
		"status": "healthy",
		"libraries": gin.H{
			library.UserRegistryName:  registryLen(regs.User),
			library.FrameRegistryName: registryLen(regs.Frame),
		},
		"sandbox": gin.H{"enabled": h.runner != nil},
	}
	if h.runner != nil {
		stats := h.runner.Stats()
		body["sandbox"] = gin.H{"enabled": true, "pool": stats}
		if stats.Closed {
			body["status"] = "degraded"
		}
	}
	c.JSON(http.StatusOK, body)
}

// ListLibraries lists both registries with per-asset digests
func (h *Handlers) ListLibraries(c *gin.Context) {
	regs := h.assembler.Registries()
	c.JSON(http.StatusOK, gin.H{
		library.UserRegistryName:  describe(regs.User),
		library.FrameRegistryName: describe(regs.Frame),
	})
}

func registryLen(r *library.Registry) int {
	if r == nil {
		return 0
	}
	return r.Len()
}

func describe(r *library.Registry) []library.Summary {
	if r == nil {
		return []library.Summary{}
	}
	return r.Describe()
}
