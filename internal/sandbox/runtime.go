package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/livepreview/backend/internal/domain/bridge"
	"github.com/GriffinCanCode/livepreview/backend/internal/domain/preview"
	"github.com/GriffinCanCode/livepreview/backend/internal/infrastructure/monitoring"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// Runtime wraps a goja VM with security controls. It runs one page at a
// time; every run after the first starts from a fresh VM.
type Runtime struct {
	vm      *goja.Runtime
	config  Config
	logger  *zap.Logger
	metrics *monitoring.Metrics
	mu      sync.Mutex
	used    bool
	closed  bool
}

// Option configures a Runtime
type Option func(*Runtime)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Runtime) {
		if l != nil {
			r.logger = l.Named("sandbox")
		}
	}
}

// WithMetrics records run metrics
func WithMetrics(m *monitoring.Metrics) Option {
	return func(r *Runtime) {
		r.metrics = m
	}
}

// New creates a new sandboxed runtime
func New(config Config, opts ...Option) (*Runtime, error) {
	defaults := DefaultConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxTimerRuns <= 0 {
		config.MaxTimerRuns = defaults.MaxTimerRuns
	}

	r := &Runtime{
		config: config,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.reset(); err != nil {
		return nil, err
	}
	return r, nil
}

// Execute runs the scripts of doc in document order, then any queued
// timers. Uncaught script errors are reported to window.onerror and
// recorded; they do not stop the run. b may be nil.
//
// When the run is cut short by ctx or the configured timeout the partial
// result is returned together with an error wrapping ErrInterrupted.
func (r *Runtime) Execute(ctx context.Context, doc *preview.Document, b Bridge) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if r.used {
		if err := r.reset(); err != nil {
			return nil, err
		}
	}
	r.used = true

	start := time.Now()
	dom, err := NewDOM(doc.String())
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	vm := r.vm
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-runCtx.Done():
			vm.Interrupt(runCtx.Err())
		case <-done:
		}
	}()

	p := newPage(runCtx, vm, dom, b, r.config, r.logger)
	if err := p.install(); err != nil {
		return nil, fmt.Errorf("install globals: %w", err)
	}

	scripts := doc.Scripts()
	for i, s := range scripts {
		if p.interrupted || runCtx.Err() != nil {
			p.interrupted = true
			break
		}
		last := i == len(scripts)-1
		p.runScript(i, s, last && s.Src == "" && strings.HasPrefix(s.Text, "\n"+bridge.Delimiter+"\n"))
	}
	p.flushTimers()

	result := p.result()
	result.Duration = time.Since(start)
	if r.metrics != nil {
		r.metrics.RecordSandboxRun(result.Status(), result.Duration)
	}

	if result.Interrupted {
		r.logger.Info("sandbox run interrupted",
			zap.Duration("duration", result.Duration),
			zap.Int("scripts", len(scripts)),
			zap.Error(context.Cause(runCtx)))
		return result, fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(runCtx))
	}
	if len(result.Errors) > 0 {
		r.logger.Info("page raised uncaught errors",
			zap.Int("errors", len(result.Errors)),
			zap.String("first", result.Errors[0].Name+": "+result.Errors[0].Message))
	}
	return result, nil
}

// reset replaces the VM with a fresh one
func (r *Runtime) reset() error {
	vm := goja.New()
	if r.config.MaxCallStackSize > 0 {
		vm.SetMaxCallStackSize(r.config.MaxCallStackSize)
	}
	r.vm = vm
	r.used = false
	return nil
}

// Reset clears the runtime state
func (r *Runtime) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	return r.reset()
}

// Close releases resources
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.vm = nil
	return nil
}
