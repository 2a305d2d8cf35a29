package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/livepreview/backend/internal/api/http"
	"github.com/GriffinCanCode/livepreview/backend/internal/api/middleware"
	"github.com/GriffinCanCode/livepreview/backend/internal/api/ws"
	"github.com/GriffinCanCode/livepreview/backend/internal/domain/library"
	"github.com/GriffinCanCode/livepreview/backend/internal/domain/loopguard"
	"github.com/GriffinCanCode/livepreview/backend/internal/domain/preview"
	"github.com/GriffinCanCode/livepreview/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/livepreview/backend/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/livepreview/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/livepreview/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/livepreview/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/livepreview/backend/internal/sandbox"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router    *gin.Engine
	handler   http.Handler
	assembler *preview.Assembler
	pool      *sandbox.Pool
	tracer    *tracing.Tracer
	logger    *logging.Logger
	config    *config.Config
	metrics   *monitoring.Metrics
}

// Option customizes server construction
type Option func(*options)

type options struct {
	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// WithLogger uses logger instead of one built from the config
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics uses metrics instead of registering on the default registry
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// NewServer creates a new server instance. Library manifests are loaded
// here; any manifest error fails startup.
func NewServer(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			Development: cfg.Logging.Development,
			File:        cfg.Logging.File,
			MaxSizeMB:   cfg.Logging.MaxSizeMB,
			MaxBackups:  3,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	logger.Info("Initializing Live Preview Server",
		zap.String("port", cfg.Server.Port),
		zap.String("library_dir", cfg.Library.Dir),
		zap.Int("sandbox_pool", cfg.Sandbox.PoolSize),
	)

	metrics := o.metrics
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}

	tracer := tracing.New("livepreview", logger.Logger)

	fetchCfg := httpclient.DefaultConfig()
	if cfg.Library.FetchTimeout > 0 {
		fetchCfg.Timeout = cfg.Library.FetchTimeout
	}
	fetcher := httpclient.New(fetchCfg)

	registries, err := library.NewLoader(fetcher, logger.Logger).Load(ctx, cfg.Library.Dir)
	if err != nil {
		tracer.Close()
		return nil, fmt.Errorf("failed to load libraries: %w", err)
	}
	metrics.SetRegistryLibraries(library.UserRegistryName, registries.User.Len())
	metrics.SetRegistryLibraries(library.FrameRegistryName, registries.Frame.Len())
	logger.Info("Libraries loaded",
		zap.Strings("user", registries.User.Keys()),
		zap.Strings("frame", registries.Frame.Keys()),
	)

	assembler := preview.NewAssembler(registries,
		preview.WithTransform(loopguard.New(cfg.Preview.LoopBudget)),
		preview.WithLogger(logger.Logger),
		preview.WithMetrics(metrics),
	)

	sandboxCfg := sandbox.DefaultConfig()
	if cfg.Sandbox.Timeout > 0 {
		sandboxCfg.Timeout = cfg.Sandbox.Timeout
	}
	if cfg.Sandbox.MaxCallStack > 0 {
		sandboxCfg.MaxCallStackSize = cfg.Sandbox.MaxCallStack
	}
	pool, err := sandbox.NewPool(sandboxCfg, cfg.Sandbox.PoolSize,
		sandbox.WithLogger(logger.Logger),
		sandbox.WithMetrics(metrics),
	)
	if err != nil {
		tracer.Close()
		return nil, fmt.Errorf("failed to create sandbox pool: %w", err)
	}

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rateCfg := middleware.DefaultRateLimitConfig()
		rateCfg.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rateCfg.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rateCfg))
	}

	handlers := apihttp.NewHandlers(assembler, pool, apihttp.Limits{
		MaxSourceBytes: cfg.Preview.MaxSourceBytes,
		RunTimeout:     sandboxCfg.Timeout,
	}, metrics, logger.Logger)
	wsHandler := ws.NewHandler(assembler, pool, metrics, logger.Logger,
		ws.WithMaxSourceBytes(cfg.Preview.MaxSourceBytes),
	)
	aggregator := apihttp.NewMetricsAggregator(metrics, pool, registries, fetcher)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/libraries", handlers.ListLibraries)

	previews := router.Group("/preview")
	previews.POST("", handlers.Preview)
	previews.POST("/text", handlers.PreviewText)
	previews.POST("/snapshot", handlers.PreviewSnapshot)
	previews.POST("/run", handlers.Run)
	previews.POST("/messages", handlers.ReceiveMessages)

	router.GET("/stream", wsHandler.HandleConnection)

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/metrics/json", aggregator.GetAggregatedMetrics)

	handler, err := middleware.Gzip(router, middleware.DefaultGzipMinSize)
	if err != nil {
		_ = pool.Close()
		tracer.Close()
		return nil, err
	}

	logger.Info("Server initialized successfully")

	return &Server{
		router:    router,
		handler:   handler,
		assembler: assembler,
		pool:      pool,
		tracer:    tracer,
		logger:    logger,
		config:    cfg,
		metrics:   metrics,
	}, nil
}

// Handler returns the root handler with compression applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Assembler returns the preview assembler
func (s *Server) Assembler() *preview.Assembler {
	return s.assembler
}

// Run serves on the configured address until ctx is canceled, then shuts
// down gracefully
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases the sandbox pool, tracer and logger
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	var errs []error
	if err := s.pool.Close(); err != nil {
		s.logger.Error("Failed to close sandbox pool", zap.Error(err))
		errs = append(errs, fmt.Errorf("failed to close sandbox pool: %w", err))
	}
	s.tracer.Close()

	if err := s.logger.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
