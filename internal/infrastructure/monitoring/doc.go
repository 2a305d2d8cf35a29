/*
Package monitoring provides Prometheus metrics for the preview service.

# Overview

Metrics cover HTTP requests, preview assemblies by kind, loop transform
failures, library attachment per registry, headless sandbox runs and the
messages they post, and WebSocket connections.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer()
	doc := assembler.GeneratePreview(p, opts)
	metrics.RecordAssembly("document", timer.Elapsed())

Tests use NewRegistryMetrics so each collector set lives on its own registry.
*/
package monitoring
