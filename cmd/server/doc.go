// Package main is the entry point for the live preview server.
//
// The server assembles sandboxed preview documents from project sources,
// runs them headlessly on request and streams what the page posts back.
//
// The server provides:
//   - REST API for preview, text preview and snapshot assembly
//   - Headless runs in a pool of JavaScript sandboxes
//   - WebSocket streaming of page messages during a run
//   - Prometheus metrics, rate limiting and gzip
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Production mode
//	./server -port 8000 -libraries ./libraries
//
//	# Development mode (colored logs)
//	./server -dev -log-level debug
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
