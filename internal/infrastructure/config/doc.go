// Package config provides 12-factor configuration for the preview service.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags in cmd/server override environment values.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Logging: Log level, output format, optional rotating file
//   - RateLimit: Per-IP rate limiting
//   - Library: Manifest directory and remote asset fetch timeout
//   - Sandbox: Headless run timeout, pool size, call stack limit
//   - Preview: Loop budget and request source size limit
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST
//   - LOG_LEVEL, LOG_DEV, LOG_FILE, LOG_MAX_SIZE_MB
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - LIBRARY_DIR, LIBRARY_FETCH_TIMEOUT
//   - SANDBOX_TIMEOUT, SANDBOX_POOL_SIZE, SANDBOX_MAX_CALL_STACK
//   - LOOP_BUDGET, MAX_SOURCE_BYTES
package config
