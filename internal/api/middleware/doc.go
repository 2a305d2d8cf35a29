// Package middleware provides the HTTP middleware of the preview service.
//
//   - CORS: editor origins may request previews and read ETag / trace headers
//   - RateLimit: per-IP token buckets, idle clients swept after IdleTTL
//   - GlobalRateLimit: one bucket for the whole server
//   - Gzip: response compression at the http.Handler level (WebSocket
//     upgrades bypass it)
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
//	handler, err := middleware.Gzip(router, middleware.DefaultGzipMinSize)
package middleware
