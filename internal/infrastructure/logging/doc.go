// Package logging provides structured logging using uber/zap.
//
// Two output modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// When Config.File is set, entries are also written as JSON to a file rotated
// by lumberjack.
//
// Components receive a *zap.Logger and name themselves:
//
//	logger := logging.NewDefault()
//	log := logger.Named("preview")
//	log.Warn("loop transform failed", zap.Error(err))
package logging
