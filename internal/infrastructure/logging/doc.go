// Package logging provides structured logging for Haunt Core.
//
// It wraps log/slog so every component logs with the same default fields
// (service, version) and the configured level filter.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("controller").Info("phase changed", "phase", "cooldown")
//
// Components that accept a logger take a small interface with
// Debug/Info/Warn/Error methods, which *Logger satisfies.
package logging
