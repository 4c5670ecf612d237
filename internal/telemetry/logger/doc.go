// Package logger provides structured logging for the ddbs middle-tier.
//
// It wraps the standard library log/slog to provide JSON structured
// logging shared by the control node and the backend node:
//
//   - logger.go: slog-backed logger and level configuration
//   - context.go: context-carried logger plus correlation IDs
//
// Features:
//
//   - JSON and text output formats
//   - Dynamic log level adjustment
//   - Context propagation for request/operation correlation
package logger
