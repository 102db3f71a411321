// Package logging provides a structured logging system for dvbox with unified
// log handling across the CLI and an embedding desktop shell.
//
// This package implements a logging system built on Go's standard slog package,
// providing consistent logging behavior with structured output and level filtering.
//
// # Architecture
//
// The logging system is built around these core concepts:
//
// ## Log Levels
//   - **Debug**: Detailed information for debugging and development
//   - **Info**: General informational messages about application operation
//   - **Warn**: Warning messages that indicate potential issues
//   - **Error**: Error messages for failures and exceptional conditions
//
// ## Structured Logging
// All log entries include:
//   - Timestamp with nanosecond precision
//   - Log level (Debug, Info, Warn, Error)
//   - Subsystem identifier for categorization
//   - Message content with optional formatting
//   - Optional error information
//
// # Usage Examples
//
//	import "dvbox/pkg/logging"
//
//	// Initialize with Info level logging to stderr
//	logging.Init(logging.LevelInfo, os.Stderr)
//
//	// Log messages
//	logging.Info("Connections", "Loaded %d connections", count)
//	logging.Debug("HTTP", "GET %s", url)
//	logging.Error("Auth", err, "Interactive sign-in failed")
//
// When dvbox runs embedded in the desktop shell, InitForShell returns a
// channel of Entry values that the shell renders in its own log pane:
//
//	entries := logging.InitForShell(0)
//	go shell.ConsumeLogs(entries)
//
// # Subsystem Organization
//
// Logs are organized by subsystem to enable filtering and categorization:
//
//   - **Connections**: Connection store and settings persistence
//   - **Auth**: Token acquisition flows and the loopback listener
//   - **Gateway**: Token reuse, refresh, and write-back decisions
//   - **Dataverse**: Web API operations
//   - **Registry**: Tool registry and download probes
//
// # Security
//
// Access tokens, refresh tokens, and passwords are never written to log
// output. Callers log token metadata (expiry, account presence) only.
package logging
