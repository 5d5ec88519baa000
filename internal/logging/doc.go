// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// The logging system uses Go's slog package with automatic output routing:
//   - Logs to systemd journal when available (Linux systems with journald)
//   - Logs to stdout when a terminal, pipe, or file is connected
//   - Logs to both when both are available
//   - Keeps the most recent entries in a ring buffer served by the HTTP API
//
// # Usage
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",      // Global log level: debug, info, warn, error
//		Format: "text",      // Output format: text or json
//		Modules: map[string]string{
//			"supervisor": "debug",  // Per-module overrides
//			"api":        "warn",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("mymodule")
//	logger.Info("Starting up", "port", 8080)
//	logger.Debug("Details", "config", cfg)
//	logger.Warn("Something unusual", "error", err)
//	logger.Error("Failed", "error", err)
//
// Process output is mirrored through the "proc" module, one record per
// line, tagged with process_id and stream.
//
// Add contextual attributes:
//
//	logger := logging.GetLogger("supervisor").With("server", name)
//	logger.Info("Server running")  // Includes server in all logs
//
// # Log Levels
//
//	debug - Verbose debugging information
//	info  - General operational messages
//	warn  - Warning conditions
//	error - Error conditions
//
// # Output Destinations
//
// The system automatically detects available outputs:
//
//	Journal available + stdout available → MultiHandler (both + buffer)
//	Journal available only              → MultiHandler (journal + buffer)
//	Stdout available only               → MultiHandler (stdout + buffer)
//
// Journal availability is checked via [github.com/coreos/go-systemd/v22/journal.Enabled].
//
// # Viewing Logs
//
// When running as a systemd service or on a system with journald:
//
//	journalctl -t devsup              # All devsup logs
//	journalctl -t devsup -f           # Follow live
//	journalctl -t devsup --since "5m" # Last 5 minutes
//	journalctl -t devsup -p err       # Errors only
//
// Filter by structured fields:
//
//	journalctl -t devsup MODULE=supervisor
//	journalctl -t devsup MODULE=proc PROCESS_ID=preview
//
// # Configuration
//
// Log levels can be set globally or per-module. Module-specific levels
// override the global level for that module only.
//
// Example TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	supervisor = "debug"
//	api = "warn"
//	proc = "error"
package logging
