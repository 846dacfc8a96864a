// Package logging provides structured logging with per-module log level configuration.
//
// The logging system uses Go's slog package with automatic output routing:
//   - Logs to the systemd journal when available (Linux systems with journald)
//   - Logs to stderr otherwise, so stdout stays reserved for command output
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",      // Global log level: debug, info, warn, error
//		Format: "text",      // Output format: text or json
//		Modules: map[string]string{
//			"services": "debug",  // Per-module overrides
//			"batch":    "warn",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("services")
//	logger.Info("Service started", "name", name, "pid", pid)
//
// Add contextual attributes:
//
//	logger := logging.GetLogger("batch").With("batch_id", id)
//	logger.Info("Scenario completed")  // Includes batch_id in all logs
//
// When running on a system with journald:
//
//	journalctl -t lightkeeper              # All lightkeeper logs
//	journalctl -t lightkeeper MODULE=batch # Filter by structured field
//
// Example TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	services = "debug"
//	measure = "warn"
package logging
