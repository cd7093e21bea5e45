// Package logging provides per-module slog loggers.
//
// Call Initialize once with the [logging] table, then ask for a logger by module:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"discovery": "debug",
//		},
//	})
//
//	logger := logging.GetLogger("discovery")
//	logger.Info("Connect request sent", "attempt", n)
//
// Loggers handed out before Initialize stay valid; their level and handler
// chain are updated in place.
//
// Records go to stdout (text or json) when stdout is a terminal, pipe or file,
// to the systemd journal when journald is listening, and always to an
// in-memory history buffer that backs the status feed:
//
//	journalctl -t micnode -f
//	journalctl -t micnode MODULE=discovery -p warning
//
// TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	capture = "debug"
//	sender = "warn"
package logging
