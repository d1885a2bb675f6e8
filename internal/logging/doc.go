// Package logging builds slog loggers with console and JSON handlers shared
// by the daemon, the curator server, and the CLI.
package logging
