// Package logging builds the slog loggers used by the daemon and CLI. It
// provides a human-oriented console handler, a JSON handler for log files,
// attr helpers, and context-derived field extraction so every record carries
// the report and stage it belongs to.
package logging
