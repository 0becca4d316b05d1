// Package logging wires log/slog with the console and JSON handlers used
// across the CLI and the job engine, plus the standardized attribute keys
// for job-scoped log records.
package logging
