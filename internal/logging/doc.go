// Package logging assembles structured slog loggers and formatting helpers used
// by the producer daemon, the collector, and the CLI.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context helpers so transfer code can tag log lines
// with endpoint names and job identifiers. A no-op logger is provided for
// tests and wiring code that cannot fail.
package logging
