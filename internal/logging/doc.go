// Package logging assembles structured slog loggers and attribute helpers used
// by the proxima daemon, its transport and the CLI.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so request handling code can tag
// log lines with client and correlation identifiers. NewNop provides a
// discarding logger for tests and wiring code that cannot fail.
package logging
