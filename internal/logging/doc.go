// Package logging assembles structured slog loggers and formatting helpers used
// across the daemon and CLI.
//
// It owns the configurable console/JSON handlers, rotates the daemon log file,
// and exposes context-aware helpers so handlers and the reconciliation job can
// tag log lines with correlation ids, user ids, and run ids. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
package logging
