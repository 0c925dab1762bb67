// Package logging assembles structured slog loggers and formatting helpers used
// across vidscale.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so stage code can automatically
// tag log lines with run IDs, stages, and segment indexes. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so worker processes and
// the coordinating process emit lines with the same shape.
package logging
