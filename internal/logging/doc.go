// Package logging provides slog-based structured logging for perch with
// console and JSON output formats, standardized field keys, and helpers for
// deriving log context from request-scoped values.
package logging
