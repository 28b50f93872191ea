// Package store persists visit evidence: visit and capture metadata in
// SQLite, capture images on disk, plus species roll-up statistics and
// component health state. All metadata writes are idempotent so the engine
// and workers can retry safely.
package store
