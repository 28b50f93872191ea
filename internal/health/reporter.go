// Package health fans component state out to the store so operators can see
// at a glance which parts of the daemon are alive.
package health

import (
	"context"
	"log/slog"

	"perch/internal/logging"
	"perch/internal/store"
)

// Component states.
const (
	StatusOnline   = "online"
	StatusDegraded = "degraded"
	StatusOffline  = "offline"
)

// Reporter persists component state transitions. A failed write is logged
// and dropped; health reporting must never take a component down with it.
type Reporter struct {
	store  *store.Store
	logger *slog.Logger
}

// NewReporter builds a reporter backed by the given store.
func NewReporter(st *store.Store, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Reporter{
		store:  st,
		logger: logger.With(logging.String(logging.FieldComponent, "health")),
	}
}

// Report records the latest state for a component.
func (r *Reporter) Report(ctx context.Context, component, status, detail string) {
	if r == nil || r.store == nil {
		return
	}
	if err := r.store.UpsertComponentHealth(ctx, component, status, detail); err != nil {
		r.logger.Warn("record component health",
			logging.String("target_component", component),
			logging.String("status", status),
			logging.Error(err))
		return
	}
	r.logger.Debug("component health updated",
		logging.String("target_component", component),
		logging.String("status", status))
}

// Snapshot returns the latest state of every component.
func (r *Reporter) Snapshot(ctx context.Context) ([]store.ComponentStatus, error) {
	return r.store.ComponentHealth(ctx)
}
