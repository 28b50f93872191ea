package testsupport

import (
	"context"
	"testing"
	"time"

	"perch/internal/config"
	"perch/internal/store"
	"perch/internal/visit"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewVisit creates and persists an active visit for tests.
func NewVisit(t testing.TB, st *store.Store, id, sessionID string, startedAt time.Time) *visit.Visit {
	t.Helper()

	v := &visit.Visit{
		ID:        id,
		SessionID: sessionID,
		StartedAt: startedAt,
		Status:    visit.StatusActive,
		BirdCount: 1,
	}
	if err := st.CreateVisit(context.Background(), v); err != nil {
		t.Fatalf("store.CreateVisit: %v", err)
	}
	return v
}
