package main

import (
	"context"
	"testing"
	"time"

	"perch/internal/config"
	"perch/internal/store"
	"perch/internal/visit"
)

func seedCompletedVisit(t *testing.T, configPath string) {
	t.Helper()
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	started := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	v := &visit.Visit{
		ID:        "visit-1",
		SessionID: "session-1",
		StartedAt: started,
		Status:    visit.StatusActive,
	}
	if err := st.CreateVisit(ctx, v); err != nil {
		t.Fatalf("CreateVisit: %v", err)
	}
	if err := st.CloseVisit(ctx, v.ID, started.Add(42*time.Second)); err != nil {
		t.Fatalf("CloseVisit: %v", err)
	}
	if err := st.SaveAnalysis(ctx, v.ID, visit.StatusCompleted, "Northern Cardinal", visit.ConfidenceHigh, "A cardinal at the feeder", 1, ""); err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}
	if err := st.RecordSpecies(ctx, "Northern Cardinal", started.Add(42*time.Second)); err != nil {
		t.Fatalf("RecordSpecies: %v", err)
	}
	if err := st.UpsertComponentHealth(ctx, "engine", "online", ""); err != nil {
		t.Fatalf("UpsertComponentHealth: %v", err)
	}
}

func TestVisitsListsRecentVisits(t *testing.T) {
	path := writeCLIConfig(t, t.TempDir())
	seedCompletedVisit(t, path)

	out, err := runCLI(t, "--config", path, "visits")
	if err != nil {
		t.Fatalf("visits: %v", err)
	}
	requireContains(t, out, "Northern Cardinal")
	requireContains(t, out, "completed")
	requireContains(t, out, "42s")
}

func TestVisitsWithEmptyStore(t *testing.T) {
	path := writeCLIConfig(t, t.TempDir())

	out, err := runCLI(t, "--config", path, "visits")
	if err != nil {
		t.Fatalf("visits: %v", err)
	}
	requireContains(t, out, "No visits recorded yet")
}

func TestStatusShowsComponentHealth(t *testing.T) {
	path := writeCLIConfig(t, t.TempDir())
	seedCompletedVisit(t, path)

	out, err := runCLI(t, "--config", path, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "engine")
	requireContains(t, out, "online")
	requireContains(t, out, "Visits awaiting analysis: 0")
}

func TestSpeciesRollup(t *testing.T) {
	path := writeCLIConfig(t, t.TempDir())
	seedCompletedVisit(t, path)

	out, err := runCLI(t, "--config", path, "species")
	if err != nil {
		t.Fatalf("species: %v", err)
	}
	requireContains(t, out, "Northern Cardinal")
}
