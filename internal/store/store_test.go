package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"perch/internal/detection"
	"perch/internal/testsupport"
	"perch/internal/visit"
)

func TestVisitRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	started := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	v := testsupport.NewVisit(t, st, "visit-1", "session-1", started)

	cap1 := visit.Capture{
		ID:        "cap-1",
		VisitID:   v.ID,
		Index:     0,
		Timestamp: started,
		ImagePath: "/media/visit-1/cap-1.jpg",
		Detections: []detection.Detection{
			{Box: [4]int{10, 10, 110, 110}, Confidence: 0.9, ClassID: 14, ClassName: "bird"},
		},
	}
	if err := st.AppendCapture(ctx, cap1); err != nil {
		t.Fatalf("AppendCapture: %v", err)
	}

	loaded, err := st.VisitByID(ctx, v.ID)
	if err != nil {
		t.Fatalf("VisitByID: %v", err)
	}
	if loaded.Status != visit.StatusActive {
		t.Fatalf("status = %q, want active", loaded.Status)
	}
	if !loaded.StartedAt.Equal(started) {
		t.Fatalf("started_at = %v, want %v", loaded.StartedAt, started)
	}
	if len(loaded.Captures) != 1 {
		t.Fatalf("captures = %d, want 1", len(loaded.Captures))
	}
	got := loaded.Captures[0]
	if got.ImagePath != cap1.ImagePath {
		t.Fatalf("image path = %q", got.ImagePath)
	}
	if len(got.Detections) != 1 || got.Detections[0].ClassName != "bird" {
		t.Fatalf("detections did not survive the round trip: %+v", got.Detections)
	}
}

func TestCreateVisitAndAppendCaptureAreIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	started := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	v := testsupport.NewVisit(t, st, "visit-1", "session-1", started)

	// A retried create must not duplicate or clobber the row.
	if err := st.CreateVisit(ctx, v); err != nil {
		t.Fatalf("retried CreateVisit: %v", err)
	}

	c := visit.Capture{ID: "cap-1", VisitID: v.ID, Index: 0, Timestamp: started, ImagePath: "/m/cap-1.jpg"}
	for i := 0; i < 3; i++ {
		if err := st.AppendCapture(ctx, c); err != nil {
			t.Fatalf("AppendCapture retry %d: %v", i, err)
		}
	}

	captures, err := st.CapturesForVisit(ctx, v.ID)
	if err != nil {
		t.Fatalf("CapturesForVisit: %v", err)
	}
	if len(captures) != 1 {
		t.Fatalf("captures = %d after retries, want 1", len(captures))
	}

	visits, err := st.RecentVisits(ctx, 10)
	if err != nil {
		t.Fatalf("RecentVisits: %v", err)
	}
	if len(visits) != 1 {
		t.Fatalf("visits = %d after retries, want 1", len(visits))
	}
}

func TestVisitLifecycleStatusFlow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	started := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	ended := started.Add(30 * time.Second)
	v := testsupport.NewVisit(t, st, "visit-1", "session-1", started)

	if err := st.CloseVisit(ctx, v.ID, ended); err != nil {
		t.Fatalf("CloseVisit: %v", err)
	}
	analyzing, err := st.VisitsByStatus(ctx, visit.StatusAnalyzing)
	if err != nil {
		t.Fatalf("VisitsByStatus: %v", err)
	}
	if len(analyzing) != 1 || analyzing[0].ID != v.ID {
		t.Fatalf("analyzing visits = %+v", analyzing)
	}
	if !analyzing[0].EndedAt.Equal(ended) {
		t.Fatalf("ended_at = %v, want %v", analyzing[0].EndedAt, ended)
	}

	err = st.SaveAnalysis(ctx, v.ID, visit.StatusCompleted, "Northern Cardinal", visit.ConfidenceHigh, "A bright red bird.", 1, "cap-2")
	if err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}
	final, err := st.VisitByID(ctx, v.ID)
	if err != nil {
		t.Fatalf("VisitByID: %v", err)
	}
	if final.Status != visit.StatusCompleted {
		t.Fatalf("status = %q, want completed", final.Status)
	}
	if final.Species != "Northern Cardinal" || final.Confidence != visit.ConfidenceHigh {
		t.Fatalf("classification not persisted: %+v", final)
	}
	if final.BestCaptureID != "cap-2" {
		t.Fatalf("best capture = %q, want cap-2", final.BestCaptureID)
	}
}

func TestUpdateUnknownVisitFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	if err := st.SetVisitStatus(context.Background(), "missing", visit.StatusFailed); err == nil {
		t.Fatal("expected error updating a visit that does not exist")
	}
}

func TestSpeciesStatsRollup(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	day1 := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)
	for _, rec := range []struct {
		species string
		at      time.Time
	}{
		{"Blue Jay", day1},
		{"Blue Jay", day2},
		{"House Finch", day2},
	} {
		if err := st.RecordSpecies(ctx, rec.species, rec.at); err != nil {
			t.Fatalf("RecordSpecies(%s): %v", rec.species, err)
		}
	}

	stats, err := st.SpeciesStats(ctx)
	if err != nil {
		t.Fatalf("SpeciesStats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("stats rows = %d, want 2", len(stats))
	}
	if stats[0].Species != "Blue Jay" || stats[0].VisitCount != 2 {
		t.Fatalf("top species = %+v, want Blue Jay x2", stats[0])
	}
	if !stats[0].FirstSeen.Equal(day1) || !stats[0].LastSeen.Equal(day2) {
		t.Fatalf("sighting window = %v..%v", stats[0].FirstSeen, stats[0].LastSeen)
	}
}

func TestComponentHealthUpsert(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := st.UpsertComponentHealth(ctx, "frame_source", "online", ""); err != nil {
		t.Fatalf("UpsertComponentHealth: %v", err)
	}
	if err := st.UpsertComponentHealth(ctx, "frame_source", "degraded", "reconnecting"); err != nil {
		t.Fatalf("UpsertComponentHealth update: %v", err)
	}

	statuses, err := st.ComponentHealth(ctx)
	if err != nil {
		t.Fatalf("ComponentHealth: %v", err)
	}
	if len(statuses) != 1 {
		t.Fatalf("health rows = %d, want 1 (upsert, not append)", len(statuses))
	}
	if statuses[0].Status != "degraded" || statuses[0].Detail != "reconnecting" {
		t.Fatalf("health row = %+v", statuses[0])
	}
}

func TestWriteImage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	capturedAt := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	data := testsupport.JPEGBytes([]byte{0x01, 0x02})

	path, err := st.WriteImage("visit-1", "cap-1", capturedAt, data)
	if err != nil {
		t.Fatalf("WriteImage: %v", err)
	}
	// Retry writes the same path with the same bytes.
	again, err := st.WriteImage("visit-1", "cap-1", capturedAt, data)
	if err != nil {
		t.Fatalf("retried WriteImage: %v", err)
	}
	if again != path {
		t.Fatalf("retry produced a different path: %q vs %q", again, path)
	}

	written, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read image: %v", err)
	}
	if len(written) != len(data) {
		t.Fatalf("image bytes = %d, want %d", len(written), len(data))
	}
}
