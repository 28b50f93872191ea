package health_test

import (
	"context"
	"testing"

	"perch/internal/health"
	"perch/internal/testsupport"
)

func TestReporterPersistsLatestState(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	reporter := health.NewReporter(st, nil)
	ctx := context.Background()

	reporter.Report(ctx, "frame_source", health.StatusOnline, "")
	reporter.Report(ctx, "engine", health.StatusOnline, "")
	reporter.Report(ctx, "frame_source", health.StatusOffline, "connect attempts exhausted")

	snapshot, err := reporter.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snapshot) != 2 {
		t.Fatalf("components = %d, want 2", len(snapshot))
	}
	// Ordered by component name.
	if snapshot[0].Component != "engine" || snapshot[0].Status != health.StatusOnline {
		t.Fatalf("engine row = %+v", snapshot[0])
	}
	if snapshot[1].Component != "frame_source" || snapshot[1].Status != health.StatusOffline {
		t.Fatalf("frame_source row = %+v", snapshot[1])
	}
	if snapshot[1].Detail != "connect attempts exhausted" {
		t.Fatalf("detail = %q", snapshot[1].Detail)
	}
}

func TestNilReporterIsSafe(t *testing.T) {
	var r *health.Reporter
	r.Report(context.Background(), "engine", health.StatusOnline, "")
}
