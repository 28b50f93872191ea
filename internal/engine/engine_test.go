package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"perch/internal/analysis"
	"perch/internal/detection"
	"perch/internal/engine"
	"perch/internal/frames"
	"perch/internal/store"
	"perch/internal/testsupport"
	"perch/internal/visit"
)

type scriptedDetector struct {
	mu       sync.Mutex
	detected bool
	err      error
}

func (d *scriptedDetector) set(detected bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detected = detected
	d.err = err
}

func (d *scriptedDetector) Detect(ctx context.Context, frame *frames.Frame) ([]detection.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	if !d.detected {
		return nil, nil
	}
	return []detection.Detection{
		{Box: [4]int{100, 100, 200, 200}, Confidence: 0.9, ClassID: 14, ClassName: "bird"},
	}, nil
}

type harness struct {
	engine   *engine.Engine
	cell     *frames.Cell
	detector *scriptedDetector
	queue    *analysis.Queue
	store    *store.Store
	base     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	cell := frames.NewCell()
	detector := &scriptedDetector{}
	queue := analysis.NewQueue(0, 25, nil)

	eng := engine.New("session-1", engine.Config{
		TickInterval: 500 * time.Millisecond,
		Machine: visit.Config{
			AbsenceGracePeriod: 5 * time.Second,
			Cooldown:           15 * time.Second,
			CaptureInterval:    3 * time.Second,
			MaxCaptures:        5,
		},
	}, cell, detector, st, queue, nil, nil, nil)

	cell.Store(&frames.Frame{
		Seq:       1,
		Timestamp: time.Now(),
		Data:      testsupport.JPEGBytes([]byte{0x01}),
		Width:     640,
		Height:    480,
	})

	return &harness{
		engine:   eng,
		cell:     cell,
		detector: detector,
		queue:    queue,
		store:    st,
		base:     time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC),
	}
}

// tickRange runs one tick per second over [from, to].
func (h *harness) tickRange(ctx context.Context, from, to int) {
	for i := from; i <= to; i++ {
		h.engine.Tick(ctx, h.base.Add(time.Duration(i)*time.Second))
	}
}

func TestEngineRunsFullVisitLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.detector.set(true, nil)
	h.tickRange(ctx, 0, 10)
	h.detector.set(false, nil)
	h.tickRange(ctx, 11, 20)

	// Visit is closed and queued for analysis.
	task, ok := h.queue.Dequeue()
	if !ok {
		t.Fatal("no analysis task enqueued")
	}

	v, err := h.store.VisitByID(ctx, task.VisitID)
	if err != nil {
		t.Fatalf("VisitByID: %v", err)
	}
	if v.Status != visit.StatusAnalyzing {
		t.Fatalf("status = %q, want analyzing", v.Status)
	}
	// Captures at t=0,3,6,9 per the interval gate.
	if len(v.Captures) != 4 {
		t.Fatalf("captures = %d, want 4", len(v.Captures))
	}
	for i, c := range v.Captures {
		if c.Index != i {
			t.Fatalf("capture %d has index %d", i, c.Index)
		}
		if c.ImagePath == "" {
			t.Fatalf("capture %d has no image path", i)
		}
		if len(c.Detections) != 1 {
			t.Fatalf("capture %d detections = %d", i, len(c.Detections))
		}
	}
	if got := v.EndedAt.Sub(h.base); got != 16*time.Second {
		t.Fatalf("visit ended at t=%v, want t=16s", got)
	}
}

func TestEngineSkipsTickWithoutFrame(t *testing.T) {
	h := newHarness(t)
	h.cell.Clear()
	h.detector.set(true, nil)

	h.tickRange(context.Background(), 0, 5)

	visits, err := h.store.RecentVisits(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentVisits: %v", err)
	}
	if len(visits) != 0 {
		t.Fatalf("visits started without frames: %d", len(visits))
	}
}

func TestEngineTreatsDetectorErrorAsNoDetection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Open a visit, then make the detector fail during the grace window.
	h.detector.set(true, nil)
	h.tickRange(ctx, 0, 2)
	h.detector.set(false, errors.New("sidecar down"))
	h.tickRange(ctx, 3, 10)

	// Errors read as absence: after the grace period the visit completes.
	if _, ok := h.queue.Dequeue(); !ok {
		t.Fatal("visit did not complete under detector failure")
	}
}

func TestEngineQueuesEveryCompletedVisit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// First visit: t=0..2 detected, absent until completion at t=8.
	h.detector.set(true, nil)
	h.tickRange(ctx, 0, 2)
	h.detector.set(false, nil)
	h.tickRange(ctx, 3, 8)

	// Cooldown (15s from t=8) then a second visit.
	h.detector.set(true, nil)
	h.tickRange(ctx, 23, 26)
	h.detector.set(false, nil)
	h.tickRange(ctx, 27, 32)

	first, ok := h.queue.Dequeue()
	if !ok {
		t.Fatal("first visit not queued")
	}
	second, ok := h.queue.Dequeue()
	if !ok {
		t.Fatal("second visit not queued")
	}
	if first.VisitID == second.VisitID {
		t.Fatal("both tasks reference the same visit")
	}
}
