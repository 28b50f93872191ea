// Package engine runs the detection tick loop: read the freshest frame,
// ask the detector about it, advance the visit state machine, and execute
// whatever side effect it returns.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"perch/internal/analysis"
	"perch/internal/detection"
	"perch/internal/frames"
	"perch/internal/health"
	"perch/internal/logging"
	"perch/internal/notifications"
	"perch/internal/services"
	"perch/internal/store"
	"perch/internal/visit"
)

// Config carries the engine's timing snapshot.
type Config struct {
	TickInterval time.Duration
	Machine      visit.Config
}

// Engine owns the session state machine. All machine access happens on the
// Run goroutine; everything the engine shares with other components (cell,
// queue, store) is safe for concurrent use.
type Engine struct {
	cfg      Config
	machine  *visit.Machine
	cell     *frames.Cell
	detector detection.Detector
	store    *store.Store
	queue    *analysis.Queue
	notifier notifications.Service
	health   *health.Reporter
	logger   *slog.Logger
	newID    func() string
}

// New builds an engine for one daemon session.
func New(sessionID string, cfg Config, cell *frames.Cell, detector detection.Detector, st *store.Store, queue *analysis.Queue, notifier notifications.Service, reporter *health.Reporter, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		cfg:      cfg,
		machine:  visit.NewMachine(sessionID, cfg.Machine),
		cell:     cell,
		detector: detector,
		store:    st,
		queue:    queue,
		notifier: notifier,
		health:   reporter,
		logger:   logger.With(logging.String(logging.FieldComponent, "engine")),
		newID:    uuid.NewString,
	}
}

// Run ticks at the configured cadence until the context is cancelled. On
// shutdown an open visit is closed and queued so it still reaches a terminal
// status.
func (e *Engine) Run(ctx context.Context) error {
	e.health.Report(ctx, "engine", health.StatusOnline, "")

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.finalize()
			e.health.Report(context.Background(), "engine", health.StatusOffline, "shutdown")
			return ctx.Err()
		case now := <-ticker.C:
			e.Tick(ctx, now)
		}
	}
}

// Tick advances the state machine by one observation.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	frame, ok := e.cell.Load()
	if !ok {
		// No frame yet (source connecting or down): nothing to observe.
		return
	}

	detections, err := e.detector.Detect(ctx, frame)
	if err != nil {
		// Fail safe: a broken tick counts as "not detected" rather than
		// crashing the loop.
		e.logger.Warn("detector error, treating tick as no detection", logging.Error(err))
		detections = nil
	}
	detected := len(detections) > 0

	effect := e.machine.Observe(detected, now)
	switch effect.Kind {
	case visit.EffectNone:

	case visit.EffectStartVisit:
		e.startVisit(ctx, effect.Visit, frame, detections, now)

	case visit.EffectCapture:
		e.recordCapture(ctx, effect.Visit, frame, detections, now)

	case visit.EffectCompleteVisit:
		e.completeVisit(ctx, effect.Visit)
	}
}

func (e *Engine) startVisit(ctx context.Context, v *visit.Visit, frame *frames.Frame, detections []detection.Detection, now time.Time) {
	ctx = services.WithVisitID(ctx, v.ID)
	e.logger.Info("visit started",
		logging.String(logging.FieldVisitID, v.ID),
		logging.String(logging.FieldSessionID, v.SessionID))

	// A failed create leaves the in-memory visit authoritative; captures
	// keep accumulating and the close path retries persistence.
	if err := e.store.CreateVisit(ctx, v); err != nil {
		e.logger.Error("persist new visit", logging.Error(err),
			logging.String(logging.FieldVisitID, v.ID))
	}
	e.recordCapture(ctx, v, frame, detections, now)

	if e.notifier != nil {
		if err := e.notifier.NotifyVisitStarted(ctx, v); err != nil {
			e.logger.Warn("visit start notification", logging.Error(err))
		}
	}
}

func (e *Engine) recordCapture(ctx context.Context, v *visit.Visit, frame *frames.Frame, detections []detection.Detection, now time.Time) {
	capture := visit.Capture{
		ID:         e.newID(),
		VisitID:    v.ID,
		Index:      len(v.Captures),
		Timestamp:  now,
		Detections: detections,
	}

	path, err := e.store.WriteImage(v.ID, capture.ID, now, frame.Data)
	if err != nil {
		e.logger.Error("write capture image", logging.Error(err),
			logging.String(logging.FieldVisitID, v.ID))
	} else {
		capture.ImagePath = path
	}

	// The in-memory visit is authoritative; the row write may fail and be
	// absent from the store without breaking the session.
	v.Captures = append(v.Captures, capture)

	if err := e.store.AppendCapture(ctx, capture); err != nil {
		e.logger.Error("persist capture", logging.Error(err),
			logging.String(logging.FieldVisitID, v.ID),
			logging.String(logging.FieldCaptureID, capture.ID))
		return
	}
	e.logger.Debug("capture recorded",
		logging.String(logging.FieldVisitID, v.ID),
		logging.String(logging.FieldCaptureID, capture.ID),
		logging.Int("capture_index", capture.Index))
}

func (e *Engine) completeVisit(ctx context.Context, v *visit.Visit) {
	ctx = services.WithVisitID(ctx, v.ID)
	e.logger.Info("visit completed",
		logging.String(logging.FieldVisitID, v.ID),
		logging.Duration("duration", v.Duration()),
		logging.Int("captures", len(v.Captures)))

	// Create first in case the initial insert failed mid-visit, then close.
	if err := e.store.CreateVisit(ctx, v); err != nil {
		e.logger.Error("persist visit before close", logging.Error(err),
			logging.String(logging.FieldVisitID, v.ID))
	}
	for _, capture := range v.Captures {
		if err := e.store.AppendCapture(ctx, capture); err != nil {
			e.logger.Error("persist capture before close", logging.Error(err),
				logging.String(logging.FieldCaptureID, capture.ID))
		}
	}
	if err := e.store.CloseVisit(ctx, v.ID, v.EndedAt); err != nil {
		e.logger.Error("close visit", logging.Error(err),
			logging.String(logging.FieldVisitID, v.ID))
	}

	if !e.queue.Enqueue(analysis.Task{VisitID: v.ID, EnqueuedAt: time.Now()}) {
		e.logger.Warn("analysis queue closed, visit left for startup requeue",
			logging.String(logging.FieldVisitID, v.ID))
	}
}

// finalize closes any open visit on shutdown so it is not stranded in
// active status.
func (e *Engine) finalize() {
	open := e.machine.Current()
	if open == nil {
		return
	}
	open.EndedAt = time.Now()
	open.Status = visit.StatusAnalyzing
	e.logger.Info("closing open visit on shutdown",
		logging.String(logging.FieldVisitID, open.ID))
	e.completeVisit(context.Background(), open)
}
