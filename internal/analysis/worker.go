package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"perch/internal/logging"
	"perch/internal/services"
	"perch/internal/services/vision"
	"perch/internal/store"
	"perch/internal/visit"
)

// Classifier identifies the species in a capture image. Retry-with-backoff
// happens inside the classifier; a returned error means attempts are
// exhausted.
type Classifier interface {
	Classify(ctx context.Context, imageData []byte) (vision.Result, error)
}

// Notifier receives analysis outcomes. Implementations must tolerate being
// called from multiple workers.
type Notifier interface {
	VisitCompleted(ctx context.Context, v *visit.Visit)
	AnalysisFailed(ctx context.Context, v *visit.Visit, reason string)
}

// Worker drains the analysis queue. Each task loads its visit from the
// store, selects the best capture, classifies it, and writes a terminal
// status. Every visit leaves the queue as completed or failed, never stuck
// in analyzing.
type Worker struct {
	queue      *Queue
	store      *store.Store
	classifier Classifier
	notifier   Notifier
	logger     *slog.Logger
}

// NewWorker builds a worker. classifier may be nil when species
// identification is disabled; visits then complete as "unknown". notifier
// may be nil.
func NewWorker(queue *Queue, st *store.Store, classifier Classifier, notifier Notifier, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Worker{
		queue:      queue,
		store:      st,
		classifier: classifier,
		notifier:   notifier,
		logger:     logger.With(logging.String(logging.FieldComponent, "analysis")),
	}
}

// Run processes tasks until the queue is closed and drained. ctx bounds the
// external calls of the task being processed; cancelling it fails the
// in-flight task but the loop still drains the queue.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, ok := w.queue.Dequeue()
		if !ok {
			return
		}
		w.Process(ctx, task)
	}
}

// RunPool starts n workers sharing one queue and blocks until all exit.
func RunPool(ctx context.Context, n int, factory func() *Worker) {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		worker := factory()
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(ctx)
		}()
	}
	wg.Wait()
}

// Process handles one task end to end.
func (w *Worker) Process(ctx context.Context, task Task) {
	ctx = services.WithVisitID(ctx, task.VisitID)
	logger := w.logger.With(logging.String(logging.FieldVisitID, task.VisitID))

	v, err := w.store.VisitByID(ctx, task.VisitID)
	if err != nil {
		logger.Error("load visit for analysis", logging.Error(err))
		return
	}

	best := v.BestCapture()
	if best == nil {
		w.finishFailed(ctx, logger, v, "no captures recorded for visit")
		return
	}

	if w.classifier == nil {
		w.finishCompleted(ctx, logger, v, best, vision.Result{
			Species:    "unknown",
			Confidence: visit.ConfidenceLow,
			Count:      1,
		})
		return
	}

	imageData, err := os.ReadFile(best.ImagePath)
	if err != nil {
		w.finishFailed(ctx, logger, v, fmt.Sprintf("read capture image: %v", err))
		return
	}

	result, err := w.classifier.Classify(ctx, imageData)
	if err != nil {
		w.finishFailed(ctx, logger, v, fmt.Sprintf("classification failed: %v", err))
		return
	}
	w.finishCompleted(ctx, logger, v, best, result)
}

func (w *Worker) finishCompleted(ctx context.Context, logger *slog.Logger, v *visit.Visit, best *visit.Capture, result vision.Result) {
	species := result.Species
	if species == "" {
		species = "unknown"
	}
	confidence := visit.NormalizeConfidence(result.Confidence)
	count := result.Count
	if count < 1 {
		count = 1
	}

	err := w.store.SaveAnalysis(ctx, v.ID, visit.StatusCompleted, species, confidence, result.Summary, count, best.ID)
	if err != nil {
		logger.Error("persist analysis result", logging.Error(err))
		return
	}
	v.Status = visit.StatusCompleted
	v.Species = species
	v.Confidence = confidence
	v.Summary = result.Summary
	v.BirdCount = count
	v.BestCaptureID = best.ID

	if err := w.store.RecordSpecies(ctx, species, v.EndedAt); err != nil {
		logger.Warn("update species stats", logging.Error(err))
	}

	logger.Info("visit classified",
		logging.String("species", species),
		logging.String("confidence", confidence),
		logging.Int("bird_count", count))

	if w.notifier != nil {
		w.notifier.VisitCompleted(ctx, v)
	}
}

func (w *Worker) finishFailed(ctx context.Context, logger *slog.Logger, v *visit.Visit, reason string) {
	if err := w.store.SaveAnalysis(ctx, v.ID, visit.StatusFailed, "", "", reason, v.BirdCount, v.BestCaptureID); err != nil {
		logger.Error("persist analysis failure", logging.Error(err))
		return
	}
	v.Status = visit.StatusFailed
	v.Summary = reason

	logger.Error("visit analysis failed", logging.String("reason", reason))

	if w.notifier != nil {
		w.notifier.AnalysisFailed(ctx, v, reason)
	}
}
