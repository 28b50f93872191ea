// Package daemon wires the perchd components together and owns their
// lifecycle: single-instance locking, startup requeue, supervised run, and
// ordered shutdown with queue drain.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"perch/internal/analysis"
	"perch/internal/config"
	"perch/internal/detection"
	"perch/internal/engine"
	"perch/internal/frames"
	"perch/internal/health"
	"perch/internal/logging"
	"perch/internal/notifications"
	"perch/internal/services"
	"perch/internal/services/vision"
	"perch/internal/store"
	"perch/internal/visit"
)

// ErrAlreadyRunning indicates another perchd instance holds the lock.
var ErrAlreadyRunning = errors.New("another perchd instance is already running")

// Daemon composes the frame acquirer, session engine, and analysis workers.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New builds a daemon for the given configuration.
func New(cfg *config.Config, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Daemon{cfg: cfg, logger: logger}
}

// Run starts all components and blocks until the context is cancelled or a
// fatal component error occurs. Shutdown order: engine and acquirer first,
// then the queue is closed and workers drain the backlog.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}

	lock := flock.New(filepath.Join(d.cfg.Paths.DataDir, "perchd.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return ErrAlreadyRunning
	}
	defer func() { _ = lock.Unlock() }()

	st, err := store.Open(d.cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	sessionID := uuid.NewString()
	ctx = services.WithSessionID(ctx, sessionID)
	logger := d.logger.With(logging.String(logging.FieldSessionID, sessionID))
	logger.Info("perchd starting",
		logging.String("source_url", d.cfg.Source.URL),
		logging.Bool("vision_enabled", d.cfg.Vision.Enabled))

	reporter := health.NewReporter(st, logger)
	notifier := notifications.NewService(d.cfg)

	cell := frames.NewCell()
	source := frames.NewFFmpegSource(
		d.cfg.Source.FFmpegBinary,
		d.cfg.Source.URL,
		d.cfg.Source.FrameRate,
		logger,
	)
	acquirer := frames.NewAcquirer(source, cell, frames.AcquirerConfig{
		ConnectBaseDelay:     time.Duration(d.cfg.Source.ConnectBaseDelay) * time.Second,
		ConnectMaxDelay:      time.Duration(d.cfg.Source.ConnectMaxDelay) * time.Second,
		ConnectMaxAttempts:   d.cfg.Source.ConnectMaxAttempts,
		ReadFailureThreshold: d.cfg.Source.ReadFailureThreshold,
	}, logger, frames.WithStatusReporter(reporter))

	detector := detection.NewClient(detection.ClientConfig{
		Endpoint:            d.cfg.Detector.Endpoint,
		ConfidenceThreshold: d.cfg.Detector.ConfidenceThreshold,
		ClassID:             d.cfg.Detector.BirdClassID,
		MinAreaRatio:        d.cfg.Detector.MinAreaRatio,
		ROI: detection.ROI{
			X1: d.cfg.Detector.ROIX1,
			Y1: d.cfg.Detector.ROIY1,
			X2: d.cfg.Detector.ROIX2,
			Y2: d.cfg.Detector.ROIY2,
		},
		Timeout: time.Duration(d.cfg.Detector.RequestTimeout) * time.Second,
	})

	queue := analysis.NewQueue(d.cfg.Analysis.QueueCapacity, d.cfg.Analysis.QueueWatermark, logger)

	var classifier analysis.Classifier
	if d.cfg.Vision.Enabled {
		classifier = vision.NewClient(vision.Config{
			APIKey:         d.cfg.Vision.APIKey,
			BaseURL:        d.cfg.Vision.BaseURL,
			Model:          d.cfg.Vision.Model,
			MaxTokens:      d.cfg.Vision.MaxTokens,
			TimeoutSeconds: d.cfg.Vision.TimeoutSeconds,
		},
			vision.WithRetryMaxAttempts(d.cfg.Vision.MaxRetries),
			vision.WithRetryBackoff(
				time.Duration(d.cfg.Vision.RetryBaseDelay)*time.Second,
				time.Duration(d.cfg.Vision.RetryMaxDelay)*time.Second,
			),
		)
	}

	requeued, err := requeueInterrupted(ctx, st, queue)
	if err != nil {
		return fmt.Errorf("requeue interrupted visits: %w", err)
	}
	if requeued > 0 {
		logger.Info("requeued interrupted visits", logging.Int("count", requeued))
	}

	eng := engine.New(sessionID, engine.Config{
		TickInterval: time.Duration(d.cfg.Session.DetectionIntervalMS) * time.Millisecond,
		Machine: visit.Config{
			AbsenceGracePeriod: time.Duration(d.cfg.Session.AbsenceGracePeriod) * time.Second,
			Cooldown:           time.Duration(d.cfg.Session.VisitCooldown) * time.Second,
			CaptureInterval:    time.Duration(d.cfg.Session.CaptureInterval) * time.Second,
			MaxCaptures:        d.cfg.Session.MaxCapturesPerVisit,
		},
	}, cell, detector, st, queue, notifier, reporter, logger)

	// Workers drain on a background context so queued visits still resolve
	// after the tick loop stops; DrainTimeout bounds the wait below.
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		analysis.RunPool(context.Background(), d.cfg.Analysis.Workers, func() *analysis.Worker {
			return analysis.NewWorker(queue, st, classifier, analysisNotifier{notifier, logger}, logger)
		})
	}()

	var wg sync.WaitGroup
	fatal := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := acquirer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("frame acquirer stopped", logging.Error(err))
			if notifyErr := notifier.NotifySourceOffline(context.Background(), err.Error()); notifyErr != nil {
				logger.Warn("source offline notification", logging.Error(notifyErr))
			}
			select {
			case fatal <- err:
			default:
			}
			cancel()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			select {
			case fatal <- err:
			default:
			}
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("perchd shutting down")
	wg.Wait()

	// Engine has stopped; no new tasks can arrive. Close and drain.
	queue.Close()
	drainTimeout := time.Duration(d.cfg.Analysis.DrainTimeout) * time.Second
	select {
	case <-workersDone:
	case <-time.After(drainTimeout):
		logger.Warn("analysis drain timed out, remaining visits will requeue on next start",
			logging.Int("remaining", queue.Len()))
	}

	select {
	case err := <-fatal:
		return err
	default:
	}
	return nil
}

// requeueInterrupted enqueues visits a previous process left in analyzing
// status, oldest first.
func requeueInterrupted(ctx context.Context, st *store.Store, queue *analysis.Queue) (int, error) {
	visits, err := st.VisitsByStatus(ctx, visit.StatusAnalyzing)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, v := range visits {
		if queue.Enqueue(analysis.Task{VisitID: v.ID, EnqueuedAt: time.Now()}) {
			count++
		}
	}
	return count, nil
}

// analysisNotifier adapts the notification service to the worker callbacks,
// logging send failures instead of surfacing them.
type analysisNotifier struct {
	service notifications.Service
	logger  *slog.Logger
}

func (n analysisNotifier) VisitCompleted(ctx context.Context, v *visit.Visit) {
	if err := n.service.NotifyVisitCompleted(ctx, v); err != nil {
		n.logger.Warn("visit completion notification", logging.Error(err))
	}
}

func (n analysisNotifier) AnalysisFailed(ctx context.Context, v *visit.Visit, reason string) {
	if err := n.service.NotifyAnalysisFailed(ctx, v, reason); err != nil {
		n.logger.Warn("analysis failure notification", logging.Error(err))
	}
}
