package frames

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"perch/internal/logging"
)

// ErrConnectExhausted is returned by the acquirer when every connect attempt
// failed. The daemon treats it as fatal; recovery requires operator action.
var ErrConnectExhausted = errors.New("frame source connect attempts exhausted")

// StatusReporter receives component state transitions from the acquirer.
type StatusReporter interface {
	Report(ctx context.Context, component, status, detail string)
}

// AcquirerConfig controls the reconnect policy.
type AcquirerConfig struct {
	ConnectBaseDelay     time.Duration
	ConnectMaxDelay      time.Duration
	ConnectMaxAttempts   int
	ReadFailureThreshold int
}

// Acquirer owns the connection to the frame source. It connects with bounded
// exponential backoff, publishes every frame into the cell, and tears the
// connection down for a fresh reconnect cycle after too many consecutive
// read failures.
type Acquirer struct {
	source Source
	cell   *Cell
	cfg    AcquirerConfig
	logger *slog.Logger
	status StatusReporter
	sleep  func(ctx context.Context, d time.Duration) error
}

// AcquirerOption customizes an Acquirer.
type AcquirerOption func(*Acquirer)

// WithStatusReporter wires component health reporting.
func WithStatusReporter(r StatusReporter) AcquirerOption {
	return func(a *Acquirer) {
		if r != nil {
			a.status = r
		}
	}
}

// WithSleeper overrides the backoff sleep, for tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) AcquirerOption {
	return func(a *Acquirer) {
		if sleep != nil {
			a.sleep = sleep
		}
	}
}

// Component name used in health reports.
const ComponentName = "frame_source"

// NewAcquirer builds an acquirer publishing into cell.
func NewAcquirer(source Source, cell *Cell, cfg AcquirerConfig, logger *slog.Logger, opts ...AcquirerOption) *Acquirer {
	if logger == nil {
		logger = logging.NewNop()
	}
	a := &Acquirer{
		source: source,
		cell:   cell,
		cfg:    cfg,
		logger: logger,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run acquires frames until the context is cancelled or connect attempts are
// exhausted. It is meant to run on its own goroutine.
func (a *Acquirer) Run(ctx context.Context) error {
	for {
		reader, err := a.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.report(ctx, "offline", err.Error())
			return err
		}
		a.report(ctx, "online", "")

		err = a.readLoop(ctx, reader)
		_ = reader.Close()
		a.cell.Clear()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.Warn("frame source lost, reconnecting", logging.Error(err))
		a.report(ctx, "degraded", err.Error())
	}
}

func (a *Acquirer) connect(ctx context.Context) (Reader, error) {
	delay := a.cfg.ConnectBaseDelay
	var lastErr error
	for attempt := 1; attempt <= a.cfg.ConnectMaxAttempts; attempt++ {
		reader, err := a.source.Open(ctx)
		if err == nil {
			a.logger.Info("frame source connected", logging.Int("attempt", attempt))
			return reader, nil
		}
		lastErr = err
		a.logger.Warn("frame source connect failed",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", a.cfg.ConnectMaxAttempts),
			logging.Duration("retry_in", delay),
			logging.Error(err))

		if attempt == a.cfg.ConnectMaxAttempts {
			break
		}
		if err := a.sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
		if delay > a.cfg.ConnectMaxDelay {
			delay = a.cfg.ConnectMaxDelay
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrConnectExhausted, a.cfg.ConnectMaxAttempts, lastErr)
}

func (a *Acquirer) readLoop(ctx context.Context, reader Reader) error {
	failures := 0
	for {
		frame, err := reader.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			a.logger.Debug("frame read failed",
				logging.Int("consecutive_failures", failures),
				logging.Error(err))
			if failures >= a.cfg.ReadFailureThreshold {
				return fmt.Errorf("%d consecutive read failures: %w", failures, err)
			}
			continue
		}
		failures = 0
		a.cell.Store(frame)
	}
}

func (a *Acquirer) report(ctx context.Context, status, detail string) {
	if a.status == nil {
		return
	}
	a.status.Report(ctx, ComponentName, status, detail)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
