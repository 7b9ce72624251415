// Package reverification flags users whose age verification is due for renewal.
package reverification

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robalyx/legalgate/internal/database/types"
	"github.com/robalyx/legalgate/internal/worker/core"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// WorkerType identifies this worker in status reports.
const WorkerType = "reverification"

// Ages is the part of the age registry the worker needs.
type Ages interface {
	ListDueForReverification(ctx context.Context, now time.Time, limit int) ([]*types.AgeVerification, error)
	MarkForReverification(ctx context.Context, userID string, nextVerificationDate time.Time) error
}

// Options tunes a worker.
type Options struct {
	BatchSize   int
	Concurrency int
	Interval    time.Duration
}

// Worker periodically marks due verifications for re-verification.
type Worker struct {
	ages     Ages
	reporter *core.StatusReporter
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a new reverification worker.
func New(ages Ages, reporter *core.StatusReporter, opts Options, logger *zap.Logger) *Worker {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}

	return &Worker{
		ages:     ages,
		reporter: reporter,
		opts:     opts,
		logger:   logger.Named("reverification_worker"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start runs sweeps until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Reverification worker started",
		zap.String("workerID", w.reporter.GetWorkerID()),
		zap.Duration("interval", w.opts.Interval))

	w.reporter.Start(ctx)
	defer w.reporter.Stop()

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("Reverification sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			w.logger.Info("Reverification worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce drains every due verification in batches and returns how many were marked.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	w.reporter.SetHealthy(true)
	w.reporter.UpdateStatus("Sweeping due verifications", 0)

	total := 0
	for {
		marked, listed, err := w.sweepBatch(ctx)
		total += marked
		if err != nil {
			w.reporter.SetHealthy(false)
			return total, err
		}

		// A short or fully failed batch means there is nothing left we can make progress on.
		if listed < w.opts.BatchSize || marked == 0 {
			break
		}
	}

	w.reporter.UpdateStatus("Idle", 100)

	if total > 0 {
		w.logger.Info("Marked users for re-verification", zap.Int("count", total))
	}

	return total, nil
}

// sweepBatch marks one batch concurrently. Individual failures are logged and
// skipped so one bad record does not block the rest.
func (w *Worker) sweepBatch(ctx context.Context) (int, int, error) {
	due, err := w.ages.ListDueForReverification(ctx, w.now(), w.opts.BatchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list due verifications: %w", err)
	}
	if len(due) == 0 {
		return 0, 0, nil
	}

	var marked atomic.Int64
	p := pool.New().WithContext(ctx).WithMaxGoroutines(w.opts.Concurrency)

	for _, record := range due {
		p.Go(func(ctx context.Context) error {
			if err := w.ages.MarkForReverification(ctx, record.UserID, time.Time{}); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				w.logger.Warn("Failed to mark user for re-verification",
					zap.String("userID", record.UserID),
					zap.Error(err))
				return nil
			}

			marked.Add(1)
			return nil
		})
	}

	err = p.Wait()
	count := int(marked.Load())
	w.reporter.AddProcessed(count)

	return count, len(due), err
}
