package infrastructure

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"onboardingbot/internal/interfaces"
)

const defaultJobTimeout = 60 * time.Second

// BackgroundRunner runs fire-and-forget jobs on their own goroutines, bounded
// by a semaphore so a burst of webhooks cannot spawn unbounded work. Enqueue
// never blocks: when the runner is saturated the job is dropped and logged.
type BackgroundRunner struct {
	sem    *semaphore.Weighted
	logger *zap.Logger
}

func NewBackgroundRunner(maxConcurrent int64, logger *zap.Logger) interfaces.JobRunner {
	if maxConcurrent <= 0 {
		maxConcurrent = 16
	}
	return &BackgroundRunner{
		sem:    semaphore.NewWeighted(maxConcurrent),
		logger: logger,
	}
}

func (r *BackgroundRunner) Enqueue(name string, fn func(ctx context.Context)) {
	if !r.sem.TryAcquire(1) {
		r.logger.Warn("job runner saturated, dropping job", zap.String("job", name))
		return
	}

	go func() {
		defer r.sem.Release(1)
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("job panicked",
					zap.String("job", name), zap.Any("panic", rec))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), defaultJobTimeout)
		defer cancel()

		start := time.Now()
		fn(ctx)
		r.logger.Debug("job finished",
			zap.String("job", name), zap.Duration("took", time.Since(start)))
	}()
}
