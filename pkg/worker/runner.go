package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aldhinn/Fintel/pkg/logger"
)

// Worker interface that background workers should implement
type Worker interface {
	// Name returns worker name for logging
	Name() string
	// Run executes one iteration of work
	Run(ctx context.Context) error
}

// Option configures a PeriodicWorker
type Option func(*PeriodicWorker)

// WithIterations stops the worker after n runs. Zero means run until cancelled.
func WithIterations(n int) Option {
	return func(pw *PeriodicWorker) {
		pw.iterations = n
	}
}

// PeriodicWorker wraps a Worker with periodic execution
type PeriodicWorker struct {
	worker     Worker
	interval   time.Duration
	iterations int
	done       chan struct{}
	name       string
}

// NewPeriodicWorker creates new periodic worker
func NewPeriodicWorker(worker Worker, interval time.Duration, opts ...Option) *PeriodicWorker {
	pw := &PeriodicWorker{
		worker:   worker,
		interval: interval,
		done:     make(chan struct{}),
		name:     worker.Name(),
	}
	for _, opt := range opts {
		opt(pw)
	}
	return pw
}

// Start launches the worker loop and returns immediately
func (pw *PeriodicWorker) Start(ctx context.Context) {
	go pw.run(ctx)
}

// Done is closed when the loop exits
func (pw *PeriodicWorker) Done() <-chan struct{} {
	return pw.done
}

// Stop waits for graceful shutdown
func (pw *PeriodicWorker) Stop(timeout time.Duration) {
	select {
	case <-pw.done:
		logger.Info("✅ Worker stopped gracefully",
			zap.String("worker", pw.name),
		)
	case <-time.After(timeout):
		logger.Warn("⚠️ Worker stop timeout",
			zap.String("worker", pw.name),
		)
	}
}

// run executes the worker once immediately, then sleeps for the interval
// after each completed pass
func (pw *PeriodicWorker) run(ctx context.Context) {
	defer close(pw.done)

	logger.Info("🚀 Worker started",
		zap.String("worker", pw.name),
		zap.Duration("interval", pw.interval),
		zap.Int("iterations", pw.iterations),
	)

	timer := time.NewTimer(pw.interval)
	defer timer.Stop()

	for completed := 0; ; {
		pw.execute(ctx)
		completed++

		if pw.iterations > 0 && completed >= pw.iterations {
			logger.Info("worker reached iteration limit",
				zap.String("worker", pw.name),
				zap.Int("iterations", completed),
			)
			return
		}

		timer.Reset(pw.interval)
		select {
		case <-ctx.Done():
			logger.Info("🛑 Worker stopping",
				zap.String("worker", pw.name),
			)
			return
		case <-timer.C:
		}
	}
}

// execute runs one iteration; errors and panics are logged, never fatal to the loop
func (pw *PeriodicWorker) execute(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("worker panicked",
				zap.String("worker", pw.name),
				zap.Any("panic", r),
			)
		}
	}()

	if err := pw.worker.Run(ctx); err != nil {
		logger.Error("worker execution failed",
			zap.String("worker", pw.name),
			zap.Error(err),
		)
	}
}

// RunBackground is a convenience function to run single worker
// Usage: worker.RunBackground(ctx, myWorker, 8*time.Hour)
func RunBackground(ctx context.Context, worker Worker, interval time.Duration, opts ...Option) *PeriodicWorker {
	pw := NewPeriodicWorker(worker, interval, opts...)
	pw.Start(ctx)
	return pw
}
