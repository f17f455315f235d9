package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	staleRunMessage       = "run interrupted: still running after the stale threshold"
	defaultReaperInterval = 10 * time.Minute
)

// RunReaper periodically fails runs left in the running state by a crashed or killed process.
type RunReaper struct {
	store      *Store
	logger     *zap.Logger
	staleAfter time.Duration
	ticker     *time.Ticker
	done       chan bool
}

func NewRunReaper(store *Store, logger *zap.Logger, staleAfter, interval time.Duration) *RunReaper {
	if interval <= 0 {
		interval = defaultReaperInterval
	}
	return &RunReaper{
		store:      store,
		logger:     logger,
		staleAfter: staleAfter,
		ticker:     time.NewTicker(interval),
		done:       make(chan bool),
	}
}

// Start reaps once immediately, then on every tick.
func (r *RunReaper) Start(ctx context.Context) {
	go func() {
		r.logger.Info("Starting run reaper", zap.Duration("stale_after", r.staleAfter))
		r.Reap(ctx)
		for {
			select {
			case <-r.done:
				r.logger.Info("Run reaper stopped")
				return
			case <-ctx.Done():
				r.logger.Info("Run reaper stopped due to context cancellation")
				return
			case <-r.ticker.C:
				r.Reap(ctx)
			}
		}
	}()
}

func (r *RunReaper) Stop() {
	r.ticker.Stop()
	close(r.done)
}

// Reap marks every run older than the stale threshold that is still running as failed.
func (r *RunReaper) Reap(ctx context.Context) int64 {
	cutoff := time.Now().UTC().Add(-r.staleAfter)
	n, err := r.store.FailStaleRuns(ctx, cutoff, staleRunMessage)
	if err != nil {
		r.logger.Error("Failed to reap stale runs", zap.Error(err))
		return 0
	}
	if n > 0 {
		r.logger.Warn("Marked stale ingest runs as failed", zap.Int64("count", n))
	}
	return n
}
