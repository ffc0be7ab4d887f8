package transcribe

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrSweepRunning indicates a sweep is already in progress.
var ErrSweepRunning = errors.New("sweep already running")

// Sweep enqueues every recording still awaiting transcription (newly
// stored or previously failed). At most one sweep runs at a time;
// concurrent callers get ErrSweepRunning instead of queuing duplicate
// work.
func (wp *WorkerPool) Sweep(ctx context.Context) (queued int, err error) {
	if !wp.sweeping.CompareAndSwap(false, true) {
		return 0, ErrSweepRunning
	}
	defer wp.sweeping.Store(false)

	pending, err := wp.opts.Recordings.ListRetryable(ctx, wp.opts.QueueSize)
	if err != nil {
		return 0, fmt.Errorf("list retryable: %w", err)
	}

	for _, rec := range pending {
		if !wp.Enqueue(rec.ID) {
			break
		}
		queued++
	}

	if queued > 0 {
		wp.log.Info().Int("queued", queued).Int("pending", len(pending)).Msg("sweep enqueued recordings")
	}
	return queued, nil
}

// RunSweeper periodically sweeps for stranded recordings until ctx is
// cancelled. Covers enqueue drops (full queue) and process restarts
// that lost in-flight jobs.
func (wp *WorkerPool) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := wp.Sweep(ctx); err != nil && !errors.Is(err, ErrSweepRunning) {
				wp.log.Warn().Err(err).Msg("sweep failed")
			}
		}
	}
}
