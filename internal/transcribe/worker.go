package transcribe

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/listen-engine/internal/metrics"
	"github.com/snarg/listen-engine/internal/repo"
	"github.com/snarg/listen-engine/internal/storage"
)

// QueueStats reports the current state of the transcription queue.
type QueueStats struct {
	Pending   int   `json:"pending"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Skipped   int64 `json:"skipped"`
}

// EventPublishFunc is a callback for publishing transcription events.
type EventPublishFunc func(eventType string, elderID int64, payload map[string]any)

// WorkerPoolOptions configures the transcription worker pool.
type WorkerPoolOptions struct {
	Recordings   repo.RecordingRepo
	Transcripts  repo.TranscriptRepo
	Store        storage.AudioStore
	Provider     Provider
	Timeout      time.Duration
	Workers      int
	QueueSize    int
	PublishEvent EventPublishFunc
	Log          zerolog.Logger
}

// WorkerPool manages transcription workers. Jobs are recording IDs;
// each worker claims the recording before touching audio, so the same
// ID may be enqueued any number of times and still be transcribed once.
type WorkerPool struct {
	jobs     chan string
	opts     WorkerPoolOptions
	log      zerolog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	sweeping atomic.Bool

	// mu orders Enqueue against Stop: once closed is set the jobs
	// channel may be closed, so no send may start after that.
	mu     sync.RWMutex
	closed bool

	completed atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
}

// NewWorkerPool creates a new transcription worker pool.
func NewWorkerPool(opts WorkerPoolOptions) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		jobs:   make(chan string, opts.QueueSize),
		opts:   opts,
		log:    opts.Log.With().Str("component", "transcribe").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.opts.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
	wp.log.Info().Int("workers", wp.opts.Workers).Int("queue_size", wp.opts.QueueSize).Msg("transcription worker pool started")
}

// Stop signals workers to drain and waits for completion. Idempotent,
// and safe against concurrent Enqueue: a send that arrives during or
// after Stop is refused, not panicked on.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return
	}
	wp.closed = true
	close(wp.jobs)
	wp.mu.Unlock()

	wp.wg.Wait()
	wp.cancel()
	wp.log.Info().
		Int64("completed", wp.completed.Load()).
		Int64("failed", wp.failed.Load()).
		Msg("transcription worker pool stopped")
}

// Enqueue adds a recording ID to the queue. Returns false if the queue
// is full or the pool is stopping; the recording stays in its current
// status and is picked up by the next sweep (or the next process).
func (wp *WorkerPool) Enqueue(recordID string) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return false
	}
	select {
	case wp.jobs <- recordID:
		return true
	default:
		return false
	}
}

// Stats returns current queue statistics.
func (wp *WorkerPool) Stats() QueueStats {
	return QueueStats{
		Pending:   len(wp.jobs),
		Completed: wp.completed.Load(),
		Failed:    wp.failed.Load(),
		Skipped:   wp.skipped.Load(),
	}
}

// Workers returns the number of worker goroutines.
func (wp *WorkerPool) Workers() int { return wp.opts.Workers }

// Model returns the configured ASR model name.
func (wp *WorkerPool) Model() string { return wp.opts.Provider.Model() }

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	log := wp.log.With().Int("worker", id).Logger()

	for recordID := range wp.jobs {
		claimed, err := wp.processJob(log, recordID)
		switch {
		case err != nil:
			wp.failed.Add(1)
			metrics.TranscriptionsTotal.WithLabelValues("failed").Inc()
			log.Warn().Err(err).Str("record_id", recordID).Msg("transcription failed")
		case !claimed:
			wp.skipped.Add(1)
			metrics.TranscriptionsTotal.WithLabelValues("skipped").Inc()
		default:
			wp.completed.Add(1)
			metrics.TranscriptionsTotal.WithLabelValues("completed").Inc()
		}
	}
}

// processJob claims and transcribes one recording. Returns claimed=false
// when another worker already owns or finished the recording.
func (wp *WorkerPool) processJob(log zerolog.Logger, recordID string) (claimed bool, err error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(wp.ctx, wp.opts.Timeout+10*time.Second)
	defer cancel()

	claimed, err = wp.opts.Recordings.Claim(ctx, recordID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			log.Debug().Str("record_id", recordID).Msg("recording gone, skipping")
			return false, nil
		}
		return false, fmt.Errorf("claim: %w", err)
	}
	if !claimed {
		return false, nil
	}

	rec, err := wp.opts.Recordings.Get(ctx, recordID)
	if err != nil {
		return true, wp.fail(ctx, recordID, fmt.Errorf("load recording: %w", err))
	}

	f, err := wp.opts.Store.Open(ctx, rec.AudioKey)
	if err != nil {
		return true, wp.fail(ctx, recordID, fmt.Errorf("open audio %s: %w", rec.AudioKey, err))
	}

	resp, err := wp.opts.Provider.Transcribe(ctx, f, path.Base(rec.AudioKey))
	f.Close()
	if err != nil {
		return true, wp.fail(ctx, recordID, fmt.Errorf("%s: %w", wp.opts.Provider.Name(), err))
	}

	text := strings.TrimSpace(resp.Text)
	t := &repo.Transcript{
		RecordID:   recordID,
		Text:       text,
		Confidence: resp.Confidence,
		ProducedAt: time.Now().UTC(),
	}
	if err := wp.opts.Transcripts.Put(ctx, t); err != nil {
		return true, wp.fail(ctx, recordID, fmt.Errorf("store transcript: %w", err))
	}
	if err := wp.opts.Recordings.MarkTranscribed(ctx, recordID); err != nil {
		return true, fmt.Errorf("mark transcribed: %w", err)
	}

	durationMs := int(time.Since(start).Milliseconds())

	if wp.opts.PublishEvent != nil {
		wp.opts.PublishEvent("transcript", rec.ElderID, map[string]any{
			"record_id":   recordID,
			"elder_id":    rec.ElderID,
			"chars":       len(text),
			"model":       wp.opts.Provider.Model(),
			"duration_ms": durationMs,
		})
	}

	log.Debug().
		Str("record_id", recordID).
		Int64("elder_id", rec.ElderID).
		Int("chars", len(text)).
		Int("duration_ms", durationMs).
		Msg("transcription complete")

	return true, nil
}

// fail records the error on the recording so a later sweep can retry
// it, then returns the original error for worker accounting.
func (wp *WorkerPool) fail(ctx context.Context, recordID string, cause error) error {
	if err := wp.opts.Recordings.MarkFailed(ctx, recordID, cause.Error()); err != nil {
		wp.log.Error().Err(err).Str("record_id", recordID).Msg("mark failed")
	}
	return cause
}
