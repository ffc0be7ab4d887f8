package ingest

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/listen-engine/internal/repo"
	"github.com/snarg/listen-engine/internal/storage"
)

var (
	// ErrEmptyFile indicates an upload with no audio payload.
	ErrEmptyFile = errors.New("empty audio file")

	// ErrBadExtension indicates a file type outside the allowlist.
	ErrBadExtension = errors.New("unsupported audio format")

	// ErrTooLarge indicates the upload exceeds the size limit.
	ErrTooLarge = errors.New("audio file too large")
)

// EnqueueFunc hands a stored recording to the transcription queue.
// Returning false (queue full) is not an error; the retry sweep picks
// the recording up later.
type EnqueueFunc func(recordID string) bool

// OrchestratorOptions configures the ingestion orchestrator.
type OrchestratorOptions struct {
	Recordings  repo.RecordingRepo
	Store       storage.AudioStore
	Enqueue     EnqueueFunc
	AllowedExts []string // without dots, lowercase
	MaxBytes    int64
	Log         zerolog.Logger
}

// Orchestrator implements the upload use case: validate, persist the
// blob, create the recording row, then hand off to transcription.
type Orchestrator struct {
	opts    OrchestratorOptions
	allowed map[string]bool
	log     zerolog.Logger
}

// NewOrchestrator creates an ingestion orchestrator.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	allowed := make(map[string]bool, len(opts.AllowedExts))
	for _, ext := range opts.AllowedExts {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	return &Orchestrator{
		opts:    opts,
		allowed: allowed,
		log:     opts.Log.With().Str("component", "ingest").Logger(),
	}
}

// UploadResult reports the accepted recording.
type UploadResult struct {
	RecordID string
	Status   repo.RecordingStatus
}

// Upload validates and stores one voice memo for the elder. The blob is
// written before the recording row; if the row insert fails the blob is
// deleted again so storage never holds audio no row points at.
// Acceptance does not depend on transcription: enqueueing is
// fire-and-forget.
func (o *Orchestrator) Upload(ctx context.Context, elderID int64, filename string, data []byte, contentType string) (*UploadResult, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if int64(len(data)) > o.opts.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, len(data), o.opts.MaxBytes)
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if !o.allowed[ext] {
		return nil, fmt.Errorf("%w: %q", ErrBadExtension, ext)
	}

	now := time.Now().UTC()
	recordID := uuid.NewString()
	key := fmt.Sprintf("%d/%s/%s.%s", elderID, repo.DateOf(now), recordID, ext)

	if err := o.opts.Store.Save(ctx, key, data, contentType); err != nil {
		return nil, fmt.Errorf("store audio: %w", err)
	}

	rec := &repo.Recording{
		ID:          recordID,
		ElderID:     elderID,
		CapturedAt:  now,
		AudioKey:    key,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		Status:      repo.StatusStored,
	}
	if err := o.opts.Recordings.Create(ctx, rec); err != nil {
		if delErr := o.opts.Store.Delete(ctx, key); delErr != nil {
			o.log.Error().Err(delErr).Str("key", key).Msg("orphan blob cleanup failed")
		}
		return nil, fmt.Errorf("create recording: %w", err)
	}

	if o.opts.Enqueue != nil && !o.opts.Enqueue(recordID) {
		o.log.Warn().Str("record_id", recordID).Msg("transcription queue full, deferring to sweep")
	}

	o.log.Info().
		Str("record_id", recordID).
		Int64("elder_id", elderID).
		Str("key", key).
		Int("bytes", len(data)).
		Msg("recording ingested")

	return &UploadResult{RecordID: recordID, Status: repo.StatusStored}, nil
}
