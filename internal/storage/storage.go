package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/listen-engine/internal/config"
)

// ErrNotFound indicates no blob exists under the requested key.
var ErrNotFound = errors.New("audio not found")

// AudioStore abstracts audio blob storage backends. Keys are minted by
// the ingestion orchestrator ({elder_id}/{YYYY-MM-DD}/{uuid}.{ext}) and
// never reused, so every Save is effectively write-once.
type AudioStore interface {
	// Save durably stores audio data under key. It must not return
	// success before the blob is persisted.
	Save(ctx context.Context, key string, data []byte, contentType string) error

	// Open returns a reader for the blob, or ErrNotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the blob. Used only to compensate a failed
	// recording-row insert during ingestion.
	Delete(ctx context.Context, key string) error

	// Exists checks whether a blob exists under key.
	Exists(ctx context.Context, key string) bool

	// URL returns a presigned URL for the blob, or "" for local-only
	// backends.
	URL(ctx context.Context, key string) (string, error)

	// Type returns "local" or "s3".
	Type() string
}

// New creates an AudioStore based on config: local filesystem by
// default, S3 when a bucket is configured. Returns an error if S3 is
// configured but unreachable.
func New(cfg config.S3Config, audioDir string, log zerolog.Logger) (AudioStore, error) {
	if !cfg.Enabled() {
		return NewLocalStore(audioDir), nil
	}

	s3store, err := NewS3Store(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("S3 init failed: %w", err)
	}

	// Startup validation: verify credentials and bucket access.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		return nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.Bucket, cfg.Endpoint, err)
	}
	log.Info().Str("bucket", cfg.Bucket).Str("endpoint", cfg.Endpoint).Msg("S3 connection verified")

	return s3store, nil
}
