package repo

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared by all repository implementations.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict indicates a summary write lost an optimistic
	// concurrency race; the caller should re-read the current artifact.
	ErrVersionConflict = errors.New("version conflict")
)

// Role is the account role chosen at first login.
type Role string

const (
	RoleElder     Role = "elder"
	RoleCaregiver Role = "caregiver"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleElder || r == RoleCaregiver
}

// Account binds an external login identity to a stable account ID.
// Immutable after creation.
type Account struct {
	ID         int64
	ExternalID string // opaque ID from the login provider
	Role       Role
	CreatedAt  time.Time
}

// RecordingStatus is the processing state of one uploaded recording.
// Transitions are monotone: stored → transcribing → transcribed or
// transcription_failed. A failed recording may re-enter transcribing.
type RecordingStatus string

const (
	StatusStored       RecordingStatus = "stored"
	StatusTranscribing RecordingStatus = "transcribing"
	StatusTranscribed  RecordingStatus = "transcribed"
	StatusFailed       RecordingStatus = "transcription_failed"
)

// Recording is one uploaded audio unit and its processing state.
// The audio bytes themselves live in the audio store under AudioKey.
type Recording struct {
	ID          string // server-minted UUID
	ElderID     int64
	CapturedAt  time.Time
	AudioKey    string
	ContentType string
	SizeBytes   int64
	Status      RecordingStatus
	LastError   string // most recent transcription error, if any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Transcript is the speech-to-text output for one recording, 1:1 with
// Recording. A retry replaces the prior transcript for the same record.
type Transcript struct {
	RecordID   string
	Text       string
	Confidence *float32
	ProducedAt time.Time
}

// DayTranscript is a transcript joined with its recording's capture time,
// used by the summary aggregator to fold a day in order.
type DayTranscript struct {
	RecordID   string
	CapturedAt time.Time
	Text       string
}

// SummaryArtifact is the cached per-(elder, date) structured digest.
// Version strictly increases on every recomputation so stale concurrent
// writes can be detected and discarded.
type SummaryArtifact struct {
	ElderID            int64
	Date               string // YYYY-MM-DD
	Summary            string
	PhysicalStatus     string
	PsychologicalNeeds string
	Advice             string
	GeneratedAt        time.Time
	SourceRecordIDs    []string
	Version            int64
}

// AccountRepo stores login identities.
type AccountRepo interface {
	// FindByExternalID returns the account bound to an external identity,
	// or ErrNotFound.
	FindByExternalID(ctx context.Context, externalID string) (*Account, error)

	// Create mints a new account for a never-seen external identity.
	// Creating an already-bound identity returns the existing account.
	Create(ctx context.Context, externalID string, role Role) (*Account, error)
}

// RecordingRepo stores recording metadata and drives the status machine.
// The transcription worker is the only caller of Claim, MarkTranscribed
// and MarkFailed; no other component mutates status.
type RecordingRepo interface {
	Create(ctx context.Context, rec *Recording) error
	Get(ctx context.Context, id string) (*Recording, error)

	// ListByElder returns recordings for an elder, newest first, plus the
	// total count.
	ListByElder(ctx context.Context, elderID int64, limit, offset int) ([]Recording, int, error)

	// ListRetryable returns recordings in stored or transcription_failed
	// state, oldest first, for the retry sweep.
	ListRetryable(ctx context.Context, limit int) ([]Recording, error)

	// Claim conditionally transitions stored/transcription_failed →
	// transcribing. Returns false if the recording is already transcribing
	// or transcribed; exactly one of several concurrent claimers wins.
	Claim(ctx context.Context, id string) (bool, error)

	// MarkTranscribed transitions transcribing → transcribed.
	MarkTranscribed(ctx context.Context, id string) error

	// MarkFailed transitions transcribing → transcription_failed and
	// records the error message.
	MarkFailed(ctx context.Context, id string, errMsg string) error

	// ResetInFlight moves every transcribing recording back to
	// transcription_failed. Called once at startup; a recording can only
	// still be transcribing then if a previous process died mid-job.
	ResetInFlight(ctx context.Context) (int64, error)
}

// TranscriptRepo stores transcription results keyed by record ID.
type TranscriptRepo interface {
	// Put inserts or replaces the transcript for a record.
	Put(ctx context.Context, t *Transcript) error

	Get(ctx context.Context, recordID string) (*Transcript, error)

	// ListForDay returns transcripts whose recording belongs to the elder,
	// was captured on the given date (UTC), and is in transcribed state,
	// ordered by captured_at ascending.
	ListForDay(ctx context.Context, elderID int64, date string) ([]DayTranscript, error)
}

// SummaryRepo stores the current summary artifact per (elder, date).
type SummaryRepo interface {
	// Get returns the current artifact for the key, or ErrNotFound.
	Get(ctx context.Context, elderID int64, date string) (*SummaryArtifact, error)

	// Save persists the artifact, replacing the current one for the key.
	// expectedVersion is the version the caller read before recomputing
	// (0 when no artifact existed); if the stored version no longer
	// matches, Save returns ErrVersionConflict and stores nothing.
	Save(ctx context.Context, a *SummaryArtifact, expectedVersion int64) error
}

// DateOf formats a capture time as the UTC calendar date used to key
// summaries and audio paths.
func DateOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
