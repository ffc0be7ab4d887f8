package database

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS accounts (
    id          bigserial PRIMARY KEY,
    external_id text NOT NULL UNIQUE,
    role        text NOT NULL CHECK (role IN ('elder', 'caregiver')),
    created_at  timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS recordings (
    id           text PRIMARY KEY,
    elder_id     bigint NOT NULL REFERENCES accounts(id),
    captured_at  timestamptz NOT NULL,
    audio_key    text NOT NULL,
    content_type text NOT NULL DEFAULT '',
    size_bytes   bigint NOT NULL DEFAULT 0,
    status       text NOT NULL DEFAULT 'stored'
        CHECK (status IN ('stored', 'transcribing', 'transcribed', 'transcription_failed')),
    last_error   text NOT NULL DEFAULT '',
    created_at   timestamptz NOT NULL DEFAULT now(),
    updated_at   timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_recordings_elder_captured
    ON recordings (elder_id, captured_at);
CREATE INDEX IF NOT EXISTS idx_recordings_retryable
    ON recordings (created_at) WHERE status IN ('stored', 'transcription_failed');

CREATE TABLE IF NOT EXISTS transcripts (
    record_id   text PRIMARY KEY REFERENCES recordings(id),
    text        text NOT NULL,
    confidence  real,
    produced_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS summaries (
    elder_id            bigint NOT NULL,
    date                text NOT NULL,
    summary             text NOT NULL DEFAULT '',
    physical_status     text NOT NULL DEFAULT '',
    psychological_needs text NOT NULL DEFAULT '',
    advice              text NOT NULL DEFAULT '',
    generated_at        timestamptz NOT NULL DEFAULT now(),
    source_record_ids   text[] NOT NULL DEFAULT '{}',
    version             bigint NOT NULL DEFAULT 1,
    PRIMARY KEY (elder_id, date)
);
`

// InitSchema applies the schema. Every statement is idempotent, so
// re-running on an initialized database is a no-op.
func (db *DB) InitSchema(ctx context.Context) error {
	db.log.Debug().Msg("applying schema")
	if _, err := db.Pool.Exec(ctx, schemaSQL); err != nil {
		return err
	}
	db.log.Info().Msg("schema ready")
	return nil
}
