package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/snarg/listen-engine/internal/repo"
)

// Transcripts returns the Postgres-backed TranscriptRepo.
func (db *DB) Transcripts() repo.TranscriptRepo { return &pgTranscripts{db} }

type pgTranscripts struct{ db *DB }

// Put upserts on record_id: a transcription retry replaces the prior
// text rather than adding a second row.
func (p *pgTranscripts) Put(ctx context.Context, t *repo.Transcript) error {
	_, err := p.db.Pool.Exec(ctx, `
		INSERT INTO transcripts (record_id, text, confidence, produced_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (record_id) DO UPDATE
		SET text = EXCLUDED.text,
			confidence = EXCLUDED.confidence,
			produced_at = EXCLUDED.produced_at
	`, t.RecordID, t.Text, t.Confidence, t.ProducedAt)
	if err != nil {
		return fmt.Errorf("put transcript: %w", err)
	}
	return nil
}

func (p *pgTranscripts) Get(ctx context.Context, recordID string) (*repo.Transcript, error) {
	var t repo.Transcript
	err := p.db.Pool.QueryRow(ctx, `
		SELECT record_id, text, confidence, produced_at
		FROM transcripts
		WHERE record_id = $1
	`, recordID).Scan(&t.RecordID, &t.Text, &t.Confidence, &t.ProducedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transcript: %w", err)
	}
	return &t, nil
}

func (p *pgTranscripts) ListForDay(ctx context.Context, elderID int64, date string) ([]repo.DayTranscript, error) {
	rows, err := p.db.Pool.Query(ctx, `
		SELECT t.record_id, r.captured_at, t.text
		FROM transcripts t
		JOIN recordings r ON r.id = t.record_id
		WHERE r.elder_id = $1
			AND r.status = 'transcribed'
			AND to_char(r.captured_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') = $2
		ORDER BY r.captured_at
	`, elderID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []repo.DayTranscript
	for rows.Next() {
		var dt repo.DayTranscript
		if err := rows.Scan(&dt.RecordID, &dt.CapturedAt, &dt.Text); err != nil {
			return nil, err
		}
		result = append(result, dt)
	}
	return result, rows.Err()
}
