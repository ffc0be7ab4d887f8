package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/snarg/listen-engine/internal/repo"
)

// Recordings returns the Postgres-backed RecordingRepo.
func (db *DB) Recordings() repo.RecordingRepo { return &pgRecordings{db} }

type pgRecordings struct{ db *DB }

const recordingCols = `id, elder_id, captured_at, audio_key, content_type,
	size_bytes, status, last_error, created_at, updated_at`

func scanRecording(row pgx.Row, r *repo.Recording) error {
	return row.Scan(
		&r.ID, &r.ElderID, &r.CapturedAt, &r.AudioKey, &r.ContentType,
		&r.SizeBytes, &r.Status, &r.LastError, &r.CreatedAt, &r.UpdatedAt,
	)
}

func (p *pgRecordings) Create(ctx context.Context, rec *repo.Recording) error {
	_, err := p.db.Pool.Exec(ctx, `
		INSERT INTO recordings (id, elder_id, captured_at, audio_key, content_type, size_bytes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.ElderID, rec.CapturedAt, rec.AudioKey, rec.ContentType, rec.SizeBytes, rec.Status)
	if err != nil {
		return fmt.Errorf("insert recording: %w", err)
	}
	return nil
}

func (p *pgRecordings) Get(ctx context.Context, id string) (*repo.Recording, error) {
	var r repo.Recording
	err := scanRecording(p.db.Pool.QueryRow(ctx,
		`SELECT `+recordingCols+` FROM recordings WHERE id = $1`, id), &r)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recording: %w", err)
	}
	return &r, nil
}

func (p *pgRecordings) ListByElder(ctx context.Context, elderID int64, limit, offset int) ([]repo.Recording, int, error) {
	var total int
	if err := p.db.Pool.QueryRow(ctx,
		`SELECT count(*) FROM recordings WHERE elder_id = $1`, elderID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 20
	}
	rows, err := p.db.Pool.Query(ctx, `
		SELECT `+recordingCols+`
		FROM recordings
		WHERE elder_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, elderID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	result := []repo.Recording{}
	for rows.Next() {
		var r repo.Recording
		if err := scanRecording(rows, &r); err != nil {
			return nil, 0, err
		}
		result = append(result, r)
	}
	return result, total, rows.Err()
}

func (p *pgRecordings) ListRetryable(ctx context.Context, limit int) ([]repo.Recording, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.Pool.Query(ctx, `
		SELECT `+recordingCols+`
		FROM recordings
		WHERE status IN ('stored', 'transcription_failed')
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []repo.Recording
	for rows.Next() {
		var r repo.Recording
		if err := scanRecording(rows, &r); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// Claim is a conditional update: the WHERE clause on status makes it a
// compare-and-swap, so of N concurrent claimers exactly one sees a row
// affected and the rest observe the recording already in flight.
func (p *pgRecordings) Claim(ctx context.Context, id string) (bool, error) {
	tag, err := p.db.Pool.Exec(ctx, `
		UPDATE recordings
		SET status = 'transcribing', updated_at = now()
		WHERE id = $1 AND status IN ('stored', 'transcription_failed')
	`, id)
	if err != nil {
		return false, fmt.Errorf("claim recording: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	// Distinguish "already claimed" from "no such recording".
	var exists bool
	if err := p.db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM recordings WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, repo.ErrNotFound
	}
	return false, nil
}

func (p *pgRecordings) MarkTranscribed(ctx context.Context, id string) error {
	return p.finish(ctx, id, repo.StatusTranscribed, "")
}

func (p *pgRecordings) MarkFailed(ctx context.Context, id string, errMsg string) error {
	return p.finish(ctx, id, repo.StatusFailed, errMsg)
}

func (p *pgRecordings) ResetInFlight(ctx context.Context) (int64, error) {
	tag, err := p.db.Pool.Exec(ctx, `
		UPDATE recordings
		SET status = 'transcription_failed', last_error = 'interrupted by restart', updated_at = now()
		WHERE status = 'transcribing'
	`)
	if err != nil {
		return 0, fmt.Errorf("reset in-flight recordings: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *pgRecordings) finish(ctx context.Context, id string, status repo.RecordingStatus, errMsg string) error {
	tag, err := p.db.Pool.Exec(ctx, `
		UPDATE recordings
		SET status = $2, last_error = $3, updated_at = now()
		WHERE id = $1 AND status = 'transcribing'
	`, id, status, errMsg)
	if err != nil {
		return fmt.Errorf("finish recording: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}
