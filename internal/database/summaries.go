package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/snarg/listen-engine/internal/repo"
)

// Summaries returns the Postgres-backed SummaryRepo.
func (db *DB) Summaries() repo.SummaryRepo { return &pgSummaries{db} }

type pgSummaries struct{ db *DB }

func (p *pgSummaries) Get(ctx context.Context, elderID int64, date string) (*repo.SummaryArtifact, error) {
	var a repo.SummaryArtifact
	err := p.db.Pool.QueryRow(ctx, `
		SELECT elder_id, date, summary, physical_status, psychological_needs,
			advice, generated_at, source_record_ids, version
		FROM summaries
		WHERE elder_id = $1 AND date = $2
	`, elderID, date).Scan(
		&a.ElderID, &a.Date, &a.Summary, &a.PhysicalStatus, &a.PsychologicalNeeds,
		&a.Advice, &a.GeneratedAt, &a.SourceRecordIDs, &a.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}
	return &a, nil
}

// Save replaces the current artifact only if its version still matches
// what the caller read. The INSERT path covers "no artifact yet"
// (expectedVersion 0); the conditional UPDATE in the conflict clause is
// the optimistic-concurrency check for recomputation races.
func (p *pgSummaries) Save(ctx context.Context, a *repo.SummaryArtifact, expectedVersion int64) error {
	tag, err := p.db.Pool.Exec(ctx, `
		INSERT INTO summaries (elder_id, date, summary, physical_status,
			psychological_needs, advice, generated_at, source_record_ids, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (elder_id, date) DO UPDATE
		SET summary = EXCLUDED.summary,
			physical_status = EXCLUDED.physical_status,
			psychological_needs = EXCLUDED.psychological_needs,
			advice = EXCLUDED.advice,
			generated_at = EXCLUDED.generated_at,
			source_record_ids = EXCLUDED.source_record_ids,
			version = EXCLUDED.version
		WHERE summaries.version = $10
	`,
		a.ElderID, a.Date, a.Summary, a.PhysicalStatus,
		a.PsychologicalNeeds, a.Advice, a.GeneratedAt, a.SourceRecordIDs, a.Version,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrVersionConflict
	}
	return nil
}
