package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/snarg/listen-engine/internal/repo"
)

// Accounts returns the Postgres-backed AccountRepo.
func (db *DB) Accounts() repo.AccountRepo { return &pgAccounts{db} }

type pgAccounts struct{ db *DB }

func (a *pgAccounts) FindByExternalID(ctx context.Context, externalID string) (*repo.Account, error) {
	var acc repo.Account
	err := a.db.Pool.QueryRow(ctx, `
		SELECT id, external_id, role, created_at
		FROM accounts
		WHERE external_id = $1
	`, externalID).Scan(&acc.ID, &acc.ExternalID, &acc.Role, &acc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	return &acc, nil
}

func (a *pgAccounts) Create(ctx context.Context, externalID string, role repo.Role) (*repo.Account, error) {
	// ON CONFLICT DO NOTHING + re-select makes concurrent first logins for
	// the same external identity converge on one account.
	_, err := a.db.Pool.Exec(ctx, `
		INSERT INTO accounts (external_id, role)
		VALUES ($1, $2)
		ON CONFLICT (external_id) DO NOTHING
	`, externalID, role)
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return a.FindByExternalID(ctx, externalID)
}
