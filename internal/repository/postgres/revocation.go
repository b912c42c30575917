package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/galasfoundry/mooch-auth/internal/model"
)

var _ model.RevocationFallback = (*RevocationRepository)(nil)

// RevocationRepository is the persistent backstop behind the cache-backed
// revocation store.
type RevocationRepository struct {
	db *Connection
}

func NewRevocationRepository(db *Connection) *RevocationRepository {
	return &RevocationRepository{db: db}
}

func (r *RevocationRepository) Insert(ctx context.Context, entry model.RevocationEntry) error {
	const query = `
        INSERT INTO revocations (jti, expires_at, revoked_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (jti) DO NOTHING
    `
	if _, err := r.db.Exec(ctx, query, entry.JTI, entry.ExpiresAt, entry.RevokedAt); err != nil {
		return fmt.Errorf("failed to insert revocation: %w", err)
	}
	return nil
}

func (r *RevocationRepository) Contains(ctx context.Context, jti string, now time.Time) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM revocations WHERE jti = $1 AND expires_at > $2)`

	var revoked bool
	if err := r.db.QueryRow(ctx, query, jti, now).Scan(&revoked); err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return revoked, nil
}

func (r *RevocationRepository) ListLive(ctx context.Context, now time.Time) ([]model.RevocationEntry, error) {
	const query = `SELECT jti, expires_at, revoked_at FROM revocations WHERE expires_at > $1`

	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list revocations: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

func (r *RevocationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM revocations WHERE expires_at < $1`

	tag, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired revocations: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectEntries(rows pgx.Rows) ([]model.RevocationEntry, error) {
	var entries []model.RevocationEntry
	for rows.Next() {
		var entry model.RevocationEntry
		if err := rows.Scan(&entry.JTI, &entry.ExpiresAt, &entry.RevokedAt); err != nil {
			return nil, fmt.Errorf("failed to scan revocation: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read revocations: %w", err)
	}
	return entries, nil
}
