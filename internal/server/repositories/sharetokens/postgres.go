// Package sharetokens persists share-link capability tokens. Rows are kept
// for audit: revocation flips the revoked flag, nothing is ever deleted.
package sharetokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/theworldofobi/mini-dropbox/internal/common"
	"github.com/theworldofobi/mini-dropbox/internal/dbx"
	"github.com/theworldofobi/mini-dropbox/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new token row.
func (r *PostgresRepository) Create(ctx context.Context, token *models.ShareToken) error {
	query := `
		INSERT INTO share_tokens (id, file_id, permission, issued_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6);
	`
	_, err := r.db.ExecContext(ctx, query,
		token.ID, token.FileID, string(token.Permission), token.IssuedAt, token.ExpiresAt, token.Revoked)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByID returns the token row or ErrTokenNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.ShareToken, error) {
	query := `
		SELECT id, file_id, permission, issued_at, expires_at, revoked FROM share_tokens
		WHERE id = $1;
	`
	item := &models.ShareToken{}
	var permission string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&item.ID, &item.FileID, &permission, &item.IssuedAt, &item.ExpiresAt, &item.Revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrTokenNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	item.Permission = models.Permission(permission)
	return item, nil
}

// Revoke marks the token revoked. Revoking an already-revoked token matches
// the same row, so retries are idempotent; only an unknown id is an error.
func (r *PostgresRepository) Revoke(ctx context.Context, id string) error {
	query := `UPDATE share_tokens SET revoked = TRUE WHERE id = $1;`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	ra, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrTokenNotFound
	}
	return nil
}

// ListByOwner returns all tokens issued on files owned by ownerID.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.ShareToken, error) {
	query := `
		SELECT t.id, t.file_id, t.permission, t.issued_at, t.expires_at, t.revoked
		FROM share_tokens t
		JOIN files f ON f.id = t.file_id
		WHERE f.owner_id = $1
		ORDER BY t.issued_at;
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to select tokens: %w", err)
	}
	defer rows.Close()

	var result []*models.ShareToken
	for rows.Next() {
		var item models.ShareToken
		var permission string
		if err := rows.Scan(&item.ID, &item.FileID, &permission, &item.IssuedAt, &item.ExpiresAt, &item.Revoked); err != nil {
			return nil, err
		}
		item.Permission = models.Permission(permission)
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
