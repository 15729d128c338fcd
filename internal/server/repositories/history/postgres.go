// Package history persists the append-only version history of file records.
// Rows are immutable: there is no update or delete path, only Append and
// range reads.
package history

import (
	"context"
	"fmt"

	"github.com/theworldofobi/mini-dropbox/internal/dbx"
	"github.com/theworldofobi/mini-dropbox/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Append inserts one history entry. The (file_id, version) primary key
// rejects duplicates, so a version number can never be recorded twice.
func (r *PostgresRepository) Append(ctx context.Context, entry *models.VersionHistoryEntry) error {
	query := `
		INSERT INTO file_versions (file_id, version, content_ref, change_kind, modified_at)
		VALUES ($1, $2, $3, $4, $5);
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.FileID, entry.Version, entry.ContentRef, string(entry.Kind), entry.ModifiedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// SelectSince returns all entries for fileID with version > afterVersion,
// ascending by version.
func (r *PostgresRepository) SelectSince(ctx context.Context, fileID string, afterVersion int64) ([]*models.VersionHistoryEntry, error) {
	query := `
		SELECT file_id, version, content_ref, change_kind, modified_at FROM file_versions
		WHERE file_id = $1 AND version > $2
		ORDER BY version;
	`
	rows, err := r.db.QueryContext(ctx, query, fileID, afterVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to select history: %w", err)
	}
	defer rows.Close()

	var result []*models.VersionHistoryEntry
	for rows.Next() {
		var item models.VersionHistoryEntry
		var kind string
		if err := rows.Scan(&item.FileID, &item.Version, &item.ContentRef, &kind, &item.ModifiedAt); err != nil {
			return nil, err
		}
		item.Kind = models.ChangeKind(kind)
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
