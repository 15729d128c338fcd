package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/theworldofobi/mini-dropbox/internal/common"
	"github.com/theworldofobi/mini-dropbox/internal/dbx"
	"github.com/theworldofobi/mini-dropbox/internal/server/models"
)

const selectColumns = `id, owner_id, name, folder_id, current_version, content_ref, size, created_at, modified_at, deleted_at`

// PostgresRepository implements file metadata storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new file record at version 1 and fills in the
// server-assigned timestamps.
func (r *PostgresRepository) Create(ctx context.Context, file *models.FileRecord) error {
	query := `
		INSERT INTO files (id, owner_id, name, folder_id, current_version, content_ref, size)
		VALUES ($1, $2, $3, $4, 1, $5, $6)
		RETURNING created_at, modified_at;
	`
	err := r.db.QueryRowContext(ctx, query,
		file.ID, file.OwnerID, file.Name, file.FolderID, file.ContentRef, file.Size).
		Scan(&file.CreatedAt, &file.ModifiedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	file.CurrentVersion = 1
	return nil
}

func (r *PostgresRepository) get(ctx context.Context, query, arg string, args ...any) (*models.FileRecord, error) {
	item := &models.FileRecord{}
	allArgs := append([]any{arg}, args...)
	err := r.db.QueryRowContext(ctx, query, allArgs...).Scan(
		&item.ID, &item.OwnerID, &item.Name, &item.FolderID, &item.CurrentVersion,
		&item.ContentRef, &item.Size, &item.CreatedAt, &item.ModifiedAt, &item.DeletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return item, nil
}

// GetByID returns the record for id, tombstones included.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.FileRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM files WHERE id = $1`
	return r.get(ctx, query, id)
}

// GetByIDForUpdate is GetByID with a row lock, for use inside a transaction
// that decides on and then applies a version bump.
func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.FileRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM files WHERE id = $1 FOR UPDATE`
	return r.get(ctx, query, id)
}

// FindByName returns the live (non-tombstoned) record matching owner, name
// and folder, or ErrNotFound.
func (r *PostgresRepository) FindByName(ctx context.Context, ownerID, name, folderID string) (*models.FileRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM files
		WHERE owner_id = $1 AND name = $2 AND folder_id = $3 AND deleted_at IS NULL`
	return r.get(ctx, query, ownerID, name, folderID)
}

// IncrementVersion atomically bumps current_version by one, pointing the
// record at contentRef (when non-empty) and stamping modified_at. When
// tombstone is set, deleted_at is stamped; otherwise it is cleared, so an
// accepted update on a tombstoned record revives it. The single UPDATE is
// the linearization point for all writers of one file.
func (r *PostgresRepository) IncrementVersion(ctx context.Context, id, contentRef string, size int64, tombstone bool) (int64, time.Time, error) {
	query := `
		UPDATE files SET
			current_version = current_version + 1,
			content_ref = CASE WHEN $2 <> '' THEN $2 ELSE content_ref END,
			size = CASE WHEN $2 <> '' AND $3 > 0 THEN $3 ELSE size END,
			modified_at = now(),
			deleted_at = CASE WHEN $4 THEN now() ELSE NULL END
		WHERE id = $1
		RETURNING current_version, modified_at;
	`
	var version int64
	var modifiedAt time.Time
	err := r.db.QueryRowContext(ctx, query, id, contentRef, size, tombstone).Scan(&version, &modifiedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, time.Time{}, common.ErrNotFound
		}
		return 0, time.Time{}, fmt.Errorf("db error: %w", err)
	}
	return version, modifiedAt, nil
}

func (r *PostgresRepository) selectMany(ctx context.Context, query string, args ...any) ([]*models.FileRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.FileRecord
	for rows.Next() {
		var item models.FileRecord
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.Name, &item.FolderID, &item.CurrentVersion,
			&item.ContentRef, &item.Size, &item.CreatedAt, &item.ModifiedAt, &item.DeletedAt); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SelectChangedSince returns all records for ownerID with modified_at after
// since, tombstones included, ordered by modification time.
func (r *PostgresRepository) SelectChangedSince(ctx context.Context, ownerID string, since time.Time) ([]*models.FileRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM files
		WHERE owner_id = $1 AND modified_at > $2
		ORDER BY modified_at, id`
	return r.selectMany(ctx, query, ownerID, since)
}

// SelectLiveByOwner returns all non-tombstoned records for ownerID.
func (r *PostgresRepository) SelectLiveByOwner(ctx context.Context, ownerID string) ([]*models.FileRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM files
		WHERE owner_id = $1 AND deleted_at IS NULL
		ORDER BY modified_at, id`
	return r.selectMany(ctx, query, ownerID)
}
