// Package services contains the server-side sync and sharing engine: the
// version ledger, change-set resolver, conflict policy, share-token service,
// and the coordinator that orchestrates them per request.
package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/theworldofobi/mini-dropbox/internal/common"
	"github.com/theworldofobi/mini-dropbox/internal/dbx"
	"github.com/theworldofobi/mini-dropbox/internal/server/models"
	"github.com/theworldofobi/mini-dropbox/internal/server/repositories/repomanager"
)

// Ledger owns the version state of every file: the monotonic current_version
// on the file record and the append-only history behind it. All accepted
// changes go through the ledger; nothing else writes versions.
type Ledger struct {
	db    *sql.DB
	repos repomanager.RepositoryManager
}

func NewLedger(db *sql.DB, repos repomanager.RepositoryManager) *Ledger {
	return &Ledger{db: db, repos: repos}
}

// CreateFile registers a new file record at version 1 and appends the
// matching create history entry, in one transaction.
func (l *Ledger) CreateFile(ctx context.Context, file *models.FileRecord) error {
	return dbx.WithTx(ctx, l.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := l.repos.Files(tx).Create(ctx, file); err != nil {
			return err
		}
		return l.repos.History(tx).Append(ctx, &models.VersionHistoryEntry{
			FileID:     file.ID,
			Version:    file.CurrentVersion,
			ContentRef: file.ContentRef,
			Kind:       models.ChangeCreate,
			ModifiedAt: file.ModifiedAt,
		})
	})
}

// ApplyChange performs the version bump and history append for an existing
// file using the caller's transaction handle. The single UPDATE on the file
// row serializes concurrent writers of one file; the history row is written
// in the same transaction so a reader can never observe a version without
// its entry.
func (l *Ledger) ApplyChange(ctx context.Context, tx dbx.DBTX, fileID string, kind models.ChangeKind, contentRef string, size int64) (int64, error) {
	if kind != models.ChangeUpdate && kind != models.ChangeDelete {
		return 0, fmt.Errorf("change kind %q: %w", kind, common.ErrInvalidArgument)
	}

	version, modifiedAt, err := l.repos.Files(tx).IncrementVersion(ctx, fileID, contentRef, size, kind == models.ChangeDelete)
	if err != nil {
		return 0, err
	}

	err = l.repos.History(tx).Append(ctx, &models.VersionHistoryEntry{
		FileID:     fileID,
		Version:    version,
		ContentRef: contentRef,
		Kind:       kind,
		ModifiedAt: modifiedAt,
	})
	if err != nil {
		return 0, err
	}

	return version, nil
}

// RecordChange atomically assigns the next version for fileID: either the
// whole bump commits (file row and history entry together) or nothing does,
// which is what makes a timed-out call safe to retry.
func (l *Ledger) RecordChange(ctx context.Context, fileID string, kind models.ChangeKind, contentRef string, size int64) (int64, error) {
	var version int64
	err := dbx.WithTx(ctx, l.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var applyErr error
		version, applyErr = l.ApplyChange(ctx, tx, fileID, kind, contentRef, size)
		return applyErr
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

// CurrentVersion returns the current version for fileID. Tombstoned records
// still resolve; only an unknown id yields ErrNotFound.
func (l *Ledger) CurrentVersion(ctx context.Context, fileID string) (int64, error) {
	file, err := l.repos.Files(l.db).GetByID(ctx, fileID)
	if err != nil {
		return 0, err
	}
	return file.CurrentVersion, nil
}

// HistorySince returns all history entries for fileID with version greater
// than afterVersion, ascending. The file row and the history scan are read
// in one read-only transaction so the returned entries always reach the
// record's current version (no torn read).
func (l *Ledger) HistorySince(ctx context.Context, fileID string, afterVersion int64) ([]*models.VersionHistoryEntry, error) {
	var entries []*models.VersionHistoryEntry
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	err := dbx.WithTx(ctx, l.db, opts, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := l.repos.Files(tx).GetByID(ctx, fileID); err != nil {
			return err
		}
		var selErr error
		entries, selErr = l.repos.History(tx).SelectSince(ctx, fileID, afterVersion)
		return selErr
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
