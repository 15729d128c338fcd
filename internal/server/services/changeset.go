package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/theworldofobi/mini-dropbox/internal/dbx"
	"github.com/theworldofobi/mini-dropbox/internal/server/models"
	"github.com/theworldofobi/mini-dropbox/internal/server/repositories/repomanager"
)

// ChangeSetResolver answers "what changed since T" for one owner. The whole
// computation runs inside a single read-only snapshot transaction, so a
// concurrent writer either lands entirely inside the answer or entirely
// outside it, never partially.
type ChangeSetResolver struct {
	db    *sql.DB
	repos repomanager.RepositoryManager
}

func NewChangeSetResolver(db *sql.DB, repos repomanager.RepositoryManager) *ChangeSetResolver {
	return &ChangeSetResolver{db: db, repos: repos}
}

// ComputeChanges classifies every record of ownerID modified after since
// into creates, updates, and deletes. A zero since means initial sync: the
// full live file set comes back as creates.
//
// Deletes carry tombstone ids only. A record that was created and deleted
// entirely after since is skipped: the client never saw it, so there is
// nothing to remove.
func (r *ChangeSetResolver) ComputeChanges(ctx context.Context, ownerID string, since time.Time) (*models.ChangeSet, error) {
	result := &models.ChangeSet{}

	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	err := dbx.WithTx(ctx, r.db, opts, func(ctx context.Context, tx dbx.DBTX) error {
		fileRepo := r.repos.Files(tx)

		if since.IsZero() {
			live, err := fileRepo.SelectLiveByOwner(ctx, ownerID)
			if err != nil {
				return err
			}
			result.Creates = live
			return nil
		}

		changed, err := fileRepo.SelectChangedSince(ctx, ownerID, since)
		if err != nil {
			return err
		}

		for _, f := range changed {
			switch {
			case f.Deleted():
				if f.CreatedAt.After(since) {
					continue
				}
				result.Deletes = append(result.Deletes, f.ID)
			case f.CreatedAt.After(since):
				result.Creates = append(result.Creates, f)
			default:
				result.Updates = append(result.Updates, f)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
