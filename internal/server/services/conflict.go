package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/theworldofobi/mini-dropbox/internal/common"
	"github.com/theworldofobi/mini-dropbox/internal/dbx"
	"github.com/theworldofobi/mini-dropbox/internal/server/keylock"
	"github.com/theworldofobi/mini-dropbox/internal/server/models"
	"github.com/theworldofobi/mini-dropbox/internal/server/repositories/repomanager"
)

// Resolution names the caller's choice when a conflict is surfaced. There is
// no content-aware merge: resolution is all-or-nothing per file, chosen
// explicitly by the caller, never applied automatically.
const (
	ResolutionLocal  = "local"
	ResolutionRemote = "remote"
)

// UpdateOutcome is the result of ProposeUpdate. Conflict is an expected
// outcome here, not an error: when Accepted is false, ServerVersion and
// ServerContentRef carry the state the client must reconcile against.
type UpdateOutcome struct {
	Accepted         bool
	NewVersion       int64
	ServerVersion    int64
	ServerContentRef string
}

// ConflictService decides whether a proposed update is a clean linear
// progression of a file or a divergence, and applies explicit resolutions.
type ConflictService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	ledger *Ledger
	locks  *keylock.KeyLock
}

func NewConflictService(db *sql.DB, repos repomanager.RepositoryManager, ledger *Ledger, locks *keylock.KeyLock) *ConflictService {
	return &ConflictService{db: db, repos: repos, ledger: ledger, locks: locks}
}

// ProposeUpdate checks clientBaseVersion against the file's current version
// under a per-file lock and a row lock, so two concurrent proposals can
// never both observe the same basis: the loser sees the winner's bump and
// gets a conflict.
//
//   - base == current: accepted, version bumped by exactly one.
//   - base < current:  conflict; nothing is mutated.
//   - base > current:  the client claims a version the server never assigned;
//     ErrInvalidState, a client-bug indicator.
//
// A retry after a timeout re-evaluates against current state, it never
// replays a cached decision.
func (s *ConflictService) ProposeUpdate(ctx context.Context, fileID string, clientBaseVersion int64, newContentRef string, size int64) (*UpdateOutcome, error) {
	if newContentRef == "" {
		return nil, fmt.Errorf("missing content ref: %w", common.ErrInvalidArgument)
	}

	s.locks.Lock(fileID)
	defer s.locks.Unlock(fileID)

	var outcome *UpdateOutcome
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		current, err := s.repos.Files(tx).GetByIDForUpdate(ctx, fileID)
		if err != nil {
			return err
		}

		switch {
		case clientBaseVersion == current.CurrentVersion:
			version, err := s.ledger.ApplyChange(ctx, tx, fileID, models.ChangeUpdate, newContentRef, size)
			if err != nil {
				return err
			}
			outcome = &UpdateOutcome{Accepted: true, NewVersion: version}
		case clientBaseVersion < current.CurrentVersion:
			outcome = &UpdateOutcome{
				Accepted:         false,
				ServerVersion:    current.CurrentVersion,
				ServerContentRef: current.ContentRef,
			}
		default:
			return fmt.Errorf("client base version %d ahead of server version %d: %w",
				clientBaseVersion, current.CurrentVersion, common.ErrInvalidState)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// ResolveConflict applies the caller's explicit choice for a diverged file.
//
// "remote" keeps the server's state: no mutation, the current version comes
// back and the client discards its local copy. "local" forces the client's
// content to become authoritative via a fresh version bump, strictly greater
// than whatever the server holds, regardless of how far apart the two sides
// had drifted. The client's content ref must be supplied explicitly on the
// call; it is never inferred from an earlier upload.
func (s *ConflictService) ResolveConflict(ctx context.Context, fileID, resolution, clientContentRef string, size int64) (int64, error) {
	switch resolution {
	case ResolutionRemote:
		file, err := s.repos.Files(s.db).GetByID(ctx, fileID)
		if err != nil {
			return 0, err
		}
		return file.CurrentVersion, nil

	case ResolutionLocal:
		if clientContentRef == "" {
			return 0, fmt.Errorf("local resolution requires a content ref: %w", common.ErrInvalidArgument)
		}

		s.locks.Lock(fileID)
		defer s.locks.Unlock(fileID)

		return s.ledger.RecordChange(ctx, fileID, models.ChangeUpdate, clientContentRef, size)

	default:
		return 0, fmt.Errorf("resolution %q: %w", resolution, common.ErrInvalidArgument)
	}
}
