package services

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/theworldofobi/mini-dropbox/internal/common"
	"github.com/theworldofobi/mini-dropbox/internal/logging"
	"github.com/theworldofobi/mini-dropbox/internal/server/models"
	"github.com/theworldofobi/mini-dropbox/internal/server/repositories/repomanager"
)

// syncState tracks a single sync request through its lifecycle. State is
// request-scoped only, nothing is persisted between requests.
type syncState string

const (
	stateReceived   syncState = "RECEIVED"
	stateComputing  syncState = "COMPUTING_CHANGES"
	stateResponding syncState = "RESPONDING"
	stateDone       syncState = "DONE"
	stateRejected   syncState = "REJECTED"
)

const (
	retryBaseDelay  = 50 * time.Millisecond
	retryMaxAttempt = 3
)

// Coordinator orchestrates sync requests and file mutations across the
// ledger, change-set resolver, conflict detector and content store.
type Coordinator struct {
	db        *sql.DB
	repos     repomanager.RepositoryManager
	ledger    *Ledger
	resolver  *ChangeSetResolver
	conflicts *ConflictService
	shares    *ShareService
	store     ContentStore
	logger    logging.Logger
}

func NewCoordinator(db *sql.DB, repos repomanager.RepositoryManager, ledger *Ledger,
	resolver *ChangeSetResolver, conflicts *ConflictService, shares *ShareService,
	store ContentStore, logger logging.Logger) *Coordinator {
	return &Coordinator{
		db:        db,
		repos:     repos,
		ledger:    ledger,
		resolver:  resolver,
		conflicts: conflicts,
		shares:    shares,
		store:     store,
		logger:    logger,
	}
}

func (c *Coordinator) transition(ctx context.Context, from, to syncState) syncState {
	c.logger.Debug(ctx, "sync state transition", "from", string(from), "to", string(to))
	return to
}

// InitSync runs one sync round for ownerID. lastSyncTS is the client-held
// cursor in unix milliseconds; zero means initial sync (everything comes
// back as creates) and a negative value is rejected before any work is done.
func (c *Coordinator) InitSync(ctx context.Context, ownerID string, lastSyncTS int64) (*models.ChangeSet, error) {
	state := stateReceived
	if lastSyncTS < 0 {
		c.transition(ctx, state, stateRejected)
		return nil, fmt.Errorf("negative sync cursor %d: %w", lastSyncTS, common.ErrInvalidArgument)
	}

	var since time.Time
	if lastSyncTS > 0 {
		since = time.UnixMilli(lastSyncTS)
	}

	state = c.transition(ctx, state, stateComputing)
	changes, err := c.resolver.ComputeChanges(ctx, ownerID, since)
	if err != nil {
		return nil, err
	}

	state = c.transition(ctx, state, stateResponding)
	c.transition(ctx, state, stateDone)
	return changes, nil
}

// isTransient reports whether err is a commit-layer failure worth retrying.
// Outcome errors (not found, conflict-adjacent, argument validation) are
// deliberately excluded: retrying those cannot change the answer.
func isTransient(err error) bool {
	return errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone)
}

// retryWrite runs fn with bounded exponential backoff, retrying only
// transient store failures. fn must be atomic: either its transaction
// committed or nothing happened, so a retry never doubles a version bump.
func retryWrite(ctx context.Context, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(retryMaxAttempt, retry.NewExponential(retryBaseDelay))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && isTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// Upload stores the uploaded content and either creates a new file record or
// records a new version of the owner's existing file with the same name and
// folder. The blob is written before any metadata mutation; content refs are
// immutable once written, so a metadata failure leaves only an orphaned
// blob, never a half-updated record.
func (c *Coordinator) Upload(ctx context.Context, ownerID, name, folderID, key string, size int64, body io.Reader) (*models.FileRecord, error) {
	if name == "" {
		return nil, fmt.Errorf("missing file name: %w", common.ErrInvalidArgument)
	}
	if err := c.store.Put(ctx, key, body); err != nil {
		return nil, err
	}

	existing, err := c.repos.Files(c.db).FindByName(ctx, ownerID, name, folderID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	if existing == nil {
		file := &models.FileRecord{
			ID:         uuid.NewString(),
			OwnerID:    ownerID,
			Name:       name,
			FolderID:   folderID,
			ContentRef: key,
			Size:       size,
		}
		err = retryWrite(ctx, func(ctx context.Context) error {
			return c.ledger.CreateFile(ctx, file)
		})
		if err != nil {
			return nil, err
		}
		return file, nil
	}

	var version int64
	err = retryWrite(ctx, func(ctx context.Context) error {
		var rerr error
		version, rerr = c.ledger.RecordChange(ctx, existing.ID, models.ChangeUpdate, key, size)
		return rerr
	})
	if err != nil {
		return nil, err
	}
	existing.CurrentVersion = version
	existing.ContentRef = key
	existing.Size = size
	return existing, nil
}

// UploadByToken pushes a new version of a shared file on behalf of an
// anonymous holder of a WRITE token. The change is attributed to the file's
// owner; the holder supplies the base version they edited, so a stale push
// surfaces as a conflict exactly like an owner's would.
func (c *Coordinator) UploadByToken(ctx context.Context, tokenID string, baseVersion int64, key string, size int64, body io.Reader) (*models.FileRecord, *UpdateOutcome, error) {
	token, file, err := c.shares.Validate(ctx, tokenID)
	if err != nil {
		return nil, nil, err
	}
	if token.Permission != models.PermissionWrite {
		return nil, nil, fmt.Errorf("token grants %s only: %w", token.Permission, common.ErrPermissionDenied)
	}

	if err := c.store.Put(ctx, key, body); err != nil {
		return nil, nil, err
	}

	var outcome *UpdateOutcome
	err = retryWrite(ctx, func(ctx context.Context) error {
		var rerr error
		outcome, rerr = c.conflicts.ProposeUpdate(ctx, file.ID, baseVersion, key, size)
		return rerr
	})
	if err != nil {
		return nil, nil, err
	}
	return file, outcome, nil
}

// ProposeUpdate is the owner-facing conditional update. The caller must own
// the file; foreign files read as not found.
func (c *Coordinator) ProposeUpdate(ctx context.Context, ownerID, fileID string, baseVersion int64, key string, size int64, body io.Reader) (*UpdateOutcome, error) {
	if _, err := c.ownedFile(ctx, ownerID, fileID); err != nil {
		return nil, err
	}
	if err := c.store.Put(ctx, key, body); err != nil {
		return nil, err
	}

	var outcome *UpdateOutcome
	err := retryWrite(ctx, func(ctx context.Context) error {
		var rerr error
		outcome, rerr = c.conflicts.ProposeUpdate(ctx, fileID, baseVersion, key, size)
		return rerr
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// Resolve applies the owner's explicit conflict resolution.
func (c *Coordinator) Resolve(ctx context.Context, ownerID, fileID, resolution, clientContentRef string, size int64) (int64, error) {
	if _, err := c.ownedFile(ctx, ownerID, fileID); err != nil {
		return 0, err
	}

	var version int64
	err := retryWrite(ctx, func(ctx context.Context) error {
		var rerr error
		version, rerr = c.conflicts.ResolveConflict(ctx, fileID, resolution, clientContentRef, size)
		return rerr
	})
	return version, err
}

// Download returns the file record and a presigned URL for its current
// content. Tombstoned files are gone as far as downloads are concerned.
func (c *Coordinator) Download(ctx context.Context, ownerID, fileID string) (*models.FileRecord, string, error) {
	file, err := c.ownedFile(ctx, ownerID, fileID)
	if err != nil {
		return nil, "", err
	}
	if file.Deleted() {
		return nil, "", common.ErrNotFound
	}
	url, err := c.store.PresignGet(ctx, file.ContentRef)
	if err != nil {
		return nil, "", err
	}
	return file, url, nil
}

// ListFiles returns the owner's live files.
func (c *Coordinator) ListFiles(ctx context.Context, ownerID string) ([]*models.FileRecord, error) {
	return c.repos.Files(c.db).SelectLiveByOwner(ctx, ownerID)
}

// Delete tombstones a file. The record and its history stay; only the
// deleted marker is set, through a regular ledger change so the deletion
// flows to other clients on their next sync. Deleting an already tombstoned
// file is a no-op returning the current version.
func (c *Coordinator) Delete(ctx context.Context, ownerID, fileID string) (int64, error) {
	file, err := c.ownedFile(ctx, ownerID, fileID)
	if err != nil {
		return 0, err
	}
	if file.Deleted() {
		return file.CurrentVersion, nil
	}

	var version int64
	err = retryWrite(ctx, func(ctx context.Context) error {
		var rerr error
		version, rerr = c.ledger.RecordChange(ctx, fileID, models.ChangeDelete, "", 0)
		return rerr
	})
	return version, err
}

func (c *Coordinator) ownedFile(ctx context.Context, ownerID, fileID string) (*models.FileRecord, error) {
	file, err := c.repos.Files(c.db).GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.OwnerID != ownerID {
		return nil, common.ErrNotFound
	}
	return file, nil
}
