package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/theworldofobi/mini-dropbox/internal/common"
	"github.com/theworldofobi/mini-dropbox/internal/dbx"
	"github.com/theworldofobi/mini-dropbox/internal/server/models"
	"github.com/theworldofobi/mini-dropbox/internal/server/repositories/repomanager"
	"github.com/theworldofobi/mini-dropbox/internal/shared"
)

// tokenByteLen is half the hex length of a share token id. 16 random bytes
// give a 32-character token, plenty against guessing.
const tokenByteLen = 16

// ContentStore abstracts the blob backend so the service layer never touches
// S3 types directly.
type ContentStore interface {
	Put(ctx context.Context, key string, body io.Reader) error
	PresignGet(ctx context.Context, key string) (string, error)
}

// ShareService issues, validates, revokes and lists share tokens. Token
// validation is stateless with respect to the holder: possession of a valid
// token is the entire credential.
type ShareService struct {
	db             dbx.DBTX
	repos          repomanager.RepositoryManager
	store          ContentStore
	defaultTTLDays int
	now            func() time.Time
}

func NewShareService(db dbx.DBTX, repos repomanager.RepositoryManager, store ContentStore, defaultTTLDays int) *ShareService {
	return &ShareService{db: db, repos: repos, store: store, defaultTTLDays: defaultTTLDays, now: time.Now}
}

// DefaultTTLDays reports the expiry applied when Issue is called without an
// explicit ttl.
func (s *ShareService) DefaultTTLDays() int { return s.defaultTTLDays }

// ownedFile loads fileID and checks that ownerID owns it. A file belonging
// to someone else reads as not found rather than denied, so callers cannot
// probe for foreign file ids.
func (s *ShareService) ownedFile(ctx context.Context, ownerID, fileID string) (*models.FileRecord, error) {
	file, err := s.repos.Files(s.db).GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.OwnerID != ownerID {
		return nil, common.ErrNotFound
	}
	return file, nil
}

// Issue mints a share token for fileID at the given permission level.
// ttlDays of nil means the configured default; an explicit value must be a
// positive number of days.
func (s *ShareService) Issue(ctx context.Context, ownerID, fileID string, permission models.Permission, ttlDays *int) (*models.ShareToken, error) {
	if !permission.Valid() {
		return nil, fmt.Errorf("permission %q: %w", permission, common.ErrInvalidArgument)
	}
	ttl := s.defaultTTLDays
	if ttlDays != nil {
		if *ttlDays <= 0 {
			return nil, fmt.Errorf("ttl_days %d: %w", *ttlDays, common.ErrInvalidArgument)
		}
		ttl = *ttlDays
	}

	file, err := s.ownedFile(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}
	if file.Deleted() {
		return nil, common.ErrNotFound
	}

	id, err := shared.MakeRandHexString(tokenByteLen)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	issuedAt := s.now().UTC()
	token := &models.ShareToken{
		ID:         id,
		FileID:     fileID,
		Permission: permission,
		IssuedAt:   issuedAt,
		ExpiresAt:  issuedAt.AddDate(0, 0, ttl),
	}
	if err := s.repos.ShareTokens(s.db).Create(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

// Validate resolves a token id to the token and its file, or reports why the
// token is unusable. Revocation is checked before expiry so a token that is
// both reads deterministically as revoked. The token row itself always
// survives; only its usability changes.
func (s *ShareService) Validate(ctx context.Context, tokenID string) (*models.ShareToken, *models.FileRecord, error) {
	token, err := s.repos.ShareTokens(s.db).GetByID(ctx, tokenID)
	if err != nil {
		return nil, nil, err
	}
	if token.Revoked {
		return nil, nil, common.ErrTokenRevoked
	}
	if !token.ExpiresAt.After(s.now()) {
		return nil, nil, common.ErrTokenExpired
	}

	file, err := s.repos.Files(s.db).GetByID(ctx, token.FileID)
	if err != nil {
		return nil, nil, err
	}
	if file.Deleted() {
		return nil, nil, common.ErrNotFound
	}
	return token, file, nil
}

// AccessByToken validates the token and returns a presigned download URL for
// the file's current content. Either permission level suffices; write access
// subsumes read.
func (s *ShareService) AccessByToken(ctx context.Context, tokenID string) (*models.FileRecord, string, error) {
	_, file, err := s.Validate(ctx, tokenID)
	if err != nil {
		return nil, "", err
	}
	url, err := s.store.PresignGet(ctx, file.ContentRef)
	if err != nil {
		return nil, "", err
	}
	return file, url, nil
}

// Revoke marks a token unusable. Only the owner of the underlying file may
// revoke. Revoking an already revoked token succeeds; the operation is
// idempotent.
func (s *ShareService) Revoke(ctx context.Context, ownerID, tokenID string) error {
	token, err := s.repos.ShareTokens(s.db).GetByID(ctx, tokenID)
	if err != nil {
		return err
	}
	if _, err := s.ownedFile(ctx, ownerID, token.FileID); err != nil {
		return err
	}
	return s.repos.ShareTokens(s.db).Revoke(ctx, tokenID)
}

// List returns every token ever issued for the owner's files, revoked and
// expired ones included.
func (s *ShareService) List(ctx context.Context, ownerID string) ([]*models.ShareToken, error) {
	return s.repos.ShareTokens(s.db).ListByOwner(ctx, ownerID)
}
