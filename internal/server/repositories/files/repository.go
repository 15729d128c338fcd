package files

import (
	"context"
	"time"

	"github.com/theworldofobi/mini-dropbox/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, file *models.FileRecord) error
	GetByID(ctx context.Context, id string) (*models.FileRecord, error)
	GetByIDForUpdate(ctx context.Context, id string) (*models.FileRecord, error)
	FindByName(ctx context.Context, ownerID, name, folderID string) (*models.FileRecord, error)
	IncrementVersion(ctx context.Context, id, contentRef string, size int64, tombstone bool) (int64, time.Time, error)
	SelectChangedSince(ctx context.Context, ownerID string, since time.Time) ([]*models.FileRecord, error)
	SelectLiveByOwner(ctx context.Context, ownerID string) ([]*models.FileRecord, error)
}
