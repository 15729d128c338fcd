package history

import (
	"context"

	"github.com/theworldofobi/mini-dropbox/internal/server/models"
)

type Repository interface {
	Append(ctx context.Context, entry *models.VersionHistoryEntry) error
	SelectSince(ctx context.Context, fileID string, afterVersion int64) ([]*models.VersionHistoryEntry, error)
}
