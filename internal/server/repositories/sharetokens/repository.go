package sharetokens

import (
	"context"

	"github.com/theworldofobi/mini-dropbox/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, token *models.ShareToken) error
	GetByID(ctx context.Context, id string) (*models.ShareToken, error)
	Revoke(ctx context.Context, id string) error
	ListByOwner(ctx context.Context, ownerID string) ([]*models.ShareToken, error)
}
