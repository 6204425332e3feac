package users

import (
	"context"

	"github.com/dmitrijs2005/tokenguard/internal/server/models"
	"github.com/google/uuid"
)

// Repository persists users and their access tokens.
//
// CompareAndSwapToken replaces the current token with next only when it still
// equals expected, moving the old value into the previous-token slot. It
// reports how many records changed (0 or 1). Lookups of unknown users fail
// with common.ErrorNotFound; transient backend failures wrap
// common.ErrStoreUnavailable.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetAccessToken(ctx context.Context, id uuid.UUID) (string, error)
	CompareAndSwapToken(ctx context.Context, id uuid.UUID, expected, next string) (int64, error)
	ReplaceAccessToken(ctx context.Context, id uuid.UUID, next string) error
}
