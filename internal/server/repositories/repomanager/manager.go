// Package repomanager builds the users store for the configured backend and
// owns its lifecycle (migrations and shutdown).
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/tokenguard/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Users() users.Repository
	Close() error
}
