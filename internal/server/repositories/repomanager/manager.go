// Package repomanager vends repository implementations bound to a DBTX, so
// services can run several repositories inside one transaction.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/campusfix/campusfix/internal/dbx"
	"github.com/campusfix/campusfix/internal/server/repositories/records"
	"github.com/campusfix/campusfix/internal/server/repositories/refreshtokens"
	"github.com/campusfix/campusfix/internal/server/repositories/users"
)

type RepositoryManager interface {
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Records(db dbx.DBTX) records.Repository
	RunMigrations(ctx context.Context, db *sql.DB) error
}
