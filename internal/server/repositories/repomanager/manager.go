package repomanager

import (
	"context"
	"database/sql"

	"github.com/Cybrite/your-tube/internal/dbx"
	"github.com/Cybrite/your-tube/internal/server/repositories/accounts"
	"github.com/Cybrite/your-tube/internal/server/repositories/activity"
	"github.com/Cybrite/your-tube/internal/server/repositories/releases"
)

// RepositoryManager vends repositories bound to a DBTX, so the same code
// runs against *sql.DB or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	Activity(db dbx.DBTX) activity.Repository
	Releases(db dbx.DBTX) releases.Repository
}
