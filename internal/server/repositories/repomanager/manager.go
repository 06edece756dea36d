package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/securexfer/internal/dbx"
	"github.com/dmitrijs2005/securexfer/internal/server/repositories/files"
	"github.com/dmitrijs2005/securexfer/internal/server/repositories/transfers"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Files(db dbx.DBTX) files.Repository
	Transfers(db dbx.DBTX) transfers.Repository
}
