package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/sitevisit/internal/dbx"
	"github.com/dmitrijs2005/sitevisit/internal/server/repositories/photos"
	"github.com/dmitrijs2005/sitevisit/internal/server/repositories/reports"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Reports(db dbx.DBTX) reports.Repository
	Photos(db dbx.DBTX) photos.Repository
}
