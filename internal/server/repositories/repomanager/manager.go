package repomanager

import (
	"context"
	"database/sql"

	"github.com/theworldofobi/mini-dropbox/internal/dbx"
	"github.com/theworldofobi/mini-dropbox/internal/server/repositories/files"
	"github.com/theworldofobi/mini-dropbox/internal/server/repositories/history"
	"github.com/theworldofobi/mini-dropbox/internal/server/repositories/sharetokens"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Files(db dbx.DBTX) files.Repository
	History(db dbx.DBTX) history.Repository
	ShareTokens(db dbx.DBTX) sharetokens.Repository
}
