package repomanager

import (
	"context"
	"database/sql"

	"github.com/Fawas-Anayat/Document-Processing-System/internal/dbx"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/repositories/blacklist"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/repositories/documents"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/repositories/refreshtokens"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so services can run
// several of them inside one transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Blacklist(db dbx.DBTX) blacklist.Repository
	Documents(db dbx.DBTX) documents.Repository
}
