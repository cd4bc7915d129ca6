package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/repositories/blacklist"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/repositories/documents"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/repositories/refreshtokens"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/repositories/users"
	"github.com/pressly/goose/v3"
)

func newDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func TestNewPostgresRepositoryManager_ReturnsInterface(t *testing.T) {
	var _ RepositoryManager = NewPostgresRepositoryManager()
}

func TestFactories_ReturnConcreteRepos(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	m := &PostgresRepositoryManager{}

	if _, ok := m.Users(db).(*users.PostgresRepository); !ok {
		t.Fatal("Users() is not a postgres repository")
	}
	if _, ok := m.RefreshTokens(db).(*refreshtokens.PostgresRepository); !ok {
		t.Fatal("RefreshTokens() is not a postgres repository")
	}
	if _, ok := m.Blacklist(db).(*blacklist.PostgresRepository); !ok {
		t.Fatal("Blacklist() is not a postgres repository")
	}
	if _, ok := m.Documents(db).(*documents.PostgresRepository); !ok {
		t.Fatal("Documents() is not a postgres repository")
	}
}

func stubGoose(t *testing.T, target *func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error, err error) *int {
	t.Helper()
	calls := 0
	orig := *target
	*target = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		calls++
		if dir != "." {
			return errors.New("unexpected dir")
		}
		if len(opts) != 0 {
			return errors.New("unexpected opts")
		}
		return err
	}
	t.Cleanup(func() { *target = orig })
	return &calls
}

func TestRunMigrations_Success(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	calls := stubGoose(t, &gooseUpContext, nil)

	m := &PostgresRepositoryManager{}
	if err := m.RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("RunMigrations error: %v", err)
	}
	if *calls != 1 {
		t.Fatalf("goose up called %d times", *calls)
	}
}

func TestRunMigrations_Error(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	stubGoose(t, &gooseUpContext, errors.New("boom"))

	m := &PostgresRepositoryManager{}
	if err := m.RunMigrations(context.Background(), db); err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestRollbackAndStatus(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	down := stubGoose(t, &gooseDownContext, nil)
	status := stubGoose(t, &gooseStatusContext, errors.New("status failed"))

	m := &PostgresRepositoryManager{}
	if err := m.RollbackMigration(context.Background(), db); err != nil {
		t.Fatalf("RollbackMigration error: %v", err)
	}
	if err := m.MigrationStatus(context.Background(), db); err == nil {
		t.Fatal("expected status error")
	}
	if *down != 1 || *status != 1 {
		t.Fatalf("unexpected calls: down=%d status=%d", *down, *status)
	}
}
