package services

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/common"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/dbx"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/logging"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/auth"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/models"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/repositories/blacklist"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/repositories/documents"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/repositories/refreshtokens"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var errBoom = errors.New("boom")

// store is an in-memory stand-in for the database shared by the fake repositories.
type store struct {
	mu        sync.Mutex
	users     map[int64]*models.User
	tokens    map[string]*models.RefreshToken
	blacklist map[string]*models.BlacklistedToken
	docs      map[int64]*models.Document
	nextID    int64

	// injected failures
	usersErr     error
	tokensErr    error
	createErr    error
	blacklistErr error
	docsErr      error
}

func newStore() *store {
	return &store{
		users:     map[int64]*models.User{},
		tokens:    map[string]*models.RefreshToken{},
		blacklist: map[string]*models.BlacklistedToken{},
		docs:      map[int64]*models.Document{},
	}
}

func (s *store) id() int64 { s.nextID++; return s.nextID }

// journal registers undo to run if the transaction behind db does not
// commit. Writes through a plain *sql.DB are final.
func (s *store) journal(ctx context.Context, db dbx.DBTX, undo func()) {
	tx, ok := db.(*sql.Tx)
	if !ok {
		return
	}
	ref := &txRef{}
	if _, err := tx.ExecContext(ctx, txMarker, ref); err != nil || ref.tx == nil {
		return
	}
	ref.tx.onAbort(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		undo()
	})
}

// txMarker is answered by hookConn itself: it hands out the driver
// transaction running on the connection, so the store can follow it.
const txMarker = "-- store: current transaction"

type txRef struct{ tx *hookTx }

// hookConnector opens sqlmock connections wrapped in hookConn.
type hookConnector struct {
	drv driver.Driver
	dsn string
}

func (c hookConnector) Connect(context.Context) (driver.Conn, error) {
	conn, err := c.drv.Open(c.dsn)
	if err != nil {
		return nil, err
	}
	return &hookConn{Conn: conn}, nil
}

func (c hookConnector) Driver() driver.Driver { return c.drv }

type hookConn struct {
	driver.Conn
	cur *hookTx
}

func (c *hookConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	var (
		tx  driver.Tx
		err error
	)
	if b, ok := c.Conn.(driver.ConnBeginTx); ok {
		tx, err = b.BeginTx(ctx, opts)
	} else {
		tx, err = c.Conn.Begin()
	}
	if err != nil {
		return nil, err
	}
	c.cur = &hookTx{Tx: tx}
	return c.cur, nil
}

func (c *hookConn) CheckNamedValue(*driver.NamedValue) error { return nil }

func (c *hookConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if query == txMarker && len(args) == 1 {
		if ref, ok := args[0].Value.(*txRef); ok {
			ref.tx = c.cur
			return driver.RowsAffected(0), nil
		}
	}
	if e, ok := c.Conn.(driver.ExecerContext); ok {
		return e.ExecContext(ctx, query, args)
	}
	return nil, driver.ErrSkip
}

// hookTx runs the registered undo functions, newest first, when the
// transaction rolls back or its commit fails.
type hookTx struct {
	driver.Tx
	mu    sync.Mutex
	undos []func()
}

func (t *hookTx) onAbort(undo func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.undos = append(t.undos, undo)
}

func (t *hookTx) Commit() error {
	err := t.Tx.Commit()
	if err != nil {
		t.abort()
	}
	return err
}

func (t *hookTx) Rollback() error {
	err := t.Tx.Rollback()
	t.abort()
	return err
}

func (t *hookTx) abort() {
	t.mu.Lock()
	undos := t.undos
	t.undos = nil
	t.mu.Unlock()
	for i := len(undos) - 1; i >= 0; i-- {
		undos[i]()
	}
}

var dsnSeq atomic.Int64

// newMockDB returns a sqlmock-backed pool whose transactions drive the
// store's journal.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	dsn := fmt.Sprintf("services-%d", dsnSeq.Add(1))
	mdb, mock, err := sqlmock.NewWithDSN(dsn)
	require.NoError(t, err)

	db := sql.OpenDB(hookConnector{drv: mdb.Driver(), dsn: dsn})
	t.Cleanup(func() {
		_ = db.Close()
		_ = mdb.Close()
	})
	return db, mock
}

type fakeUsers struct {
	s  *store
	db dbx.DBTX
}

func (f fakeUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.usersErr != nil {
		return nil, f.s.usersErr
	}
	for _, e := range f.s.users {
		if e.Email == u.Email {
			return nil, common.ErrorAlreadyExists
		}
	}
	u.ID = f.s.id()
	u.IsActive = true
	u.CreatedAt = time.Now()
	cp := *u
	f.s.users[u.ID] = &cp
	return u, nil
}

func (f fakeUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.usersErr != nil {
		return nil, f.s.usersErr
	}
	for _, u := range f.s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f fakeUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.usersErr != nil {
		return nil, f.s.usersErr
	}
	u, ok := f.s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (f fakeUsers) LockByID(ctx context.Context, id int64) error {
	_, err := f.GetByID(ctx, id)
	return err
}

type fakeTokens struct {
	s  *store
	db dbx.DBTX
}

func (f fakeTokens) Create(ctx context.Context, t *models.RefreshToken) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.tokensErr != nil {
		return f.s.tokensErr
	}
	if f.s.createErr != nil {
		return f.s.createErr
	}
	if _, ok := f.s.tokens[t.JTI]; ok {
		return common.ErrorAlreadyExists
	}
	t.ID = f.s.id()
	cp := *t
	f.s.tokens[t.JTI] = &cp
	f.s.journal(ctx, f.db, func() { delete(f.s.tokens, cp.JTI) })
	return nil
}

func (f fakeTokens) Find(_ context.Context, jti string) (*models.RefreshToken, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.tokensErr != nil {
		return nil, f.s.tokensErr
	}
	t, ok := f.s.tokens[jti]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *t
	return &cp, nil
}

func (f fakeTokens) IsValid(_ context.Context, jti string, userID int64, now time.Time) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.tokensErr != nil {
		return false, f.s.tokensErr
	}
	t, ok := f.s.tokens[jti]
	return ok && t.UserID == userID && t.Active(now), nil
}

func (f fakeTokens) Revoke(ctx context.Context, jti string, userID int64) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.tokensErr != nil {
		return false, f.s.tokensErr
	}
	t, ok := f.s.tokens[jti]
	if !ok || t.UserID != userID || t.Revoked {
		return false, nil
	}
	t.Revoked = true
	f.s.journal(ctx, f.db, func() { t.Revoked = false })
	return true, nil
}

func (f fakeTokens) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.tokensErr != nil {
		return 0, f.s.tokensErr
	}
	var flipped []*models.RefreshToken
	for _, t := range f.s.tokens {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			flipped = append(flipped, t)
		}
	}
	f.s.journal(ctx, f.db, func() {
		for _, t := range flipped {
			t.Revoked = false
		}
	})
	return int64(len(flipped)), nil
}

func (f fakeTokens) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.tokensErr != nil {
		return 0, f.s.tokensErr
	}
	var n int64
	for k, t := range f.s.tokens {
		if t.ExpiresAt.Before(before) {
			delete(f.s.tokens, k)
			n++
		}
	}
	return n, nil
}

type fakeBlacklist struct {
	s  *store
	db dbx.DBTX
}

func (f fakeBlacklist) Add(ctx context.Context, t *models.BlacklistedToken) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.blacklistErr != nil {
		return false, f.s.blacklistErr
	}
	if _, ok := f.s.blacklist[t.JTI]; ok {
		return false, nil
	}
	cp := *t
	cp.ID = f.s.id()
	f.s.blacklist[t.JTI] = &cp
	f.s.journal(ctx, f.db, func() { delete(f.s.blacklist, cp.JTI) })
	return true, nil
}

func (f fakeBlacklist) Contains(_ context.Context, jti string) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.blacklistErr != nil {
		return false, f.s.blacklistErr
	}
	_, ok := f.s.blacklist[jti]
	return ok, nil
}

func (f fakeBlacklist) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.blacklistErr != nil {
		return 0, f.s.blacklistErr
	}
	var n int64
	for k, t := range f.s.blacklist {
		if t.ExpiresAt.Before(before) {
			delete(f.s.blacklist, k)
			n++
		}
	}
	return n, nil
}

type fakeDocs struct {
	s  *store
	db dbx.DBTX
}

func (f fakeDocs) Create(ctx context.Context, d *models.Document) (*models.Document, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.docsErr != nil {
		return nil, f.s.docsErr
	}
	d.ID = f.s.id()
	d.UploadedAt = time.Date(2025, 1, 1, 0, 0, int(d.ID), 0, time.UTC)
	cp := *d
	f.s.docs[d.ID] = &cp
	f.s.journal(ctx, f.db, func() { delete(f.s.docs, cp.ID) })
	return d, nil
}

func (f fakeDocs) Get(_ context.Context, id, userID int64) (*models.Document, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.docsErr != nil {
		return nil, f.s.docsErr
	}
	d, ok := f.s.docs[id]
	if !ok || d.UserID != userID {
		return nil, common.ErrorNotFound
	}
	cp := *d
	return &cp, nil
}

func (f fakeDocs) ListByUser(_ context.Context, userID int64) ([]*models.Document, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.docsErr != nil {
		return nil, f.s.docsErr
	}
	out := []*models.Document{}
	for _, d := range f.s.docs {
		if d.UserID == userID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f fakeDocs) Update(ctx context.Context, d *models.Document) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.docsErr != nil {
		return f.s.docsErr
	}
	e, ok := f.s.docs[d.ID]
	if !ok {
		return common.ErrorNotFound
	}
	prev := *e
	e.CollectionName = d.CollectionName
	e.Status = d.Status
	f.s.journal(ctx, f.db, func() { e.CollectionName, e.Status = prev.CollectionName, prev.Status })
	return nil
}

type fakeRepoManager struct{ s *store }

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error        { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) users.Repository { return fakeUsers{m.s, db} }
func (m *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository {
	return fakeTokens{m.s, db}
}
func (m *fakeRepoManager) Blacklist(db dbx.DBTX) blacklist.Repository { return fakeBlacklist{m.s, db} }
func (m *fakeRepoManager) Documents(db dbx.DBTX) documents.Repository { return fakeDocs{m.s, db} }

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// testEnv wires the services over the in-memory store. Transactions run
// against sqlmock, so each transactional call must be announced with
// expectTx or expectRollback.
type testEnv struct {
	db       *sql.DB
	mock     sqlmock.Sqlmock
	store    *store
	rm       *fakeRepoManager
	clk      *fakeClock
	codec    *auth.Codec
	hasher   *BcryptHasher
	users    *UserService
	sessions *SessionService
	authn    *Authenticator
}

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, mock := newMockDB(t)

	clk := &fakeClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	codec, err := auth.NewCodec(testSecret, nil, 15*time.Minute, 7*24*time.Hour, auth.WithClock(clk.Now))
	require.NoError(t, err)

	st := newStore()
	rm := &fakeRepoManager{s: st}
	hasher := NewBcryptHasher(bcrypt.MinCost)

	us, err := NewUserService(db, rm, hasher, logging.Nop())
	require.NoError(t, err)

	ss := NewSessionService(db, rm, us, codec, hasher, logging.Nop())
	ss.now = clk.Now

	return &testEnv{
		db: db, mock: mock, store: st, rm: rm, clk: clk, codec: codec, hasher: hasher,
		users: us, sessions: ss, authn: NewAuthenticator(db, rm, us, codec),
	}
}

func (e *testEnv) expectTx() {
	e.mock.ExpectBegin()
	e.mock.ExpectCommit()
}

func (e *testEnv) expectRollback() {
	e.mock.ExpectBegin()
	e.mock.ExpectRollback()
}

func (e *testEnv) verify(t *testing.T) {
	t.Helper()
	require.NoError(t, e.mock.ExpectationsWereMet())
}

func (e *testEnv) register(t *testing.T, name, email, password string) *models.User {
	t.Helper()
	u, err := e.users.Register(context.Background(), name, email, password)
	require.NoError(t, err)
	return u
}

func (e *testEnv) login(t *testing.T, email, password string) *TokenPair {
	t.Helper()
	e.expectTx()
	p, err := e.sessions.Login(context.Background(), email, password)
	require.NoError(t, err)
	return p
}
