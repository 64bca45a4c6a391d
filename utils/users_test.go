package utils_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opendays/models"
	"opendays/utils"
)

func newSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := utils.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, utils.MigrateSQLite(context.Background(), db))
	return db
}

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestSQLiteUserStore(t *testing.T) {
	store := utils.NewSQLiteUserStore(newSQLiteDB(t))
	ctx := context.Background()

	id, err := store.Register(ctx, "jane@example.com", "$2a$10$hash")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	_, err = store.Register(ctx, "jane@example.com", "$2a$10$other")
	assert.ErrorIs(t, err, utils.ErrDuplicateEmail)

	u, err := store.FindByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, "$2a$10$hash", u.PasswordHash)
	assert.WithinDuration(t, time.Now(), u.CreatedAt, time.Minute)

	u, err = store.FindByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestSQLiteUserStoreDBErrors(t *testing.T) {
	db, mock := newSQLMockDB(t)
	store := utils.NewSQLiteUserStore(db)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO users").WillReturnError(errors.New("disk I/O error"))
	_, err := store.Register(ctx, "jane@example.com", "hash")
	require.Error(t, err)
	assert.NotErrorIs(t, err, utils.ErrDuplicateEmail)
	assert.Contains(t, err.Error(), "db error")

	mock.ExpectQuery("SELECT id, email, password_hash, created_at FROM users").
		WithArgs("jane@example.com").
		WillReturnError(errors.New("connection reset"))
	_, err = store.FindByEmail(ctx, "jane@example.com")
	assert.ErrorContains(t, err, "db error")

	rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "created_at"}).
		AddRow("not-a-uuid", "jane@example.com", "hash", time.Now().UTC().Format(time.RFC3339Nano))
	mock.ExpectQuery("SELECT id, email, password_hash, created_at FROM users").WillReturnRows(rows)
	_, err = store.FindByEmail(ctx, "jane@example.com")
	assert.ErrorContains(t, err, "malformed id")

	assert.NoError(t, mock.ExpectationsWereMet())
}

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

type fakePgx struct {
	execSQL  string
	execArgs []any
	execErr  error
	row      fakeRow
}

func (f *fakePgx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = sql
	f.execArgs = args
	return pgconn.NewCommandTag("INSERT 0 1"), f.execErr
}

func (f *fakePgx) QueryRow(context.Context, string, ...any) pgx.Row {
	return f.row
}

func TestPostgresUserStoreRegister(t *testing.T) {
	want := uuid.New()
	db := &fakePgx{row: fakeRow{scan: func(dest ...any) error {
		*dest[0].(*uuid.UUID) = want
		return nil
	}}}

	got, err := utils.NewPostgresUserStore(db).Register(context.Background(), "jane@example.com", "hash")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPostgresUserStoreDuplicate(t *testing.T) {
	db := &fakePgx{row: fakeRow{scan: func(...any) error {
		return &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
	}}}

	_, err := utils.NewPostgresUserStore(db).Register(context.Background(), "jane@example.com", "hash")
	assert.ErrorIs(t, err, utils.ErrDuplicateEmail)
}

func TestPostgresUserStoreFindByEmail(t *testing.T) {
	ctx := context.Background()

	missing := &fakePgx{row: fakeRow{scan: func(...any) error { return pgx.ErrNoRows }}}
	u, err := utils.NewPostgresUserStore(missing).FindByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, u)

	broken := &fakePgx{row: fakeRow{scan: func(...any) error { return errors.New("conn closed") }}}
	_, err = utils.NewPostgresUserStore(broken).FindByEmail(ctx, "jane@example.com")
	assert.ErrorContains(t, err, "db error")

	id := uuid.New()
	found := &fakePgx{row: fakeRow{scan: func(dest ...any) error {
		*dest[0].(*uuid.UUID) = id
		*dest[1].(*string) = "jane@example.com"
		*dest[2].(*string) = "hash"
		*dest[3].(*time.Time) = time.Now()
		return nil
	}}}
	u, err = utils.NewPostgresUserStore(found).FindByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, &models.User{ID: id, Email: "jane@example.com", PasswordHash: "hash", CreatedAt: u.CreatedAt}, u)
}
