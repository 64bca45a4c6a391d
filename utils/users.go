package utils

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"opendays/models"
)

const pgUniqueViolation = "23505"

// UserStore persists accounts. Email uniqueness is enforced by the storage
// layer so Register is a single insert-or-fail.
type UserStore interface {
	// Register inserts a new user and returns its id, or ErrDuplicateEmail.
	Register(ctx context.Context, email, passwordHash string) (uuid.UUID, error)
	// FindByEmail returns nil, nil when no user has this email.
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

type SQLiteUserStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteUserStore(db *sql.DB) *SQLiteUserStore {
	return &SQLiteUserStore{db: db, now: time.Now}
}

func (s *SQLiteUserStore) Register(ctx context.Context, email, passwordHash string) (uuid.UUID, error) {
	id := uuid.New()
	stmt := "INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)"

	_, err := s.db.ExecContext(ctx, stmt, id.String(), email, passwordHash, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return uuid.Nil, ErrDuplicateEmail
		}
		return uuid.Nil, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

func (s *SQLiteUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	stmt := "SELECT id, email, password_hash, created_at FROM users WHERE email = ?"

	var (
		u         models.User
		id        string
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, stmt, email).Scan(&id, &u.Email, &u.PasswordHash, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if u.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("user %q has malformed id: %w", id, err)
	}
	if u.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("user %q has malformed created_at: %w", id, err)
	}
	return &u, nil
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
		return true
	}
	// primary result code only, extended codes disabled
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE")
}

type PostgresUserStore struct {
	db PgxExecutor
}

func NewPostgresUserStore(db PgxExecutor) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

func (s *PostgresUserStore) Register(ctx context.Context, email, passwordHash string) (uuid.UUID, error) {
	stmt := "INSERT INTO users (id, email, password_hash) VALUES ($1, $2, $3) RETURNING id"

	var id uuid.UUID
	err := s.db.QueryRow(ctx, stmt, uuid.New(), email, passwordHash).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return uuid.Nil, ErrDuplicateEmail
		}
		return uuid.Nil, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

func (s *PostgresUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	stmt := "SELECT id, email, password_hash, created_at FROM users WHERE email = $1"

	var u models.User
	err := s.db.QueryRow(ctx, stmt, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &u, nil
}
