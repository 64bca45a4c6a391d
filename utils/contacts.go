package utils

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"opendays/models"
)

// ContactStore persists accepted contact form submissions.
type ContactStore interface {
	Save(ctx context.Context, c models.ContactSubmission) error
}

type PostgresContactStore struct {
	db PgxExecutor
}

func NewPostgresContactStore(db PgxExecutor) *PostgresContactStore {
	return &PostgresContactStore{db: db}
}

func (s *PostgresContactStore) Save(ctx context.Context, c models.ContactSubmission) error {
	stmt := `INSERT INTO contact_submissions
		(name, student_id, email, subject, details, submission_date, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.Exec(ctx, stmt, c.Name, c.StudentID, c.Email, c.Subject, c.Details, c.SubmissionDate, c.IPAddress)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

type SQLiteContactStore struct {
	db *sql.DB
}

func NewSQLiteContactStore(db *sql.DB) *SQLiteContactStore {
	return &SQLiteContactStore{db: db}
}

func (s *SQLiteContactStore) Save(ctx context.Context, c models.ContactSubmission) error {
	stmt := `INSERT INTO contact_submissions
		(name, student_id, email, subject, details, submission_date, ip_address)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, stmt, c.Name, c.StudentID, c.Email, c.Subject, c.Details,
		c.SubmissionDate.UTC().Format(time.RFC3339Nano), c.IPAddress)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
