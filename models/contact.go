package models

import "time"

// ContactSubmission is one accepted contact form post. SubmissionDate and
// IPAddress are assigned by the server.
type ContactSubmission struct {
	Name           string    `db:"name"`
	StudentID      string    `db:"student_id"`
	Email          string    `db:"email"`
	Subject        string    `db:"subject"`
	Details        string    `db:"details"`
	SubmissionDate time.Time `db:"submission_date"`
	IPAddress      string    `db:"ip_address"`
}
