package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"opendays/models"
)

const (
	maxNameLength    = 100
	maxEmailLength   = 120
	maxSubjectLength = 200
	maxDetailsLength = 2000

	// bcrypt ignores everything past 72 bytes
	maxPasswordLength = 72
)

var (
	// space matches every unicode.IsSpace rune, not only RE2's ASCII \s
	nameRe      = regexp.MustCompile(`^[A-Za-z0-9\s\v\x{85}\p{Z}\-'.]{1,100}$`)
	studentIDRe = regexp.MustCompile(`^[0-9]{7,8}$`)
	emailRe     = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	subjectRe   = regexp.MustCompile(`^[A-Za-z0-9\s\v\x{85}\p{Z}\-'.,:;!?()]{1,200}$`)

	uppercaseRe   = regexp.MustCompile(`[A-Z]`)
	lowercaseRe   = regexp.MustCompile(`[a-z]`)
	digitRe       = regexp.MustCompile(`\d`)
	specialCharRe = regexp.MustCompile(`[!@#$%^&*()_+\-=\[\]{};':"\\|,.<>\/?]`)
)

func ValidateName(name string) bool {
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return false
	}
	return nameRe.MatchString(name)
}

// ValidateStudentID accepts an empty ID, the field is optional.
func ValidateStudentID(id string) bool {
	if id == "" {
		return true
	}
	return studentIDRe.MatchString(id)
}

func ValidateEmail(email string) bool {
	if email == "" || len(email) > maxEmailLength {
		return false
	}
	return emailRe.MatchString(email)
}

func ValidateSubject(subject string) bool {
	if subject == "" || utf8.RuneCountInString(subject) > maxSubjectLength {
		return false
	}
	return subjectRe.MatchString(subject)
}

func ValidateDetails(details string) bool {
	return utf8.RuneCountInString(details) <= maxDetailsLength
}

// ValidateContact runs every field check and returns the failures in form order.
// A nil result means the submission is valid.
func ValidateContact(s models.ContactSubmission) []string {
	var errs []string
	if !ValidateName(s.Name) {
		errs = append(errs, "Invalid name format")
	}
	if !ValidateStudentID(s.StudentID) {
		errs = append(errs, "Invalid student ID format")
	}
	if !ValidateEmail(s.Email) {
		errs = append(errs, "Invalid email format")
	}
	if !ValidateSubject(s.Subject) {
		errs = append(errs, "Invalid subject format")
	}
	if !ValidateDetails(s.Details) {
		errs = append(errs, "Details too long or invalid")
	}
	return errs
}

func ValidationMessage(errs []string) string {
	return "Validation errors: " + strings.Join(errs, ", ")
}

func ValidatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}
	if len(password) > maxPasswordLength {
		return fmt.Errorf("password must be at most %d bytes long", maxPasswordLength)
	}
	if !uppercaseRe.MatchString(password) {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !lowercaseRe.MatchString(password) {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !digitRe.MatchString(password) {
		return fmt.Errorf("password must contain at least one digit")
	}
	if !specialCharRe.MatchString(password) {
		return fmt.Errorf("password must contain at least one special character")
	}
	return nil
}

func SamePassword(password string, confirmedPassword string) bool {
	return password == confirmedPassword
}
