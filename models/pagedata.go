package models

type PageData struct {
	IsLoggedIn bool

	// Error is a user facing message, Errors the per-field list behind it.
	Error  string
	Errors []string

	// login / register / forgot-password flags
	InvalidCredentials bool
	RateLimited        bool
	EmailExists        bool
	EmailNotFound      bool
	PasswordMismatch   bool
	ResetRequested     bool
	Registered         bool
	LoggedOut          bool

	Email string
}
