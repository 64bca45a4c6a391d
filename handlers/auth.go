package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"opendays/models"
	"opendays/utils"
)

func (app *App) LoginPage(w http.ResponseWriter, r *http.Request) {
	if app.isLoggedIn(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	data := models.PageData{
		Registered: r.URL.Query().Get("registered") == "1",
		LoggedOut:  r.URL.Query().Get("logged_out") == "1",
	}
	app.render(w, r, http.StatusOK, "login.html", data)
}

func (app *App) Login(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	if app.limited(r, app.Policies.Login) {
		w.Header().Set("Retry-After", retryAfter(app.Policies.Login.Window))
		app.render(w, r, http.StatusTooManyRequests, "login.html", models.PageData{RateLimited: true, Email: email})
		return
	}

	userID, err := app.authenticate(r, email, password)
	if err != nil {
		if errors.Is(err, utils.ErrInvalidCredentials) {
			app.Logger.WarnContext(r.Context(), "failed login attempt", "ip", app.clientIP(r))
			app.render(w, r, http.StatusUnauthorized, "login.html", models.PageData{InvalidCredentials: true, Email: email})
			return
		}
		app.Logger.ErrorContext(r.Context(), "login failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// drop any session the client already had before binding a new one
	if old, ok := app.Sessions.TokenFromRequest(r); ok {
		if err := app.Sessions.Destroy(r.Context(), old); err != nil {
			app.Logger.WarnContext(r.Context(), "destroy previous session", "error", err)
		}
	}

	token, err := app.Sessions.Create(r.Context(), userID, r)
	if err != nil {
		app.Logger.ErrorContext(r.Context(), "create session", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	app.Sessions.SetCookie(w, token)

	app.Logger.InfoContext(r.Context(), "successful login", "user_id", userID)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// authenticate returns ErrInvalidCredentials for both an unknown email and a
// wrong password so callers cannot tell them apart.
func (app *App) authenticate(r *http.Request, email, password string) (uuid.UUID, error) {
	if email == "" || password == "" {
		return uuid.Nil, utils.ErrInvalidCredentials
	}
	user, err := app.Users.FindByEmail(r.Context(), email)
	if err != nil {
		return uuid.Nil, err
	}
	if user == nil || !app.Hasher.Verify(password, user.PasswordHash) {
		return uuid.Nil, utils.ErrInvalidCredentials
	}
	return user.ID, nil
}

func (app *App) RegisterPage(w http.ResponseWriter, r *http.Request) {
	if app.isLoggedIn(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	app.render(w, r, http.StatusOK, "register.html", models.PageData{})
}

func (app *App) Register(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")
	confirmedPassword := r.PostFormValue("confirm-password")

	if app.limited(r, app.Policies.Register) {
		w.Header().Set("Retry-After", retryAfter(app.Policies.Register.Window))
		app.render(w, r, http.StatusTooManyRequests, "register.html", models.PageData{RateLimited: true, Email: email})
		return
	}

	if !utils.SamePassword(password, confirmedPassword) {
		app.render(w, r, http.StatusBadRequest, "register.html", models.PageData{PasswordMismatch: true, Email: email})
		return
	}
	if !utils.ValidateEmail(email) {
		app.render(w, r, http.StatusBadRequest, "register.html", models.PageData{Error: "Invalid email format", Email: email})
		return
	}
	if err := utils.ValidatePassword(password); err != nil {
		app.render(w, r, http.StatusBadRequest, "register.html", models.PageData{
			Error: "Passwords must be 8 to 72 characters long and contain one uppercase letter, one lowercase letter, one digit and one special character",
			Email: email,
		})
		return
	}

	hash, err := app.Hasher.Hash(password)
	if err != nil {
		app.Logger.ErrorContext(r.Context(), "hash password", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	userID, err := app.Users.Register(r.Context(), email, hash)
	if err != nil {
		if errors.Is(err, utils.ErrDuplicateEmail) {
			app.Logger.WarnContext(r.Context(), "registration attempt with existing email", "ip", app.clientIP(r))
			app.render(w, r, http.StatusConflict, "register.html", models.PageData{EmailExists: true, Email: email})
			return
		}
		app.Logger.ErrorContext(r.Context(), "register user", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	app.Logger.InfoContext(r.Context(), "new user registered", "user_id", userID)
	http.Redirect(w, r, "/login?registered=1", http.StatusSeeOther)
}

func (app *App) ForgotPasswordPage(w http.ResponseWriter, r *http.Request) {
	app.render(w, r, http.StatusOK, "forgotpassword.html", models.PageData{IsLoggedIn: app.isLoggedIn(r)})
}

// ForgotPassword tells the visitor whether the email is registered. This lets
// anyone enumerate accounts; ForgotPasswordGeneric switches to a neutral reply.
func (app *App) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")

	if app.limited(r, app.Policies.PasswordReset) {
		w.Header().Set("Retry-After", retryAfter(app.Policies.PasswordReset.Window))
		app.render(w, r, http.StatusTooManyRequests, "forgotpassword.html", models.PageData{RateLimited: true, Email: email})
		return
	}

	user, err := app.Users.FindByEmail(r.Context(), email)
	if err != nil {
		app.Logger.ErrorContext(r.Context(), "look up email for password reset", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if user != nil {
		app.Logger.InfoContext(r.Context(), "password reset requested", "user_id", user.ID)
		if err := app.Mailer.SendPasswordResetNotice(r.Context(), user.Email); err != nil {
			app.Logger.ErrorContext(r.Context(), "send password reset notice", "user_id", user.ID, "error", err)
		}
	} else {
		app.Logger.WarnContext(r.Context(), "password reset for unknown email", "ip", app.clientIP(r))
	}

	data := models.PageData{Email: email}
	switch {
	case app.ForgotPasswordGeneric:
		data.ResetRequested = true
	case user != nil:
		data.EmailExists = true
	default:
		data.EmailNotFound = true
	}
	app.render(w, r, http.StatusOK, "forgotpassword.html", data)
}

func (app *App) Logout(w http.ResponseWriter, r *http.Request) {
	if token, ok := app.Sessions.TokenFromRequest(r); ok {
		userID, _, err := app.Sessions.Resolve(r.Context(), token)
		if err != nil {
			app.Logger.WarnContext(r.Context(), "resolve session on logout", "error", err)
		}
		if err := app.Sessions.Destroy(r.Context(), token); err != nil {
			app.Logger.ErrorContext(r.Context(), "destroy session", "error", err)
		} else {
			app.Logger.InfoContext(r.Context(), "user logged out", "user_id", userID)
		}
	}
	app.Sessions.ClearCookie(w)
	http.Redirect(w, r, "/login?logged_out=1", http.StatusSeeOther)
}

func retryAfter(window time.Duration) string {
	secs := int(window.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
