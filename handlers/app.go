package handlers

import (
	"bytes"
	"context"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"opendays/models"
	"opendays/utils"
)

// App carries every collaborator the handlers need. It is built once in main
// and shared by all requests.
type App struct {
	Logger    *slog.Logger
	Templates *template.Template

	Limiter  utils.RateLimiter
	Policies utils.Policies
	Throttle *utils.Throttle

	Users    utils.UserStore
	Hasher   *utils.Hasher
	Sessions *utils.SessionManager
	Mailer   utils.Mailer
	Pipeline *SubmissionPipeline

	Static fs.FS

	// HealthChecks are run by /healthz, keyed by dependency name.
	HealthChecks map[string]func(context.Context) error

	RequireLogin          bool
	TrustProxy            bool
	ForgotPasswordGeneric bool
}

func (app *App) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", app.Home)
	mux.HandleFunc("GET /contact-us", app.ContactForm)
	mux.HandleFunc("POST /submit-form", app.SubmitForm)

	mux.HandleFunc("GET /login", app.LoginPage)
	mux.HandleFunc("POST /login", app.Login)
	mux.HandleFunc("GET /register", app.RegisterPage)
	mux.HandleFunc("POST /register", app.Register)
	mux.HandleFunc("GET /forgot-password", app.ForgotPasswordPage)
	mux.HandleFunc("POST /forgot-password", app.ForgotPassword)
	mux.HandleFunc("GET /logout", app.Logout)

	mux.HandleFunc("GET /healthz", app.Health)
	mux.HandleFunc("GET /{path...}", app.StaticFile)

	var h http.Handler = mux
	h = app.Throttle.Middleware(app.Logger, app.TrustProxy, h)
	h = app.rejectTraversal(h)
	return h
}

// rejectTraversal runs before the mux, which would otherwise clean ".."
// segments into a redirect.
func (app *App) rejectTraversal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if unsafePath(r.URL.Path) {
			app.Logger.Warn("attempted directory traversal",
				"path", r.URL.Path, "ip", utils.GetIP(r, app.TrustProxy))
			http.Error(w, "Invalid file path", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// unsafePath reports paths containing ".." or whose route-relative part
// starts with a slash.
func unsafePath(p string) bool {
	return strings.Contains(p, "..") || strings.HasPrefix(p, "//") || strings.Contains(p, `\`)
}

func (app *App) clientIP(r *http.Request) string {
	return utils.GetIP(r, app.TrustProxy)
}

// limited applies policy p to the request's client. Limiter errors fail open.
func (app *App) limited(r *http.Request, p utils.Policy) bool {
	client := app.clientIP(r)
	limited, err := app.Limiter.Limited(r.Context(), client, p)
	if err != nil {
		app.Logger.WarnContext(r.Context(), "rate limiter unavailable", "policy", p.Name, "error", err)
		return false
	}
	if limited {
		app.Logger.WarnContext(r.Context(), "rate limit exceeded", "policy", p.Name, "ip", client)
	}
	return limited
}

func (app *App) isLoggedIn(r *http.Request) bool {
	_, ok, err := app.Sessions.CurrentUser(r)
	if err != nil {
		app.Logger.ErrorContext(r.Context(), "resolve session", "error", err)
		return false
	}
	return ok
}

// render executes page into a buffer first so a template error never leaves
// a half written response.
func (app *App) render(w http.ResponseWriter, r *http.Request, status int, page string, data models.PageData) {
	var buf bytes.Buffer
	if err := app.Templates.ExecuteTemplate(&buf, page, data); err != nil {
		app.Logger.ErrorContext(r.Context(), "render template", "page", page, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (app *App) Health(w http.ResponseWriter, r *http.Request) {
	for name, check := range app.HealthChecks {
		if err := check(r.Context()); err != nil {
			app.Logger.ErrorContext(r.Context(), "health check failed", "dependency", name, "error", err)
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}
