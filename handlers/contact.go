package handlers

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"opendays/models"
)

var allowedExtensions = map[string]bool{
	".html": true,
	".css":  true,
	".js":   true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

// Home shows the contact form, or sends anonymous visitors to /login when
// the site requires an account.
func (app *App) Home(w http.ResponseWriter, r *http.Request) {
	loggedIn := app.isLoggedIn(r)
	if app.RequireLogin && !loggedIn {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	app.render(w, r, http.StatusOK, "contact.html", models.PageData{IsLoggedIn: loggedIn})
}

func (app *App) ContactForm(w http.ResponseWriter, r *http.Request) {
	app.render(w, r, http.StatusOK, "contact.html", models.PageData{IsLoggedIn: app.isLoggedIn(r)})
}

func (app *App) SubmitForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	form := models.ContactSubmission{
		Name:      r.PostFormValue("Name"),
		StudentID: r.PostFormValue("ID"),
		Email:     r.PostFormValue("Email"),
		Subject:   r.PostFormValue("Subject"),
		Details:   r.PostFormValue("Details"),
	}

	res := app.Pipeline.Submit(r.Context(), app.clientIP(r), form)

	data := models.PageData{
		Error:       res.Message,
		Errors:      res.Errors,
		RateLimited: res.Status == SubmissionRateLimited,
	}
	if res.Status == SubmissionRateLimited {
		w.Header().Set("Retry-After", retryAfter(app.Pipeline.Policy.Window))
	}
	app.render(w, r, res.HTTPStatus(), "submission.html", data)
}

// StaticFile serves assets from the static directory. Only a fixed set of
// extensions is exposed.
func (app *App) StaticFile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("path")
	if name == "" || strings.Contains(name, "..") || strings.HasPrefix(name, "/") {
		app.Logger.WarnContext(r.Context(), "attempted directory traversal", "path", name, "ip", app.clientIP(r))
		http.Error(w, "Invalid file path", http.StatusBadRequest)
		return
	}

	if !allowedExtensions[strings.ToLower(path.Ext(name))] {
		http.Error(w, "File type not allowed", http.StatusForbidden)
		return
	}

	if !fs.ValidPath(name) {
		http.Error(w, "Invalid file path", http.StatusBadRequest)
		return
	}
	f, err := app.Static.Open(name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			app.Logger.ErrorContext(r.Context(), "serve static file", "path", name, "error", err)
		}
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	// ServeFileFS would redirect .../index.html to its directory
	content, ok := f.(io.ReadSeeker)
	if !ok {
		b, err := io.ReadAll(f)
		if err != nil {
			app.Logger.ErrorContext(r.Context(), "read static file", "path", name, "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		content = bytes.NewReader(b)
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), content)
}
