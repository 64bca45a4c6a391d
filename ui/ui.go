// Package ui holds the HTML templates, embedded into the binary.
package ui

import (
	"embed"
	"html/template"
)

//go:embed html/*.html
var files embed.FS

// Templates parses every page. Pages are looked up by file name, e.g. "login.html".
func Templates() (*template.Template, error) {
	return template.ParseFS(files, "html/*.html")
}
