// Package templates handles HTML template rendering for Datastar SSE responses.
package templates

import (
	"bytes"
	"html/template"
	"io"
	"path/filepath"
)

// Renderer manages HTML fragment templates.
type Renderer struct {
	templates *template.Template
	dir       string
}

// New creates a new template renderer.
// fragmentsDir should be the path to web/templates/fragments/
func New(fragmentsDir string) (*Renderer, error) {
	tmpl, err := parse(fragmentsDir)
	if err != nil {
		return nil, err
	}
	return &Renderer{templates: tmpl, dir: fragmentsDir}, nil
}

func parse(fragmentsDir string) (*template.Template, error) {
	pattern := filepath.Join(fragmentsDir, "*.html")
	return template.New("").ParseGlob(pattern)
}

// Render renders a named template to a string.
func (r *Renderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.RenderToBuffer(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderToBuffer renders a named template to a buffer.
func (r *Renderer) RenderToBuffer(buf *bytes.Buffer, name string, data any) error {
	return r.templates.ExecuteTemplate(buf, name, data)
}

// MustRender renders a template and panics on error.
// Use only when you're certain the template exists.
func (r *Renderer) MustRender(name string, data any) string {
	s, err := r.Render(name, data)
	if err != nil {
		panic(err)
	}
	return s
}

// Page renders a full page file. The page can include any fragment with
// {{template "name" .}}. The page and its fragments are parsed on every call,
// so edits on disk show up without a restart.
func (r *Renderer) Page(w io.Writer, pagePath string, data any) error {
	tmpl, err := parse(r.dir)
	if err != nil {
		return err
	}
	if _, err := tmpl.ParseFiles(pagePath); err != nil {
		return err
	}
	return tmpl.ExecuteTemplate(w, filepath.Base(pagePath), data)
}
