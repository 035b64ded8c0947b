package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
)

//go:embed grid.html
var files embed.FS

// Renderer executes the grid template.
type Renderer struct {
	tpl *template.Template
}

// NewRenderer parses the embedded grid template.
func NewRenderer() (*Renderer, error) {
	tpl, err := template.ParseFS(files, "grid.html")
	if err != nil {
		return nil, fmt.Errorf("render: parse grid template: %w", err)
	}
	return &Renderer{tpl: tpl}, nil
}

// Render writes the grid for m.
func (r *Renderer) Render(w io.Writer, m Model) error {
	if r == nil {
		return fmt.Errorf("render: renderer not initialised")
	}
	return r.tpl.ExecuteTemplate(w, "grid", m)
}

// HTML renders m into a fragment for embedding in a page template.
func (r *Renderer) HTML(m Model) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf, m); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
