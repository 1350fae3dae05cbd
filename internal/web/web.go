// Package web renders the upload page.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/heimdex/heimdex-edit/internal/upload"
)

//go:embed templates/*.html
var templatesFS embed.FS

var page = template.Must(template.ParseFS(templatesFS, "templates/page.html"))

// PageData is the page model.
type PageData struct {
	upload.View
}

// Render writes the page for a widget view.
func Render(w io.Writer, data PageData) error {
	if err := page.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render page: %w", err)
	}
	return nil
}
