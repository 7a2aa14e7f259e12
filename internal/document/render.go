package document

import (
	"embed"
	"fmt"
	htmltemplate "html/template"
	"io"
	texttemplate "text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	htmlTemplate = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/document.html.tmpl"))
	textTemplate = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/document.txt.tmpl"))
)

// RenderHTML writes the printable HTML notice
func RenderHTML(w io.Writer, doc Document) error {
	if err := htmlTemplate.Execute(w, doc); err != nil {
		return fmt.Errorf("failed to render html document: %w", err)
	}
	return nil
}

// RenderText writes the plain-text notice
func RenderText(w io.Writer, doc Document) error {
	if err := textTemplate.Execute(w, doc); err != nil {
		return fmt.Errorf("failed to render text document: %w", err)
	}
	return nil
}
