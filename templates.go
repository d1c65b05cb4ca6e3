package samlspflow

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
)

//go:embed templates/*.html
var embeddedTemplates embed.FS

// WAYFChoice is one selectable identity provider on the discovery page.
type WAYFChoice struct {
	EntityID    string
	DisplayName string
	LoginURL    string
}

// WAYFData holds data for rendering the IdP discovery page template.
type WAYFData struct {
	IdPs []WAYFChoice
	Next string
}

// ErrorData holds data for rendering error page templates.
type ErrorData struct {
	Title   string
	Message string
}

// TemplateRenderer renders the HTML pages of the SP flows.
type TemplateRenderer struct {
	wayf      *template.Template
	err       *template.Template
	loggedOut *template.Template
}

// NewTemplateRenderer creates a renderer using embedded templates.
func NewTemplateRenderer() (*TemplateRenderer, error) {
	wayf, err := template.ParseFS(embeddedTemplates, "templates/wayf.html")
	if err != nil {
		return nil, fmt.Errorf("parse embedded wayf.html: %w", err)
	}

	errTmpl, err := template.ParseFS(embeddedTemplates, "templates/error.html")
	if err != nil {
		return nil, fmt.Errorf("parse embedded error.html: %w", err)
	}

	loggedOut, err := template.ParseFS(embeddedTemplates, "templates/loggedout.html")
	if err != nil {
		return nil, fmt.Errorf("parse embedded loggedout.html: %w", err)
	}

	return &TemplateRenderer{
		wayf:      wayf,
		err:       errTmpl,
		loggedOut: loggedOut,
	}, nil
}

// NewTemplateRendererWithDir creates a renderer that loads custom templates
// from the given directory, falling back to embedded for missing files.
func NewTemplateRendererWithDir(dir string) (*TemplateRenderer, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("templates directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("templates path is not a directory: %s", dir)
	}

	wayf, err := loadTemplate(dir, "wayf.html")
	if err != nil {
		return nil, fmt.Errorf("load wayf template: %w", err)
	}

	errTmpl, err := loadTemplate(dir, "error.html")
	if err != nil {
		return nil, fmt.Errorf("load error template: %w", err)
	}

	loggedOut, err := loadTemplate(dir, "loggedout.html")
	if err != nil {
		return nil, fmt.Errorf("load loggedout template: %w", err)
	}

	return &TemplateRenderer{
		wayf:      wayf,
		err:       errTmpl,
		loggedOut: loggedOut,
	}, nil
}

// loadTemplate tries to load a template from the custom directory,
// falling back to the embedded version if the file doesn't exist.
func loadTemplate(dir, name string) (*template.Template, error) {
	customPath := filepath.Join(dir, name)

	if _, err := os.Stat(customPath); err == nil {
		tmpl, err := template.ParseFiles(customPath)
		if err != nil {
			return nil, fmt.Errorf("parse custom %s: %w", name, err)
		}
		return tmpl, nil
	}

	tmpl, err := template.ParseFS(embeddedTemplates, "templates/"+name)
	if err != nil {
		return nil, fmt.Errorf("parse embedded %s: %w", name, err)
	}
	return tmpl, nil
}

// RenderWAYF renders the IdP discovery page.
func (r *TemplateRenderer) RenderWAYF(w io.Writer, data WAYFData) error {
	return r.wayf.Execute(w, data)
}

// RenderError renders an error page.
func (r *TemplateRenderer) RenderError(w io.Writer, data ErrorData) error {
	return r.err.Execute(w, data)
}

// RenderLoggedOut renders the post-logout confirmation page.
func (r *TemplateRenderer) RenderLoggedOut(w io.Writer) error {
	return r.loggedOut.Execute(w, nil)
}
