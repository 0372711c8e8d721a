package server

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/leansocial/shell/internal/api"
	"github.com/leansocial/shell/internal/log"
	"github.com/leansocial/shell/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = map[string]*template.Template{
	"home":         parsePage("home"),
	"signin":       parsePage("signin"),
	"workspace":    parsePage("workspace"),
	"interstitial": parsePage("interstitial"),
	"notfound":     parsePage("notfound"),
}

func parsePage(name string) *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html"))
}

// ProviderOption is a sign-in button on the sign-in page
type ProviderOption struct {
	Name        string
	DisplayName string
}

// PageData is the data every page template renders from
type PageData struct {
	Authenticated bool
	CSRFToken     string
	Message       string
	MessageType   string // "success" or "error"
	Paths         ViewPaths

	// Sign-in and sign-up
	Mode      string
	Action    string
	Providers []ProviderOption
	Return    string

	// Workspace
	User     *session.User
	Profile  *api.Profile
	Health   *api.HealthStatus
	APIError string

	// Not found
	Path string
}

// renderPage executes the page fully before writing so a template error
// never leaves a half-written response
func renderPage(w http.ResponseWriter, status int, name string, data PageData) {
	var buf bytes.Buffer
	if err := pageTemplates[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		log.LogErrorWithFields("server", "Failed to render page", map[string]any{
			"page":  name,
			"error": err.Error(),
		})
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
