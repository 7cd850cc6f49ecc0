package handlers

import (
	_ "embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strings"
)

//go:embed openapi.json
var openAPISpec []byte

const specPath = "/v1/openapi.json"

var docsPage = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <title>{{.Title}}</title>
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <style>body { margin: 0; } redoc { display: block; height: 100vh; }</style>
  </head>
  <body>
    <redoc spec-url="{{.SpecURL}}"></redoc>
    <script src="https://cdn.jsdelivr.net/npm/redoc@2.2.0/bundles/redoc.standalone.js"></script>
  </body>
</html>`))

// OpenAPIJSON serves the embedded API description stamped with the running
// version.
func (a *App) OpenAPIJSON(w http.ResponseWriter, _ *http.Request) {
	var doc map[string]any
	if err := json.Unmarshal(openAPISpec, &doc); err != nil {
		a.Logger.Error().Err(err).Msg("api: embedded openapi document is invalid")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	if info, ok := doc["info"].(map[string]any); ok && a.Version != "" {
		info["version"] = a.Version
	}
	a.json(w, http.StatusOK, doc)
}

// OpenAPIDocs renders a Redoc page for the API description.
func (a *App) OpenAPIDocs(w http.ResponseWriter, _ *http.Request) {
	title := "Content Engine API"
	if site := strings.TrimSpace(a.Settings.SEO.SiteName); site != "" {
		title = site + " · " + title
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := docsPage.Execute(w, struct{ Title, SpecURL string }{title, specPath}); err != nil {
		a.Logger.Warn().Err(err).Msg("api: docs page render failed")
	}
}
