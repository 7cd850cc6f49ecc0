package handlers

import (
	"net/http"
	"time"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"mode":    a.Settings.Mode,
		"version": a.Version,
		"time":    a.now().UTC().Format(time.RFC3339),
	})
}
