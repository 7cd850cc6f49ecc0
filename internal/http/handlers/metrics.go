package handlers

import "net/http"

func (a *App) MetricsSnapshot(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, a.Metrics.Snapshot())
}
