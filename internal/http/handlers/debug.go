package handlers

import (
	"net/http"

	"contentengine/internal/providers/generation"
)

type providerStatus struct {
	Enabled             bool                  `json:"enabled"`
	APIBase             string                `json:"api_base"`
	Endpoint            string                `json:"endpoint"`
	Model               string                `json:"model"`
	KeyPresent          bool                  `json:"key_present"`
	AnthropicConfigured bool                  `json:"anthropic_configured"`
	LastError           *generation.LastError `json:"last_error"`
}

// ProviderStatus reports provider configuration and the latest failure. The
// API key itself is never returned.
func (a *App) ProviderStatus(w http.ResponseWriter, r *http.Request) {
	p := a.Settings.Provider
	status := providerStatus{
		Enabled:             p.Enabled,
		APIBase:             p.APIBase,
		Endpoint:            a.Endpoint,
		Model:               p.Model,
		KeyPresent:          p.APIKey != "",
		AnthropicConfigured: p.AnthropicKey != "",
	}
	if last, ok := a.Errors.Last(); ok {
		status.LastError = &last
	}
	a.json(w, http.StatusOK, status)
}

// ProviderModels lists models offered by the configured endpoint.
func (a *App) ProviderModels(w http.ResponseWriter, r *http.Request) {
	p := a.Settings.Provider
	models := a.Models.Models(r.Context(), p.APIBase, p.APIKey)
	a.json(w, http.StatusOK, map[string]any{"models": models})
}
