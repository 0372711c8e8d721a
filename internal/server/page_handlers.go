package server

import (
	"net/http"

	"github.com/leansocial/shell/internal/api"
	jsonwriter "github.com/leansocial/shell/internal/json"
	"github.com/leansocial/shell/internal/log"
)

func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	data, err := h.page(w, r)
	if err != nil {
		jsonwriter.WriteInternalServerError(w, "Internal server error")
		return
	}
	renderPage(w, http.StatusOK, "home", data)
}

// Workspace shows the signed-in user and what the backend says about them.
// Backend failures are shown inline.
func (h *Handlers) Workspace(w http.ResponseWriter, r *http.Request) {
	data, err := h.page(w, r)
	if err != nil {
		jsonwriter.WriteInternalServerError(w, "Internal server error")
		return
	}
	if st := h.store.Snapshot(); st.Session != nil {
		user := st.Session.User
		data.User = &user
	}

	if h.api != nil {
		if health, err := h.api.Health(r.Context()); err == nil {
			data.Health = health
		} else {
			data.APIError = "The LeanSocial API is unreachable right now."
			log.LogWarnWithFields("server", "Backend health check failed", map[string]any{"error": err.Error()})
		}
		if profile, err := h.api.Me(r.Context()); err == nil {
			data.Profile = profile
		} else if data.APIError == "" {
			data.APIError = "Could not load your profile."
			if api.IsUnauthorized(err) {
				data.APIError = "The API did not accept your session."
			}
			log.LogWarnWithFields("server", "Profile fetch failed", map[string]any{"error": err.Error()})
		}
	}

	renderPage(w, http.StatusOK, "workspace", data)
}

// Interstitial is served by the guards while the session is being resolved
func (h *Handlers) Interstitial(w http.ResponseWriter, _ *http.Request) {
	renderPage(w, http.StatusOK, "interstitial", PageData{Paths: h.paths()})
}

func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	renderPage(w, http.StatusNotFound, "notfound", PageData{
		Authenticated: h.store.Snapshot().IsAuthenticated,
		Paths:         h.paths(),
		Path:          r.URL.Path,
	})
}

// State returns the AuthState with credentials masked
func (h *Handlers) State(w http.ResponseWriter, _ *http.Request) {
	_ = jsonwriter.Write(w, h.store.Snapshot().Redacted())
}
