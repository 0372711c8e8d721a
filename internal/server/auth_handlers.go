package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/leansocial/shell/internal/identity"
	jsonwriter "github.com/leansocial/shell/internal/json"
	"github.com/leansocial/shell/internal/log"
	"github.com/leansocial/shell/internal/nav"
	"github.com/leansocial/shell/internal/urlutil"
)

const (
	modeLogin  = "login"
	modeSignup = "signup"
)

// SignInPage renders the sign-in or sign-up page
func (h *Handlers) SignInPage(mode string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := h.page(w, r)
		if err != nil {
			log.LogErrorWithFields("auth", "Failed to generate CSRF token", map[string]any{"error": err.Error()})
			jsonwriter.WriteInternalServerError(w, "Internal server error")
			return
		}
		data.Mode = mode
		data.Action = h.modePath(mode)
		data.Providers = h.providers
		if ret, ok := urlutil.ReturnTarget(r.URL.RequestURI()); ok {
			data.Return = ret
		}
		renderPage(w, http.StatusOK, "signin", data)
	}
}

// StartSignIn sends the browser to the chosen provider. Failures are shown
// on the page the user came from; the auth state is left alone.
func (h *Handlers) StartSignIn(mode string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			jsonwriter.WriteBadRequest(w, "Bad request")
			return
		}
		if !h.validCSRF(r) {
			jsonwriter.WriteForbidden(w, "Invalid CSRF token")
			return
		}

		provider := chi.URLParam(r, "provider")
		returnTo, ok := urlutil.LocalPath(r.FormValue("return"))
		if !ok {
			returnTo = h.cfg.LandingPath
		}

		authURL, err := h.client.SignInExternal(r.Context(), provider, returnTo)
		if err != nil {
			log.LogWarnWithFields("auth", "Failed to start external sign-in", map[string]any{
				"provider": provider,
				"mode":     mode,
				"error":    err.Error(),
			})
			back := urlutil.WithReturn(h.modePath(mode), returnTo)
			h.flashRedirect(w, r, back, signInMessage(err))
			return
		}

		log.LogInfoWithFields("auth", "Redirecting to identity provider", map[string]any{
			"provider": provider,
			"mode":     mode,
		})
		http.Redirect(w, r, authURL, http.StatusSeeOther)
	}
}

func signInMessage(err error) string {
	if errors.Is(err, identity.ErrUnknownProvider) {
		return "That sign-in provider is not available."
	}
	return "Could not start sign-in. Please try again."
}

// Callback completes a provider redirect and navigates to the view the
// user originally asked for
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	marker, found := nav.DetectMarker(r.URL)
	if !found {
		h.flashRedirect(w, r, h.cfg.SignInPath, "The sign-in response was incomplete. Please try again.")
		return
	}

	completer, ok := h.client.(identity.RedirectCompleter)
	if !ok {
		h.flashRedirect(w, r, h.cfg.SignInPath, "This identity provider cannot complete sign-in here.")
		return
	}

	returnURL, err := completer.CompleteRedirect(r.Context(), marker)
	if err != nil {
		log.LogWarnWithFields("auth", "Sign-in callback failed", map[string]any{
			"error": err.Error(),
		})
		h.flashRedirect(w, r, h.cfg.SignInPath, callbackMessage(err))
		return
	}

	target, ok := urlutil.LocalPath(returnURL)
	if !ok {
		target = h.cfg.LandingPath
	}
	if err := h.history.Replace(target); err != nil {
		log.LogWarnWithFields("auth", "Failed to record navigation", map[string]any{"error": err.Error()})
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func callbackMessage(err error) string {
	switch {
	case errors.Is(err, identity.ErrProviderDenied):
		return "Sign-in was cancelled or denied."
	case errors.Is(err, identity.ErrInvalidState):
		return "This sign-in link has expired or was already used. Please try again."
	default:
		return "Sign-in could not be completed. Please try again."
	}
}

// Logout signs out. Failures are shown on the workspace.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		jsonwriter.WriteBadRequest(w, "Bad request")
		return
	}
	if !h.validCSRF(r) {
		jsonwriter.WriteForbidden(w, "Invalid CSRF token")
		return
	}

	if err := h.client.SignOut(r.Context()); err != nil {
		log.LogErrorWithFields("auth", "Sign-out failed", map[string]any{"error": err.Error()})
		h.flashRedirect(w, r, h.cfg.LandingPath, "Sign-out failed. Please try again.")
		return
	}
	http.Redirect(w, r, h.cfg.SignInPath, http.StatusSeeOther)
}
