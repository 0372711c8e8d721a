package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/leansocial/shell/internal/api"
	"github.com/leansocial/shell/internal/authstate"
	"github.com/leansocial/shell/internal/config"
	"github.com/leansocial/shell/internal/cookie"
	"github.com/leansocial/shell/internal/crypto"
	"github.com/leansocial/shell/internal/identity"
	"github.com/leansocial/shell/internal/nav"
)

// csrfTTL bounds how long a rendered form stays submittable
const csrfTTL = 15 * time.Minute

// Handlers serves the shell's pages and actions
type Handlers struct {
	cfg       config.ShellConfig
	providers []ProviderOption
	store     *authstate.Store
	client    identity.Client
	api       *api.Client
	history   *nav.History
	csrf      crypto.CSRFProtection
	secure    bool
}

// NewHandlers creates the shell handlers
func NewHandlers(
	cfg config.ShellConfig,
	providers []ProviderOption,
	store *authstate.Store,
	client identity.Client,
	apiClient *api.Client,
	history *nav.History,
) (*Handlers, error) {
	if len(cfg.CSRFSecret) < 32 {
		return nil, fmt.Errorf("csrf secret must be at least 32 bytes")
	}
	if cfg.LandingPath == "" {
		cfg.LandingPath = config.DefaultLandingPath
	}
	if cfg.SignInPath == "" {
		cfg.SignInPath = config.DefaultSignInPath
	}
	if cfg.SignUpPath == "" {
		cfg.SignUpPath = config.DefaultSignUpPath
	}
	return &Handlers{
		cfg:       cfg,
		providers: providers,
		store:     store,
		client:    client,
		api:       apiClient,
		history:   history,
		csrf:      crypto.NewCSRFProtection([]byte(cfg.CSRFSecret), csrfTTL),
		secure:    strings.HasPrefix(cfg.BaseURL, "https://"),
	}, nil
}

// page starts the data of a page render: auth flag, flash message and a
// fresh CSRF token bound to a cookie
func (h *Handlers) page(w http.ResponseWriter, r *http.Request) (PageData, error) {
	data := PageData{
		Authenticated: h.store.Snapshot().IsAuthenticated,
		Paths:         h.paths(),
	}
	if msg := cookie.PopFlash(w, r); msg != "" {
		data.Message = msg
		data.MessageType = "error"
	}

	token, err := h.csrf.Generate()
	if err != nil {
		return data, err
	}
	cookie.SetCSRF(w, token, csrfTTL, h.secure)
	data.CSRFToken = token
	return data, nil
}

// validCSRF checks the submitted token is ours, fresh and matches the cookie
func (h *Handlers) validCSRF(r *http.Request) bool {
	submitted := r.FormValue("csrf_token")
	if submitted == "" || !h.csrf.Validate(submitted) {
		return false
	}
	fromCookie, err := cookie.GetCSRF(r)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(submitted), []byte(fromCookie)) == 1
}

// flashRedirect shows message on the page at target
func (h *Handlers) flashRedirect(w http.ResponseWriter, r *http.Request, target, message string) {
	cookie.SetFlash(w, message, h.secure)
	http.Redirect(w, r, target, http.StatusSeeOther)
}
