package server

import (
	"net/http"

	"github.com/leansocial/shell/internal/config"
	"github.com/leansocial/shell/internal/guard"
)

// View is a guarded page. The router serves it behind Gate and the
// enforcer re-checks it whenever the auth state changes.
type View struct {
	Path     string
	GateName string
	Gate     guard.Gate
	page     string
}

// Views lists the guarded pages at their configured paths
func Views(cfg config.ShellConfig) []View {
	public := guard.PublicGate(cfg.LandingPath)
	return []View{
		{Path: cfg.LandingPath, GateName: "protected", Gate: guard.ProtectedGate(cfg.SignInPath), page: "workspace"},
		{Path: cfg.SignInPath, GateName: "public", Gate: public, page: modeLogin},
		{Path: cfg.SignUpPath, GateName: "public", Gate: public, page: modeSignup},
	}
}

// Views lists the guarded pages this router serves
func (h *Handlers) Views() []View {
	return Views(h.cfg)
}

// ViewPaths are the links the templates render
type ViewPaths struct {
	Landing string
	SignIn  string
	SignUp  string
}

func (h *Handlers) paths() ViewPaths {
	return ViewPaths{
		Landing: h.cfg.LandingPath,
		SignIn:  h.cfg.SignInPath,
		SignUp:  h.cfg.SignUpPath,
	}
}

// modePath is where the sign-in or sign-up page of mode is served
func (h *Handlers) modePath(mode string) string {
	if mode == modeSignup {
		return h.cfg.SignUpPath
	}
	return h.cfg.SignInPath
}

func (h *Handlers) viewHandler(v View) http.HandlerFunc {
	if v.page == "workspace" {
		return h.Workspace
	}
	return h.SignInPage(v.page)
}
