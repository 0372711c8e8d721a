package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/leansocial/shell/internal/guard"
)

// RouterOptions carries the optional parts of the router
type RouterOptions struct {
	// Metrics is mounted at /metrics when set
	Metrics http.Handler
	// Recorder receives guard decisions
	Recorder guard.Recorder
}

// NewRouter wires the shell's routes. The guarded views come from Views,
// and the callback is reachable in any state.
func NewRouter(h *Handlers, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(NewRecoverMiddleware("shell"), NewLoggerMiddleware("shell"))

	interstitial := http.HandlerFunc(h.Interstitial)
	guardOpts := []guard.Option{guard.WithHistory(h.history), guard.WithRecorder(opts.Recorder)}

	r.Get("/", h.Home)

	for _, v := range Views(h.cfg) {
		r.With(guard.Middleware(h.store, v.GateName, v.Gate, interstitial, guardOpts...)).Get(v.Path, h.viewHandler(v))
	}
	r.Post(h.cfg.SignInPath+"/{provider}", h.StartSignIn(modeLogin))
	r.Post(h.cfg.SignUpPath+"/{provider}", h.StartSignIn(modeSignup))
	r.Get("/auth/callback", h.Callback)
	r.Post("/logout", h.Logout)

	r.Get("/events", h.Events)
	r.Get("/state", h.State)
	r.Get("/healthz", NewHealthHandler().ServeHTTP)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	r.NotFound(h.NotFound)
	return r
}
