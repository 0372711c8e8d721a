package guard

import (
	"net/http"

	"github.com/leansocial/shell/internal/authstate"
	"github.com/leansocial/shell/internal/log"
	"github.com/leansocial/shell/internal/nav"
)

// Option configures Middleware
type Option func(*middleware)

// WithRecorder reports decisions to r
func WithRecorder(r Recorder) Option {
	return func(m *middleware) {
		if r != nil {
			m.recorder = r
		}
	}
}

// WithHistory records every rendered view as a navigation
func WithHistory(h *nav.History) Option {
	return func(m *middleware) {
		m.history = h
	}
}

type middleware struct {
	store        *authstate.Store
	name         string
	gate         Gate
	interstitial http.Handler
	recorder     Recorder
	history      *nav.History
}

// Middleware guards a view. While the state is pending the interstitial is
// served uncached and the client is asked to retry; redirects are 302s.
// A nil interstitial serves a plain text placeholder.
func Middleware(store *authstate.Store, name string, gate Gate, interstitial http.Handler, opts ...Option) func(http.Handler) http.Handler {
	m := &middleware{
		store:        store,
		name:         name,
		gate:         gate,
		interstitial: interstitial,
		recorder:     nopRecorder{},
	}
	if m.interstitial == nil {
		m.interstitial = http.HandlerFunc(defaultInterstitial)
	}
	for _, opt := range opts {
		opt(m)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requested := r.URL.RequestURI()
			d := m.gate(m.store.Snapshot(), requested)
			m.recorder.GuardDecision(m.name, d.Outcome)

			log.LogTraceWithFields("guard", "Decision", map[string]any{
				"gate":    m.name,
				"path":    r.URL.Path,
				"outcome": string(d.Outcome),
				"target":  d.Target,
			})

			switch d.Outcome {
			case OutcomeInterstitial:
				w.Header().Set("Cache-Control", "no-store")
				w.Header().Set("Retry-After", "1")
				m.interstitial.ServeHTTP(w, r)
			case OutcomeRedirect:
				http.Redirect(w, r, d.Target, http.StatusFound)
			default:
				if m.history != nil {
					if err := m.history.Push(requested); err != nil {
						log.LogWarnWithFields("guard", "Failed to record navigation", map[string]any{
							"path":  requested,
							"error": err.Error(),
						})
					}
				}
				next.ServeHTTP(w, r)
			}
		})
	}
}

func defaultInterstitial(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Checking your session...\n"))
}
