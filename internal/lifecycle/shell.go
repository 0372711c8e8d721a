// Package lifecycle mounts the application shell: it resolves the initial
// authentication state once at startup and keeps it in sync with the
// identity provider until the shell unmounts.
package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/leansocial/shell/internal/authstate"
	"github.com/leansocial/shell/internal/identity"
	"github.com/leansocial/shell/internal/log"
	"github.com/leansocial/shell/internal/nav"
)

const (
	// DefaultBootstrapTimeout bounds the persisted-session fetch at startup
	DefaultBootstrapTimeout = 10 * time.Second
)

var (
	// ErrAlreadyMounted is returned when Mount is called more than once
	ErrAlreadyMounted = errors.New("shell already mounted")
)

// Outcome is how a bootstrap settled
type Outcome string

const (
	OutcomeSession   Outcome = "session"
	OutcomeAbsent    Outcome = "absent"
	OutcomeError     Outcome = "error"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeDiscarded Outcome = "discarded"
)

// Recorder receives lifecycle measurements
type Recorder interface {
	BootstrapSettled(outcome Outcome, took time.Duration)
	ListenerEvent(delivered bool)
}

type nopRecorder struct{}

func (nopRecorder) BootstrapSettled(Outcome, time.Duration) {}
func (nopRecorder) ListenerEvent(bool)                      {}

// Option configures a Shell
type Option func(*Shell)

// WithBootstrapTimeout bounds the startup session fetch. Zero or negative
// values keep the default.
func WithBootstrapTimeout(d time.Duration) Option {
	return func(s *Shell) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(s *Shell) {
		if r != nil {
			s.recorder = r
		}
	}
}

// Shell owns the bootstrapper and the session change listener
type Shell struct {
	store    *authstate.Store
	client   identity.Client
	history  *nav.History
	timeout  time.Duration
	recorder Recorder

	// gate is shared by the bootstrapper and the listener
	gate  *gate
	ready chan struct{}

	mu          sync.Mutex
	mounted     bool
	unmounted   bool
	sub         identity.Subscription
	cancel      context.CancelFunc
	redirectErr error
}

// New creates an unmounted shell
func New(store *authstate.Store, client identity.Client, history *nav.History, opts ...Option) *Shell {
	s := &Shell{
		store:    store,
		client:   client,
		history:  history,
		timeout:  DefaultBootstrapTimeout,
		recorder: nopRecorder{},
		gate:     newGate(),
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mount starts the listener and the bootstrapper. It returns immediately;
// Ready is closed once the bootstrap has settled. A shell mounts at most
// once in its lifetime.
func (s *Shell) Mount(ctx context.Context) error {
	s.mu.Lock()
	if s.mounted || s.unmounted {
		s.mu.Unlock()
		return ErrAlreadyMounted
	}
	s.mounted = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	sub := s.client.OnSessionChange(s.onSessionChange)
	s.mu.Lock()
	s.sub = sub
	raced := s.unmounted
	s.mu.Unlock()
	if raced {
		sub.Unsubscribe()
	}

	log.LogInfoWithFields("lifecycle", "Shell mounted", map[string]any{
		"timeout": s.timeout.String(),
	})

	redirected := s.consumeMarker(ctx)
	go s.bootstrap(ctx, redirected)
	return nil
}

// Unmount stops both paths. Once it returns the store is never mutated by
// this shell again. It is safe to call more than once, or before Mount.
func (s *Shell) Unmount() {
	s.mu.Lock()
	if s.unmounted {
		s.mu.Unlock()
		return
	}
	s.unmounted = true
	sub, cancel := s.sub, s.cancel
	neverMounted := !s.mounted
	s.mu.Unlock()

	// No bootstrap will run to settle Ready
	if neverMounted {
		close(s.ready)
	}

	s.gate.close()
	if sub != nil {
		sub.Unsubscribe()
	}
	if cancel != nil {
		cancel()
	}

	log.LogInfoWithFields("lifecycle", "Shell unmounted", nil)
}

// Ready is closed when the bootstrap has settled, published or discarded.
// A shell unmounted before Mount is ready immediately.
func (s *Shell) Ready() <-chan struct{} {
	return s.ready
}

// RedirectErr reports why completing the launch redirect marker failed
func (s *Shell) RedirectErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.redirectErr
}

func (s *Shell) setRedirectErr(err error) {
	s.mu.Lock()
	s.redirectErr = err
	s.mu.Unlock()
}
