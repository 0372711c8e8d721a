// Package authstate holds the process-wide authentication state of the shell.
//
// The Store is the single source of truth for whether the current user is
// authenticated. It is mutated only through Publish and Clear, and every
// mutation is delivered to subscribers before the next mutation begins.
package authstate

import (
	"sync"

	"github.com/leansocial/shell/internal/session"
)

// Phase is the guard-facing view of a State
type Phase string

const (
	PhasePending         Phase = "pending"
	PhaseAuthenticated   Phase = "authenticated"
	PhaseUnauthenticated Phase = "unauthenticated"
)

// State is an immutable copy of the authentication state.
// IsAuthenticated always equals Session != nil.
type State struct {
	Session         *session.Snapshot `json:"session"`
	IsAuthenticated bool              `json:"is_authenticated"`
	IsLoading       bool              `json:"is_loading"`

	// Revision counts mutations since the store was created
	Revision uint64 `json:"revision"`
}

// Phase collapses the flags into the three-state guard machine
func (s State) Phase() Phase {
	switch {
	case s.IsLoading:
		return PhasePending
	case s.IsAuthenticated:
		return PhaseAuthenticated
	default:
		return PhaseUnauthenticated
	}
}

// Redacted returns a copy whose session credentials are masked
func (s State) Redacted() State {
	s.Session = s.Session.Redacted()
	return s
}

// Observer is told about every transition, after subscribers
type Observer func(prev, next State)

// Option configures a Store
type Option func(*Store)

// WithObserver registers an observer, used for metrics and logging
func WithObserver(o Observer) Option {
	return func(s *Store) {
		s.observers = append(s.observers, o)
	}
}

// Store owns the AuthState. The zero value is not usable; use New.
type Store struct {
	// turn serialises whole mutations including notification.
	// Subscribers run inside the turn and must not call Publish or Clear.
	turn sync.Mutex

	mu    sync.RWMutex
	state State
	subs  map[uint64]func(State)
	order []uint64
	next  uint64

	observers []Observer
}

// New creates a store in the initial loading state with no session
func New(opts ...Option) *Store {
	s := &Store{
		state: State{IsLoading: true},
		subs:  make(map[uint64]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current state. Safe to call from subscribers.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Publish replaces the session wholesale and resolves loading.
// A nil snapshot publishes "no session".
func (s *Store) Publish(snap *session.Snapshot) {
	s.apply(snap.Clone())
}

// Clear drops the session. Calling it repeatedly yields the same state.
func (s *Store) Clear() {
	s.apply(nil)
}

func (s *Store) apply(snap *session.Snapshot) {
	s.turn.Lock()
	defer s.turn.Unlock()

	s.mu.Lock()
	prev := s.state
	next := State{
		Session:         snap,
		IsAuthenticated: snap != nil,
		IsLoading:       false,
		Revision:        prev.Revision + 1,
	}
	s.state = next
	subs := make([]func(State), 0, len(s.order))
	for _, id := range s.order {
		subs = append(subs, s.subs[id])
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	for _, o := range s.observers {
		o(prev, next)
	}
}

// Subscribe registers fn to be called with every new state.
// The returned cancel func is idempotent.
func (s *Store) Subscribe(fn func(State)) (cancel func()) {
	s.mu.Lock()
	s.next++
	id := s.next
	s.subs[id] = fn
	s.order = append(s.order, id)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Watch returns a channel that always holds the latest state not yet read.
// Intermediate states may be skipped; the last one is never lost.
// The channel is not closed by cancel.
func (s *Store) Watch() (<-chan State, func()) {
	ch := make(chan State, 1)
	cancel := s.Subscribe(func(st State) {
		for {
			select {
			case ch <- st:
				return
			default:
			}
			select {
			case <-ch:
			default:
			}
		}
	})
	return ch, cancel
}
