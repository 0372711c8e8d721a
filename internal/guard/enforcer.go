package guard

import (
	"sync"

	"github.com/leansocial/shell/internal/authstate"
	"github.com/leansocial/shell/internal/log"
	"github.com/leansocial/shell/internal/nav"
)

type binding struct {
	name string
	gate Gate
}

// Enforcer re-evaluates the gate bound to the current location on every
// state change. A redirect replaces the current history entry, so an
// already rendered view is left without a reload.
type Enforcer struct {
	store    *authstate.Store
	history  *nav.History
	recorder Recorder

	mu     sync.RWMutex
	routes map[string]binding
	cancel func()
}

// NewEnforcer creates an enforcer; call Bind for each guarded path, then Start
func NewEnforcer(store *authstate.Store, history *nav.History, recorder Recorder) *Enforcer {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Enforcer{
		store:    store,
		history:  history,
		recorder: recorder,
		routes:   make(map[string]binding),
	}
}

// Bind guards the view at path with gate
func (e *Enforcer) Bind(path, name string, gate Gate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.routes[path] = binding{name: name, gate: gate}
}

// Start subscribes to the store. Starting twice has no further effect.
func (e *Enforcer) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}
	e.cancel = e.store.Subscribe(func(st authstate.State) { e.evaluate(st) })
}

// Stop unsubscribes from the store
func (e *Enforcer) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Evaluate applies the gate of the current location to the current state
func (e *Enforcer) Evaluate() Decision {
	return e.evaluate(e.store.Snapshot())
}

func (e *Enforcer) evaluate(st authstate.State) Decision {
	cur := e.history.Current()

	e.mu.RLock()
	b, ok := e.routes[cur.Path]
	e.mu.RUnlock()
	if !ok {
		return Decision{Outcome: OutcomeRender}
	}

	d := b.gate(st, cur.RequestURI())
	e.recorder.GuardDecision(b.name, d.Outcome)
	if d.Outcome != OutcomeRedirect {
		return d
	}

	log.LogInfoWithFields("guard", "Redirecting rendered view", map[string]any{
		"gate":   b.name,
		"from":   cur.RequestURI(),
		"target": d.Target,
		"phase":  string(st.Phase()),
	})
	if err := e.history.Replace(d.Target); err != nil {
		log.LogWarnWithFields("guard", "Failed to apply redirect", map[string]any{
			"target": d.Target,
			"error":  err.Error(),
		})
	}
	return d
}
