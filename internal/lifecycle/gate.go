package lifecycle

import "sync"

// gate is the liveness flag shared by the bootstrapper and the listener.
// Mutations run under the read lock so close waits for any in flight;
// they must not call Unmount.
type gate struct {
	mu    sync.RWMutex
	alive bool
}

func newGate() *gate {
	return &gate{alive: true}
}

// do runs fn if the gate is still open and reports whether it ran
func (g *gate) do(fn func()) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.alive {
		return false
	}
	fn()
	return true
}

func (g *gate) close() {
	g.mu.Lock()
	g.alive = false
	g.mu.Unlock()
}
