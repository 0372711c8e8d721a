package identity

import (
	"sync"

	"github.com/google/uuid"
	"github.com/leansocial/shell/internal/log"
	"github.com/leansocial/shell/internal/session"
)

// hub fans session changes out to handlers in registration order.
// Deliveries are serialised so handlers never observe two events at once.
type hub struct {
	deliver sync.Mutex

	mu       sync.Mutex
	handlers map[string]func(*session.Snapshot)
	order    []string
}

func newHub() *hub {
	return &hub{handlers: make(map[string]func(*session.Snapshot))}
}

type subscription struct {
	hub  *hub
	id   string
	once sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.remove(s.id)
	})
}

func (h *hub) subscribe(fn func(*session.Snapshot)) Subscription {
	id := uuid.NewString()

	h.mu.Lock()
	h.handlers[id] = fn
	h.order = append(h.order, id)
	count := len(h.order)
	h.mu.Unlock()

	log.LogDebugWithFields("identity", "Session change handler registered", map[string]any{
		"subscription": id,
		"handlers":     count,
	})
	return &subscription{hub: h, id: id}
}

func (h *hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.handlers, id)
	for i, v := range h.order {
		if v == id {
			h.order = append(h.order[:i:i], h.order[i+1:]...)
			break
		}
	}
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.order)
}

// emit delivers snap to every handler still registered when its turn comes
func (h *hub) emit(snap *session.Snapshot) {
	h.deliver.Lock()
	defer h.deliver.Unlock()

	h.mu.Lock()
	ids := append([]string(nil), h.order...)
	h.mu.Unlock()

	log.LogTraceWithFields("identity", "Emitting session change", map[string]any{
		"present":  snap != nil,
		"handlers": len(ids),
	})

	for _, id := range ids {
		h.mu.Lock()
		fn, ok := h.handlers[id]
		h.mu.Unlock()
		if ok {
			fn(snap.Clone())
		}
	}
}
