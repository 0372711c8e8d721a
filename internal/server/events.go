package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/leansocial/shell/internal/authstate"
	jsonwriter "github.com/leansocial/shell/internal/json"
	"github.com/leansocial/shell/internal/log"
	"github.com/leansocial/shell/internal/nav"
	"github.com/leansocial/shell/internal/sse"
)

// keepAliveInterval is how often an idle event stream gets a comment line
var keepAliveInterval = 15 * time.Second

type authEvent struct {
	Phase           authstate.Phase `json:"phase"`
	IsAuthenticated bool            `json:"is_authenticated"`
	IsLoading       bool            `json:"is_loading"`
	Revision        uint64          `json:"revision"`
}

func newAuthEvent(st authstate.State) authEvent {
	return authEvent{
		Phase:           st.Phase(),
		IsAuthenticated: st.IsAuthenticated,
		IsLoading:       st.IsLoading,
		Revision:        st.Revision,
	}
}

type navigateEvent struct {
	Location string         `json:"location"`
	Kind     nav.ChangeKind `json:"kind,omitempty"`
}

// Events streams auth phase changes and navigations to the browser
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonwriter.WriteInternalServerError(w, "Streaming unsupported")
		return
	}

	states, cancelStates := h.store.Watch()
	defer cancelStates()

	// Only replacements are redirects the browser must follow; pushes are
	// the browser's own navigations. History subscribers run inside store
	// turns, so never block there.
	navs := make(chan nav.Change, 16)
	cancelNav := h.history.Subscribe(func(c nav.Change) {
		if c.Kind != nav.ChangeReplace {
			return
		}
		select {
		case navs <- c:
		default:
		}
	})
	defer cancelNav()

	clientID := uuid.NewString()
	log.LogDebugWithFields("events", "Event stream opened", map[string]any{"client": clientID})
	defer log.LogDebugWithFields("events", "Event stream closed", map[string]any{"client": clientID})

	sse.PrepareHeaders(w)
	w.WriteHeader(http.StatusOK)

	if err := sse.WriteEvent(w, flusher, "auth", newAuthEvent(h.store.Snapshot())); err != nil {
		return
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-r.Context().Done():
			return
		case st := <-states:
			err = sse.WriteEvent(w, flusher, "auth", newAuthEvent(st))
		case c := <-navs:
			err = sse.WriteEvent(w, flusher, "navigate", navigateEvent{Location: c.Location.RequestURI(), Kind: c.Kind})
		case <-ticker.C:
			err = sse.WriteComment(w, flusher, "keep-alive")
		}
		if err != nil {
			log.LogDebugWithFields("events", "Event stream write failed", map[string]any{
				"client": clientID,
				"error":  err.Error(),
			})
			return
		}
	}
}
