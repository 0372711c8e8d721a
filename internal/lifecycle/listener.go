package lifecycle

import (
	"github.com/leansocial/shell/internal/log"
	"github.com/leansocial/shell/internal/session"
)

// onSessionChange republishes a provider event into the store
func (s *Shell) onSessionChange(snap *session.Snapshot) {
	delivered := s.gate.do(func() {
		if snap == nil {
			s.store.Clear()
			return
		}
		s.store.Publish(snap)
	})
	s.recorder.ListenerEvent(delivered)

	if !delivered {
		log.LogDebugWithFields("lifecycle", "Dropped session event after unmount", map[string]any{
			"present": snap != nil,
		})
		return
	}
	log.LogTraceWithFields("lifecycle", "Session event applied", map[string]any{
		"present": snap != nil,
	})
}
