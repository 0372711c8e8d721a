package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leansocial/shell/internal/identity"
	"github.com/leansocial/shell/internal/log"
	"github.com/leansocial/shell/internal/nav"
	"github.com/leansocial/shell/internal/session"
)

// consumeMarker strips a provider redirect marker from the launch location.
// This is the only place markers are stripped, so a later navigation
// carrying one is never reprocessed. When the client completes markers the
// returned channel is closed once it has; otherwise it is nil.
func (s *Shell) consumeMarker(ctx context.Context) <-chan struct{} {
	cur := s.history.Current()
	marker, found := nav.DetectMarker(&cur)
	if !found {
		return nil
	}
	s.history.ReplaceURL(*nav.StripMarker(&cur))

	log.LogInfoWithFields("lifecycle", "Stripped redirect marker from launch location", map[string]any{
		"fragment": marker.InFragment,
		"error":    marker.Error,
	})

	completer, ok := s.client.(identity.RedirectCompleter)
	if !ok {
		return nil
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.completeRedirect(ctx, completer, marker)
	}()
	return done
}

func (s *Shell) completeRedirect(ctx context.Context, completer identity.RedirectCompleter, marker nav.Marker) {
	defer func() {
		if r := recover(); r != nil {
			s.setRedirectErr(fmt.Errorf("identity client panicked: %v", r))
		}
	}()

	returnURL, err := completer.CompleteRedirect(ctx, marker)
	if err != nil {
		log.LogWarnWithFields("lifecycle", "Redirect marker could not be completed", map[string]any{
			"error": err.Error(),
		})
		s.setRedirectErr(err)
		return
	}
	if returnURL == "" {
		return
	}

	s.gate.do(func() {
		if err := s.history.Replace(returnURL); err != nil {
			log.LogWarnWithFields("lifecycle", "Ignoring invalid return URL", map[string]any{
				"return": returnURL,
				"error":  err.Error(),
			})
		}
	})
}

// bootstrap resolves the initial state exactly once. A marker being
// completed is waited for first so the fetch sees the session it produced.
func (s *Shell) bootstrap(ctx context.Context, redirected <-chan struct{}) {
	defer close(s.ready)

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if redirected != nil {
		select {
		case <-redirected:
		case <-ctx.Done():
		}
	}
	snap, outcome := s.fetch(ctx)

	if !s.gate.do(func() { s.store.Publish(snap) }) {
		outcome = OutcomeDiscarded
	}

	took := time.Since(start)
	s.recorder.BootstrapSettled(outcome, took)
	log.LogInfoWithFields("lifecycle", "Bootstrap settled", map[string]any{
		"outcome":  string(outcome),
		"duration": took.String(),
	})
}

type fetchResult struct {
	snap *session.Snapshot
	err  error
}

// fetch asks the identity client for the persisted session. It settles
// when ctx does, even if the client ignores its context.
func (s *Shell) fetch(ctx context.Context) (*session.Snapshot, Outcome) {
	done := make(chan fetchResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fetchResult{err: fmt.Errorf("identity client panicked: %v", r)}
			}
		}()
		snap, err := s.client.GetSession(ctx)
		done <- fetchResult{snap: snap, err: err}
	}()

	select {
	case res := <-done:
		switch {
		case res.err != nil:
			log.LogWarnWithFields("lifecycle", "Session fetch failed, continuing unauthenticated", map[string]any{
				"error": res.err.Error(),
			})
			return nil, OutcomeError
		case res.snap == nil:
			return nil, OutcomeAbsent
		default:
			return res.snap, OutcomeSession
		}
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.LogWarnWithFields("lifecycle", "Session fetch timed out, continuing unauthenticated", map[string]any{
				"timeout": s.timeout.String(),
			})
			return nil, OutcomeTimeout
		}
		return nil, OutcomeError
	}
}
