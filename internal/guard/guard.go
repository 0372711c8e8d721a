// Package guard decides which views are reachable for a given AuthState.
//
// Gates are pure functions of the state. Middleware adapts them to HTTP and
// Enforcer re-evaluates the current location whenever the state changes.
package guard

import (
	"github.com/leansocial/shell/internal/authstate"
	"github.com/leansocial/shell/internal/urlutil"
)

// Outcome is what a gate wants done with the requested view
type Outcome string

const (
	OutcomeRender       Outcome = "render"
	OutcomeInterstitial Outcome = "interstitial"
	OutcomeRedirect     Outcome = "redirect"
)

// Decision is a gate's verdict. Target is set for redirects only.
type Decision struct {
	Outcome Outcome
	Target  string
}

// Gate decides over the view at requested (a request URI)
type Gate func(st authstate.State, requested string) Decision

// Protected renders the view for an authenticated user and sends everyone
// else to signInPath, remembering the requested view.
func Protected(st authstate.State, signInPath, requested string) Decision {
	switch {
	case st.IsLoading:
		return Decision{Outcome: OutcomeInterstitial}
	case !st.IsAuthenticated:
		return Decision{Outcome: OutcomeRedirect, Target: urlutil.WithReturn(signInPath, requested)}
	default:
		return Decision{Outcome: OutcomeRender}
	}
}

// Public renders the view for an anonymous user. An authenticated user goes
// to the view they originally asked for, or to landingPath.
func Public(st authstate.State, landingPath, requested string) Decision {
	switch {
	case st.IsLoading:
		return Decision{Outcome: OutcomeInterstitial}
	case st.IsAuthenticated:
		target := landingPath
		if ret, ok := urlutil.ReturnTarget(requested); ok {
			target = ret
		}
		return Decision{Outcome: OutcomeRedirect, Target: target}
	default:
		return Decision{Outcome: OutcomeRender}
	}
}

func ProtectedGate(signInPath string) Gate {
	return func(st authstate.State, requested string) Decision {
		return Protected(st, signInPath, requested)
	}
}

func PublicGate(landingPath string) Gate {
	return func(st authstate.State, requested string) Decision {
		return Public(st, landingPath, requested)
	}
}

// Recorder receives every decision taken by Middleware or Enforcer
type Recorder interface {
	GuardDecision(gate string, outcome Outcome)
}

type nopRecorder struct{}

func (nopRecorder) GuardDecision(string, Outcome) {}
