// Package identity is the shell's view of the external identity provider.
//
// The core treats a Client as a black box: it can return the persisted
// session, stream session changes, start an external sign-in and sign out.
// OAuthClient is the implementation backed by OAuth2 providers and a
// storage.SessionStore.
package identity

import (
	"context"
	"errors"

	"github.com/leansocial/shell/internal/nav"
	"github.com/leansocial/shell/internal/session"
)

var (
	// ErrUnknownProvider is returned when a sign-in names a provider that is not configured
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrInvalidState is returned when a redirect carries a state we did not issue,
	// one that expired, or one already used
	ErrInvalidState = errors.New("invalid sign-in state")

	// ErrProviderDenied wraps an error reported by the provider on the redirect
	ErrProviderDenied = errors.New("provider denied sign-in")

	// ErrNoCredential is returned for a redirect marker with nothing to exchange
	ErrNoCredential = errors.New("redirect carries no credential")
)

// Subscription is a registered session-change handler
type Subscription interface {
	// Unsubscribe stops further delivery. Calling it again has no effect.
	Unsubscribe()
}

// Client is the identity provider capability consumed by the shell
type Client interface {
	// GetSession returns the persisted session, or nil when there is none
	GetSession(ctx context.Context) (*session.Snapshot, error)

	// OnSessionChange registers handler for every later session transition.
	// A nil snapshot means "no session".
	OnSessionChange(handler func(*session.Snapshot)) Subscription

	// SignInExternal returns the provider URL the user must be sent to.
	// redirectTarget is where the shell should land after the sign-in completes.
	SignInExternal(ctx context.Context, provider, redirectTarget string) (string, error)

	// SignOut forgets the session and emits a "no session" event
	SignOut(ctx context.Context) error
}

// RedirectCompleter is implemented by clients that consume provider redirect
// markers themselves. The resulting session is delivered as a change event.
type RedirectCompleter interface {
	CompleteRedirect(ctx context.Context, marker nav.Marker) (returnURL string, err error)
}
