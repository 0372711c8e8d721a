package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/leansocial/shell/internal/crypto"
	"github.com/leansocial/shell/internal/idp"
	"github.com/leansocial/shell/internal/log"
	"github.com/leansocial/shell/internal/nav"
	"github.com/leansocial/shell/internal/session"
	"github.com/leansocial/shell/internal/storage"
	"golang.org/x/sync/singleflight"
)

const (
	// StateTTL bounds how long a sign-in may take at the provider
	StateTTL = 10 * time.Minute

	// DefaultRefreshThreshold is how early a session is refreshed before expiry
	DefaultRefreshThreshold = 5 * time.Minute

	// DefaultRefreshInterval is how often Run checks the session for refresh
	DefaultRefreshInterval = time.Minute
)

var (
	_ Client            = (*OAuthClient)(nil)
	_ RedirectCompleter = (*OAuthClient)(nil)
)

// OAuthClient signs users in through OAuth2 providers and keeps the session
// in a SessionStore.
type OAuthClient struct {
	providers       map[string]idp.Provider
	policies        map[string]idp.AccessPolicy
	defaultProvider string

	store   storage.SessionStore
	profile string
	signer  crypto.TokenSigner

	refreshThreshold time.Duration
	refreshInterval  time.Duration
	now              func() time.Time

	hub   *hub
	group singleflight.Group

	// usedNonces makes sign-in states single use
	mu         sync.Mutex
	usedNonces map[string]time.Time
}

// Option configures an OAuthClient
type Option func(*OAuthClient)

// WithProvider registers a provider under name
func WithProvider(name string, p idp.Provider, policy idp.AccessPolicy) Option {
	return func(c *OAuthClient) {
		c.providers[name] = p
		c.policies[name] = policy
	}
}

// WithDefaultProvider names the provider used when a sign-in does not pick one
func WithDefaultProvider(name string) Option {
	return func(c *OAuthClient) {
		c.defaultProvider = name
	}
}

// WithProfile selects which stored session this client owns
func WithProfile(profile string) Option {
	return func(c *OAuthClient) {
		c.profile = profile
	}
}

// WithRefresh sets how early and how often sessions are refreshed
func WithRefresh(threshold, interval time.Duration) Option {
	return func(c *OAuthClient) {
		if threshold > 0 {
			c.refreshThreshold = threshold
		}
		if interval > 0 {
			c.refreshInterval = interval
		}
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(c *OAuthClient) {
		c.now = now
	}
}

// NewOAuthClient creates a client. stateKey signs the sign-in state and must
// be at least 32 bytes.
func NewOAuthClient(store storage.SessionStore, stateKey []byte, opts ...Option) (*OAuthClient, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if len(stateKey) < 32 {
		return nil, fmt.Errorf("state key must be at least 32 bytes")
	}

	c := &OAuthClient{
		providers:        make(map[string]idp.Provider),
		policies:         make(map[string]idp.AccessPolicy),
		store:            store,
		profile:          "default",
		signer:           crypto.NewTokenSigner(stateKey, StateTTL),
		refreshThreshold: DefaultRefreshThreshold,
		refreshInterval:  DefaultRefreshInterval,
		now:              time.Now,
		hub:              newHub(),
		usedNonces:       make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}

	if len(c.providers) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}
	if c.defaultProvider == "" && len(c.providers) == 1 {
		for name := range c.providers {
			c.defaultProvider = name
		}
	}
	return c, nil
}

// Profile returns the name of the stored session this client owns
func (c *OAuthClient) Profile() string {
	return c.profile
}

// Providers lists the configured provider names
func (c *OAuthClient) Providers() []string {
	names := make([]string, 0, len(c.providers))
	for name := range c.providers {
		names = append(names, name)
	}
	return names
}

// GetSession loads the persisted session. A session close to expiry is
// refreshed first; one that is expired and cannot be refreshed is dropped.
func (c *OAuthClient) GetSession(ctx context.Context) (*session.Snapshot, error) {
	snap, err := c.store.Load(ctx, c.profile)
	if errors.Is(err, storage.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	now := c.now()
	if !snap.ExpiresWithin(now, c.refreshThreshold) {
		return snap, nil
	}

	refreshed, err := c.refresh(ctx, snap)
	if err == nil {
		return refreshed, nil
	}
	if !snap.Expired(now) {
		log.LogWarnWithFields("identity", "Early refresh failed, keeping current session", map[string]any{
			"provider": snap.Provider,
			"error":    err.Error(),
		})
		return snap, nil
	}

	log.LogInfoWithFields("identity", "Stored session expired and could not be refreshed", map[string]any{
		"provider": snap.Provider,
		"error":    err.Error(),
	})
	if err := c.store.Delete(ctx, c.profile); err != nil {
		log.LogErrorWithFields("identity", "Failed to delete expired session", map[string]any{"error": err.Error()})
	}
	return nil, nil
}

func (c *OAuthClient) OnSessionChange(handler func(*session.Snapshot)) Subscription {
	return c.hub.subscribe(handler)
}

// SignInExternal builds the provider authorization URL with a signed,
// single-use state carrying redirectTarget.
func (c *OAuthClient) SignInExternal(_ context.Context, providerName, redirectTarget string) (string, error) {
	if providerName == "" {
		providerName = c.defaultProvider
	}
	provider, ok := c.providers[providerName]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, providerName)
	}

	nonce, err := crypto.GenerateSecureToken()
	if err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	state, err := c.signer.Sign(session.AuthorizationState{
		Nonce:     nonce,
		ReturnURL: redirectTarget,
		Provider:  providerName,
	})
	if err != nil {
		return "", fmt.Errorf("signing state: %w", err)
	}

	log.LogInfoWithFields("identity", "Starting external sign-in", map[string]any{
		"provider": providerName,
		"return":   redirectTarget,
	})
	return provider.AuthURL(state), nil
}

// CompleteRedirect consumes a provider redirect marker. On success the new
// session is persisted and emitted; the return URL recorded at sign-in is
// returned (empty for implicit-flow markers).
func (c *OAuthClient) CompleteRedirect(ctx context.Context, marker nav.Marker) (string, error) {
	switch {
	case marker.Error != "":
		return "", fmt.Errorf("%w: %s: %s", ErrProviderDenied, marker.Error, marker.ErrorDescription)
	case marker.Code != "":
		return c.completeCode(ctx, marker)
	case marker.AccessToken != "":
		snap, err := c.sessionFromImplicit(marker)
		if err != nil {
			return "", err
		}
		return "", c.establish(ctx, snap)
	default:
		return "", ErrNoCredential
	}
}

func (c *OAuthClient) completeCode(ctx context.Context, marker nav.Marker) (string, error) {
	var state session.AuthorizationState
	if err := c.signer.Verify(marker.State, &state); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if !c.consumeNonce(state.Nonce) {
		return "", fmt.Errorf("%w: already used", ErrInvalidState)
	}

	provider, ok := c.providers[state.Provider]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, state.Provider)
	}

	token, err := provider.ExchangeCode(ctx, marker.Code)
	if err != nil {
		return "", fmt.Errorf("exchanging code with %s: %w", state.Provider, err)
	}
	identity, err := provider.UserInfo(ctx, token)
	if err != nil {
		return "", fmt.Errorf("fetching identity from %s: %w", state.Provider, err)
	}
	if err := c.policies[state.Provider].Check(identity); err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderDenied, err)
	}

	snap := session.FromToken(state.Provider, token, identity.User())
	if err := c.establish(ctx, snap); err != nil {
		return "", err
	}
	return state.ReturnURL, nil
}

// consumeNonce records nonce as used, reporting false when it already was
func (c *OAuthClient) consumeNonce(nonce string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for n, at := range c.usedNonces {
		if now.Sub(at) > StateTTL {
			delete(c.usedNonces, n)
		}
	}
	if _, used := c.usedNonces[nonce]; used {
		return false
	}
	c.usedNonces[nonce] = now
	return true
}

func (c *OAuthClient) establish(ctx context.Context, snap *session.Snapshot) error {
	if err := c.store.Save(ctx, c.profile, snap); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	log.LogInfoWithFields("identity", "Signed in", map[string]any{
		"provider": snap.Provider,
		"user":     snap.User.ID,
	})
	c.hub.emit(snap)
	return nil
}

// SignOut deletes the stored session and emits "no session"
func (c *OAuthClient) SignOut(ctx context.Context) error {
	if err := c.store.Delete(ctx, c.profile); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	log.LogInfoWithFields("identity", "Signed out", map[string]any{"profile": c.profile})
	c.hub.emit(nil)
	return nil
}
