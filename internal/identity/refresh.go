package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leansocial/shell/internal/log"
	"github.com/leansocial/shell/internal/session"
	"github.com/leansocial/shell/internal/storage"
	"golang.org/x/oauth2"
)

// Run keeps the session fresh and follows changes made by other processes
// sharing the profile. It blocks until ctx is done.
func (c *OAuthClient) Run(ctx context.Context) error {
	if w, ok := c.store.(storage.Watcher); ok {
		events, err := w.Watch(ctx, c.profile)
		if err != nil {
			log.LogErrorWithFields("identity", "Session watch unavailable", map[string]any{"error": err.Error()})
		} else {
			go c.follow(ctx, events)
		}
	}

	ticker := time.NewTicker(c.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.refreshIfNeeded(ctx)
		}
	}
}

// follow re-emits sessions written elsewhere ("login elsewhere")
func (c *OAuthClient) follow(ctx context.Context, events <-chan storage.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			log.LogInfoWithFields("identity", "Session changed elsewhere", map[string]any{
				"profile": ev.Profile,
				"present": ev.Snapshot != nil,
			})
			c.hub.emit(ev.Snapshot)
		}
	}
}

// refreshIfNeeded is one tick of the refresher
func (c *OAuthClient) refreshIfNeeded(ctx context.Context) {
	snap, err := c.store.Load(ctx, c.profile)
	if errors.Is(err, storage.ErrSessionNotFound) {
		return
	}
	if err != nil {
		log.LogErrorWithFields("identity", "Failed to load session for refresh", map[string]any{"error": err.Error()})
		return
	}

	now := c.now()
	if !snap.ExpiresWithin(now, c.refreshThreshold) {
		return
	}

	if _, err := c.refresh(ctx, snap); err != nil {
		if !snap.Expired(now) {
			log.LogWarnWithFields("identity", "Token refresh failed, will retry", map[string]any{
				"provider": snap.Provider,
				"error":    err.Error(),
			})
			return
		}
		log.LogErrorWithFields("identity", "Token refresh failed after expiry, signing out", map[string]any{
			"provider": snap.Provider,
			"error":    err.Error(),
		})
		if err := c.SignOut(ctx); err != nil {
			log.LogErrorWithFields("identity", "Failed to drop expired session", map[string]any{"error": err.Error()})
		}
	}
}

// refresh exchanges the refresh token for a new access token, persists the
// result and emits it. Concurrent refreshes of the same profile share one
// provider round-trip.
func (c *OAuthClient) refresh(ctx context.Context, snap *session.Snapshot) (*session.Snapshot, error) {
	v, err, shared := c.group.Do(c.profile, func() (any, error) {
		return c.doRefresh(ctx, snap)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.LogTraceWithFields("identity", "Joined in-flight refresh", map[string]any{"profile": c.profile})
	}
	return v.(*session.Snapshot).Clone(), nil
}

func (c *OAuthClient) doRefresh(ctx context.Context, snap *session.Snapshot) (*session.Snapshot, error) {
	if snap.RefreshToken == "" {
		return nil, fmt.Errorf("session has no refresh token")
	}
	provider, ok := c.providers[snap.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, snap.Provider)
	}

	// The base source only knows the refresh token so it always goes to the
	// provider; the reuse wrapper decides whether that is needed yet.
	old := snap.Token()
	base := provider.TokenSource(ctx, &oauth2.Token{RefreshToken: snap.RefreshToken})
	token, err := oauth2.ReuseTokenSourceWithExpiry(old, base, c.refreshThreshold).Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing token: %w", err)
	}
	if token.AccessToken == snap.AccessToken {
		return snap, nil
	}

	refreshed := session.FromToken(snap.Provider, token, snap.User)
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = snap.RefreshToken
	}
	if err := c.store.Save(ctx, c.profile, refreshed); err != nil {
		return nil, fmt.Errorf("saving refreshed session: %w", err)
	}

	log.LogInfoWithFields("identity", "Token refreshed", map[string]any{
		"provider": snap.Provider,
		"expiry":   refreshed.Expiry.Format(time.RFC3339),
	})
	c.hub.emit(refreshed)
	return refreshed, nil
}
