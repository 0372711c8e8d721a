package identity

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/leansocial/shell/internal/nav"
	"github.com/leansocial/shell/internal/session"
)

// implicitClaims are the identity claims of an implicit-flow access token.
// The backend verifies signatures; the shell only reads who the user is.
type implicitClaims struct {
	jwt.RegisteredClaims
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	AppMetadata  struct {
		Provider string `json:"provider"`
	} `json:"app_metadata"`
}

func (c *implicitClaims) user() session.User {
	u := session.User{ID: c.Subject, Email: c.Email}
	u.Name = firstString(c.UserMetadata, "full_name", "name", "user_name")
	u.Picture = firstString(c.UserMetadata, "avatar_url", "picture")
	return u
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

var jwtParser = jwt.NewParser()

// sessionFromImplicit turns a fragment marker into a session snapshot
func (c *OAuthClient) sessionFromImplicit(marker nav.Marker) (*session.Snapshot, error) {
	var claims implicitClaims
	if _, _, err := jwtParser.ParseUnverified(marker.AccessToken, &claims); err != nil {
		return nil, fmt.Errorf("%w: access token is not a JWT: %v", ErrNoCredential, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: access token has no subject", ErrNoCredential)
	}

	expiry := c.markerExpiry(marker)
	if expiry.IsZero() && claims.ExpiresAt != nil {
		expiry = claims.ExpiresAt.Time
	}
	if !expiry.IsZero() && !expiry.After(c.now()) {
		return nil, fmt.Errorf("%w: access token expired", ErrNoCredential)
	}

	provider := claims.AppMetadata.Provider
	if provider == "" {
		provider = c.defaultProvider
	}

	tokenType := marker.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	return &session.Snapshot{
		AccessToken:  marker.AccessToken,
		RefreshToken: marker.RefreshToken,
		TokenType:    tokenType,
		Expiry:       expiry,
		Provider:     provider,
		User:         claims.user(),
	}, nil
}

// markerExpiry prefers the absolute expires_at over the relative expires_in
func (c *OAuthClient) markerExpiry(marker nav.Marker) time.Time {
	if at, err := strconv.ParseInt(marker.ExpiresAt, 10, 64); err == nil && at > 0 {
		return time.Unix(at, 0)
	}
	if in, err := strconv.ParseInt(marker.ExpiresIn, 10, 64); err == nil && in > 0 {
		return c.now().Add(time.Duration(in) * time.Second)
	}
	return time.Time{}
}
