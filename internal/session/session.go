package session

import (
	"time"

	"golang.org/x/oauth2"
)

// User is the identity record attached to a session
type User struct {
	ID      string `json:"id"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// Snapshot is the credential bundle proving an authenticated user.
// A snapshot is never mutated after it is handed out; a newer event
// replaces it wholesale.
type Snapshot struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Provider     string    `json:"provider"` // IDP that authenticated this user (e.g., "google", "github")
	User         User      `json:"user"`
}

// FromToken builds a snapshot from an oauth2 token and the resolved identity
func FromToken(provider string, token *oauth2.Token, user User) *Snapshot {
	return &Snapshot{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Expiry:       token.Expiry,
		Provider:     provider,
		User:         user,
	}
}

// Token returns the credential as an oauth2 token
func (s *Snapshot) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		Expiry:       s.Expiry,
	}
}

// Expired reports whether the access token is past its expiry.
// Tokens without an expiry never expire.
func (s *Snapshot) Expired(now time.Time) bool {
	return !s.Expiry.IsZero() && !now.Before(s.Expiry)
}

// ExpiresWithin reports whether the access token expires within d of now
func (s *Snapshot) ExpiresWithin(now time.Time, d time.Duration) bool {
	return !s.Expiry.IsZero() && s.Expiry.Sub(now) <= d
}

// Clone returns an independent copy
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Redacted returns a copy safe to log or serialise to the view layer
func (s *Snapshot) Redacted() *Snapshot {
	if s == nil {
		return nil
	}
	c := *s
	if c.AccessToken != "" {
		c.AccessToken = "***"
	}
	if c.RefreshToken != "" {
		c.RefreshToken = "***"
	}
	return &c
}

// AuthorizationState represents the OAuth authorization code flow state parameter
type AuthorizationState struct {
	Nonce     string `json:"nonce"`
	ReturnURL string `json:"return_url"`
	Provider  string `json:"provider"`
}
