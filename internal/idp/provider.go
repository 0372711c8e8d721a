package idp

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/leansocial/shell/internal/session"
	"golang.org/x/oauth2"
)

// Identity is what a provider tells us about the signed-in user
type Identity struct {
	ProviderType  string   `json:"provider_type"`
	Subject       string   `json:"sub"`
	Email         string   `json:"email"`
	EmailVerified bool     `json:"email_verified"`
	Name          string   `json:"name"`
	Picture       string   `json:"picture"`
	Domain        string   `json:"domain"`
	Organizations []string `json:"organizations,omitempty"`
}

// User converts the identity into the session's user record
func (i *Identity) User() session.User {
	return session.User{
		ID:      i.Subject,
		Email:   i.Email,
		Name:    i.Name,
		Picture: i.Picture,
	}
}

// Provider abstracts identity provider operations.
type Provider interface {
	// Type returns the provider type identifier (e.g., "google", "azure", "github", "oidc").
	Type() string

	// AuthURL generates the authorization URL for the OAuth flow.
	AuthURL(state string) string

	// ExchangeCode exchanges an authorization code for tokens.
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)

	// UserInfo fetches the user's identity.
	UserInfo(ctx context.Context, token *oauth2.Token) (*Identity, error)

	// TokenSource refreshes token through the provider's token endpoint.
	TokenSource(ctx context.Context, token *oauth2.Token) oauth2.TokenSource
}

// AccessPolicy restricts which identities may sign in to the shell
type AccessPolicy struct {
	AllowedDomains []string
	AllowedOrgs    []string
}

// Check returns an error when identity falls outside the policy.
// An empty list places no restriction.
func (p AccessPolicy) Check(identity *Identity) error {
	if err := ValidateDomain(identity.Domain, p.AllowedDomains); err != nil {
		return err
	}
	if len(p.AllowedOrgs) == 0 {
		return nil
	}
	for _, org := range identity.Organizations {
		if slices.Contains(p.AllowedOrgs, org) {
			return nil
		}
	}
	return fmt.Errorf("user is not a member of any allowed organization")
}

// ValidateDomain checks if the domain is in the allowed list.
// Returns nil if allowedDomains is empty (no restriction) or domain is allowed.
func ValidateDomain(domain string, allowedDomains []string) error {
	if len(allowedDomains) == 0 {
		return nil
	}
	if !slices.Contains(allowedDomains, domain) {
		return fmt.Errorf("domain '%s' is not allowed. Contact your administrator", domain)
	}
	return nil
}

func emailDomain(email string) string {
	_, domain, ok := strings.Cut(strings.ToLower(strings.TrimSpace(email)), "@")
	if !ok || strings.Contains(domain, "@") {
		return ""
	}
	return domain
}
