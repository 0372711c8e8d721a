package idp

import (
	"context"
	"fmt"

	"github.com/leansocial/shell/internal/config"
)

// NewProvider creates a Provider from its configuration.
// callbackURL is used when the provider has no explicit redirectUri.
func NewProvider(ctx context.Context, cfg *config.ProviderConfig, callbackURL string) (Provider, error) {
	redirectURI := cfg.RedirectURI
	if redirectURI == "" {
		redirectURI = callbackURL
	}

	switch cfg.Type {
	case config.ProviderTypeGoogle:
		return NewGoogleProvider(
			cfg.ClientID,
			string(cfg.ClientSecret),
			redirectURI,
		), nil

	case config.ProviderTypeAzure:
		return NewAzureProvider(
			ctx,
			cfg.TenantID,
			cfg.ClientID,
			string(cfg.ClientSecret),
			redirectURI,
		)

	case config.ProviderTypeGitHub:
		return NewGitHubProvider(
			cfg.ClientID,
			string(cfg.ClientSecret),
			redirectURI,
		), nil

	case config.ProviderTypeOIDC:
		return NewOIDCProvider(ctx, OIDCConfig{
			ProviderType:     "oidc",
			DiscoveryURL:     cfg.DiscoveryURL,
			AuthorizationURL: cfg.AuthorizationURL,
			TokenURL:         cfg.TokenURL,
			UserInfoURL:      cfg.UserInfoURL,
			ClientID:         cfg.ClientID,
			ClientSecret:     string(cfg.ClientSecret),
			RedirectURI:      redirectURI,
			Scopes:           cfg.Scopes,
		})

	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}

// NewProviders builds every configured provider, keyed by its config name
func NewProviders(ctx context.Context, cfg config.IdentityConfig, callbackURL string) (map[string]Provider, map[string]AccessPolicy, error) {
	providers := make(map[string]Provider, len(cfg.Providers))
	policies := make(map[string]AccessPolicy, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		p, err := NewProvider(ctx, pc, callbackURL)
		if err != nil {
			return nil, nil, fmt.Errorf("provider %s: %w", name, err)
		}
		providers[name] = p
		policies[name] = AccessPolicy{
			AllowedDomains: pc.AllowedDomains,
			AllowedOrgs:    pc.AllowedOrgs,
		}
	}
	return providers, policies, nil
}
