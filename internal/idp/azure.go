package idp

import (
	"context"
	"fmt"
)

// azureDiscoveryBase is overridden in tests
var azureDiscoveryBase = "https://login.microsoftonline.com"

// NewAzureProvider creates an Entra ID provider from the tenant's OIDC discovery document.
func NewAzureProvider(ctx context.Context, tenantID, clientID, clientSecret, redirectURI string) (*OIDCProvider, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantId is required for Azure AD")
	}

	return NewOIDCProvider(ctx, OIDCConfig{
		ProviderType: "azure",
		DiscoveryURL: fmt.Sprintf("%s/%s/v2.0/.well-known/openid-configuration", azureDiscoveryBase, tenantID),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
		Scopes:       []string{"openid", "email", "profile", "offline_access"},
	})
}
