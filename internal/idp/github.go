package idp

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// GitHubProvider signs users in with a GitHub OAuth app.
// GitHub is plain OAuth 2.0, so identity comes from its REST API.
type GitHubProvider struct {
	config     oauth2.Config
	apiBaseURL string // defaults to https://api.github.com, can be overridden for testing
}

type githubUserResponse struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmailResponse struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

type githubOrgResponse struct {
	Login string `json:"login"`
}

// NewGitHubProvider creates a new GitHub OAuth provider.
func NewGitHubProvider(clientID, clientSecret, redirectURI string) *GitHubProvider {
	return &GitHubProvider{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{"user:email", "read:org"},
			Endpoint:     github.Endpoint,
		},
		apiBaseURL: "https://api.github.com",
	}
}

func (p *GitHubProvider) Type() string {
	return "github"
}

func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state)
}

func (p *GitHubProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.config.Exchange(ctx, code)
}

// TokenSource returns a static source. GitHub OAuth app tokens do not expire.
func (p *GitHubProvider) TokenSource(_ context.Context, token *oauth2.Token) oauth2.TokenSource {
	return oauth2.StaticTokenSource(token)
}

// UserInfo fetches user identity from GitHub's API, organizations included
// so an AccessPolicy can check membership.
func (p *GitHubProvider) UserInfo(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	client := p.config.Client(ctx, token)

	user, err := p.fetchUser(ctx, client)
	if err != nil {
		return nil, err
	}

	// Fetch primary email if not in profile
	// GitHub only shows verified emails in user profile, so if email is present it's verified
	email := user.Email
	emailVerified := email != ""
	if email == "" {
		primaryEmail, verified, err := p.fetchPrimaryEmail(ctx, client)
		if err != nil {
			return nil, fmt.Errorf("failed to get user email: %w", err)
		}
		email = primaryEmail
		emailVerified = verified
	}

	domain := emailDomain(email)

	orgs, err := p.fetchOrganizations(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("failed to get user organizations: %w", err)
	}

	return &Identity{
		ProviderType:  "github",
		Subject:       strconv.FormatInt(user.ID, 10),
		Email:         email,
		EmailVerified: emailVerified,
		Name:          user.Name,
		Picture:       user.AvatarURL,
		Domain:        domain,
		Organizations: orgs,
	}, nil
}

func (p *GitHubProvider) fetchUser(ctx context.Context, client *http.Client) (*githubUserResponse, error) {
	var user githubUserResponse
	if err := getJSON(ctx, client, p.apiBaseURL+"/user", &user); err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// fetchPrimaryEmail prefers the verified primary address, then any verified one
func (p *GitHubProvider) fetchPrimaryEmail(ctx context.Context, client *http.Client) (string, bool, error) {
	var emails []githubEmailResponse
	if err := getJSON(ctx, client, p.apiBaseURL+"/user/emails", &emails); err != nil {
		return "", false, fmt.Errorf("failed to get emails: %w", err)
	}

	for _, email := range emails {
		if email.Primary && email.Verified {
			return email.Email, true, nil
		}
	}
	for _, email := range emails {
		if email.Verified {
			return email.Email, true, nil
		}
	}
	return "", false, fmt.Errorf("no verified email found")
}

func (p *GitHubProvider) fetchOrganizations(ctx context.Context, client *http.Client) ([]string, error) {
	var orgs []githubOrgResponse
	if err := getJSON(ctx, client, p.apiBaseURL+"/user/orgs", &orgs); err != nil {
		return nil, fmt.Errorf("failed to get organizations: %w", err)
	}

	names := make([]string, len(orgs))
	for i, org := range orgs {
		names[i] = org.Login
	}
	return names, nil
}
