package internal

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/leansocial/shell/internal/config"
	"github.com/leansocial/shell/internal/session"
	"github.com/leansocial/shell/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	return config.Config{
		Version: "v1",
		Shell: config.ShellConfig{
			Addr:             "127.0.0.1:0",
			BaseURL:          "http://127.0.0.1:5173",
			LandingPath:      "/me",
			SignInPath:       "/login",
			SignUpPath:       "/signup",
			BootstrapTimeout: 2 * time.Second,
			CSRFSecret:       config.Secret(strings.Repeat("c", 32)),
		},
		API: config.APIConfig{BaseURL: "http://127.0.0.1:1/v1", Timeout: time.Second},
		Identity: config.IdentityConfig{
			Profile:          "default",
			DefaultProvider:  "google",
			StateSecret:      config.Secret(strings.Repeat("s", 32)),
			RefreshThreshold: 5 * time.Minute,
			RefreshInterval:  time.Minute,
			Providers: map[string]*config.ProviderConfig{
				"google": {Type: config.ProviderTypeGoogle, ClientID: "id", ClientSecret: "secret"},
				"work":   {Type: config.ProviderTypeGitHub, ClientID: "id", ClientSecret: "secret", DisplayName: "Work account"},
			},
		},
		Storage: config.StorageConfig{Kind: config.StorageKindMemory},
	}
}

func persisted(t *testing.T, l *LeanSocial) {
	t.Helper()
	err := l.storage.Save(context.Background(), "default", &session.Snapshot{
		AccessToken: "persisted",
		Provider:    "google",
		Expiry:      time.Now().Add(time.Hour),
		User:        session.User{ID: "u1", Email: "ada@example.com"},
	})
	require.NoError(t, err)
}

func TestStatus(t *testing.T) {
	t.Run("no persisted session", func(t *testing.T) {
		l, err := NewLeanSocial(context.Background(), testConfig(), "")
		require.NoError(t, err)
		defer l.Close()

		st, err := l.Status(context.Background())
		require.NoError(t, err)
		assert.False(t, st.IsLoading)
		assert.False(t, st.IsAuthenticated)
	})

	t.Run("persisted session", func(t *testing.T) {
		l, err := NewLeanSocial(context.Background(), testConfig(), "")
		require.NoError(t, err)
		defer l.Close()
		persisted(t, l)

		st, err := l.Status(context.Background())
		require.NoError(t, err)
		assert.True(t, st.IsAuthenticated)
		assert.Equal(t, "ada@example.com", st.Session.User.Email)
	})

	t.Run("launch marker with a forged state", func(t *testing.T) {
		l, err := NewLeanSocial(context.Background(), testConfig(), "http://127.0.0.1:5173/auth/callback?code=abc&state=forged")
		require.NoError(t, err)
		defer l.Close()

		st, err := l.Status(context.Background())
		require.NoError(t, err)
		assert.False(t, st.IsAuthenticated)
		assert.Error(t, l.shell.RedirectErr())

		cur := l.history.Current()
		assert.Empty(t, cur.RawQuery, "the marker is stripped from the location")
	})
}

func TestEnforcer_RechecksEveryGuardedView(t *testing.T) {
	custom := testConfig()
	custom.Shell.LandingPath, custom.Shell.SignInPath, custom.Shell.SignUpPath = "/dashboard", "/signin", "/join"

	signedIn := &session.Snapshot{AccessToken: "tok", User: session.User{ID: "u1"}}

	tests := []struct {
		name   string
		cfg    config.Config
		launch string
		change func(l *LeanSocial)
		want   string
	}{
		{
			name:   "sign-up page after sign-in",
			cfg:    testConfig(),
			launch: "http://127.0.0.1:5173/signup",
			change: func(l *LeanSocial) { l.store.Publish(signedIn) },
			want:   "/me",
		},
		{
			name:   "sign-in page after sign-in",
			cfg:    testConfig(),
			launch: "http://127.0.0.1:5173/login",
			change: func(l *LeanSocial) { l.store.Publish(signedIn) },
			want:   "/me",
		},
		{
			name:   "workspace after sign-out",
			cfg:    testConfig(),
			launch: "http://127.0.0.1:5173/me",
			change: func(l *LeanSocial) { l.store.Publish(signedIn); l.store.Clear() },
			want:   "/login?return=%2Fme",
		},
		{
			name:   "configured sign-up page after sign-in",
			cfg:    custom,
			launch: "http://127.0.0.1:5173/join",
			change: func(l *LeanSocial) { l.store.Publish(signedIn) },
			want:   "/dashboard",
		},
		{
			name:   "configured workspace after sign-out",
			cfg:    custom,
			launch: "http://127.0.0.1:5173/dashboard",
			change: func(l *LeanSocial) { l.store.Clear() },
			want:   "/signin?return=%2Fdashboard",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewLeanSocial(context.Background(), tt.cfg, tt.launch)
			require.NoError(t, err)
			defer l.Close()

			l.enforcer.Start()
			defer l.enforcer.Stop()
			tt.change(l)

			cur := l.history.Current()
			assert.Equal(t, tt.want, cur.RequestURI())
		})
	}
}

func TestLogout(t *testing.T) {
	l, err := NewLeanSocial(context.Background(), testConfig(), "")
	require.NoError(t, err)
	defer l.Close()
	persisted(t, l)

	require.NoError(t, l.Logout(context.Background()))

	_, err = l.storage.Load(context.Background(), "default")
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)
}

func TestRun_StopsWhenCancelled(t *testing.T) {
	l, err := NewLeanSocial(context.Background(), testConfig(), "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case <-l.shell.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("bootstrap did not settle")
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewLeanSocial_InvalidLaunchURL(t *testing.T) {
	_, err := NewLeanSocial(context.Background(), testConfig(), "http://[::1")
	assert.Error(t, err)
}

func TestSetupIdentity_ProviderOptions(t *testing.T) {
	_, options, err := setupIdentity(context.Background(), testConfig(), storage.NewMemoryStore())
	require.NoError(t, err)

	require.Len(t, options, 2)
	assert.Equal(t, "google", options[0].Name)
	assert.Equal(t, "Google", options[0].DisplayName)
	assert.Equal(t, "work", options[1].Name)
	assert.Equal(t, "Work account", options[1].DisplayName)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Microsoft", displayName("corp", &config.ProviderConfig{Type: config.ProviderTypeAzure}))
	assert.Equal(t, "Keycloak", displayName("keycloak", &config.ProviderConfig{Type: config.ProviderTypeOIDC}))
	assert.Equal(t, "orphan", displayName("orphan", nil))
}
