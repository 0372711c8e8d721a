package internal

import (
	"context"
	"fmt"
	"net/url"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/leansocial/shell/internal/api"
	"github.com/leansocial/shell/internal/authstate"
	"github.com/leansocial/shell/internal/config"
	"github.com/leansocial/shell/internal/crypto"
	"github.com/leansocial/shell/internal/envutil"
	"github.com/leansocial/shell/internal/guard"
	"github.com/leansocial/shell/internal/identity"
	"github.com/leansocial/shell/internal/idp"
	"github.com/leansocial/shell/internal/lifecycle"
	"github.com/leansocial/shell/internal/log"
	"github.com/leansocial/shell/internal/metrics"
	"github.com/leansocial/shell/internal/nav"
	"github.com/leansocial/shell/internal/server"
	"github.com/leansocial/shell/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds the graceful HTTP shutdown
const shutdownTimeout = 30 * time.Second

// LeanSocial is the complete shell process: one session store, one identity
// client, one navigation history and the HTTP surface rendering them
type LeanSocial struct {
	config     config.Config
	storage    storage.SessionStore
	identity   *identity.OAuthClient
	store      *authstate.Store
	history    *nav.History
	shell      *lifecycle.Shell
	enforcer   *guard.Enforcer
	metrics    *metrics.Metrics
	httpServer *server.HTTPServer
}

// NewLeanSocial builds the shell with all dependencies. launchURL is the
// location the process was opened at; it may carry a provider redirect
// marker and defaults to the shell's base URL.
func NewLeanSocial(ctx context.Context, cfg config.Config, launchURL string) (*LeanSocial, error) {
	log.LogInfoWithFields("leansocial", "Building shell", map[string]any{
		"baseURL":   cfg.Shell.BaseURL,
		"apiURL":    cfg.API.BaseURL,
		"storage":   string(cfg.Storage.Kind),
		"providers": len(cfg.Identity.Providers),
		"env":       envutil.Name(),
	})

	launch, err := launchLocation(cfg.Shell, launchURL)
	if err != nil {
		return nil, err
	}

	store, err := setupStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	client, options, err := setupIdentity(ctx, cfg, store)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to setup identity: %w", err)
	}

	m := metrics.New(prometheus.NewRegistry())
	state := authstate.New(authstate.WithObserver(m.ObserveTransition), authstate.WithObserver(logTransition))
	history := nav.NewHistory(launch)

	shell := lifecycle.New(state, client, history,
		lifecycle.WithBootstrapTimeout(cfg.Shell.BootstrapTimeout),
		lifecycle.WithRecorder(m),
	)

	apiClient := api.New(cfg.API, state, api.WithRecorder(m))

	handlers, err := server.NewHandlers(cfg.Shell, options, state, client, apiClient, history)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to build handlers: %w", err)
	}

	enforcer := guard.NewEnforcer(state, history, m)
	for _, v := range handlers.Views() {
		enforcer.Bind(v.Path, v.GateName, v.Gate)
	}

	router := server.NewRouter(handlers, server.RouterOptions{
		Metrics:  m.Handler(),
		Recorder: m,
	})

	return &LeanSocial{
		config:     cfg,
		storage:    store,
		identity:   client,
		store:      state,
		history:    history,
		shell:      shell,
		enforcer:   enforcer,
		metrics:    m,
		httpServer: server.NewHTTPServer(router, cfg.Shell.Addr),
	}, nil
}

// Run serves the shell until ctx is cancelled, SIGINT or SIGTERM is
// received, or a component fails
func (l *LeanSocial) Run(ctx context.Context) error {
	log.LogInfoWithFields("leansocial", "Starting shell", map[string]any{
		"addr":    l.config.Shell.Addr,
		"profile": l.identity.Profile(),
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer l.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := l.httpServer.Start(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return l.identity.Run(gctx)
	})

	l.enforcer.Start()
	if err := l.shell.Mount(gctx); err != nil {
		g.Go(func() error { return fmt.Errorf("failed to mount shell: %w", err) })
	}
	g.Go(func() error {
		select {
		case <-l.shell.Ready():
			if err := l.shell.RedirectErr(); err != nil {
				log.LogWarnWithFields("leansocial", "Launch redirect could not be completed", map[string]any{
					"error": err.Error(),
				})
			}
		case <-gctx.Done():
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.LogInfoWithFields("leansocial", "Starting graceful shutdown", map[string]any{
			"timeout": shutdownTimeout.String(),
		})

		l.shell.Unmount()
		l.enforcer.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return l.httpServer.Stop(shutdownCtx)
	})

	err := g.Wait()
	if err != nil {
		log.LogErrorWithFields("leansocial", "Shell stopped with error", map[string]any{"error": err.Error()})
		return err
	}
	log.LogInfoWithFields("leansocial", "Shell shutdown complete", nil)
	return nil
}

// Status runs the bootstrap without serving and returns the settled state
func (l *LeanSocial) Status(ctx context.Context) (authstate.State, error) {
	if err := l.shell.Mount(ctx); err != nil {
		return authstate.State{}, err
	}
	defer l.shell.Unmount()

	select {
	case <-l.shell.Ready():
	case <-ctx.Done():
		return authstate.State{}, ctx.Err()
	}
	if err := l.shell.RedirectErr(); err != nil {
		log.LogWarnWithFields("leansocial", "Launch redirect could not be completed", map[string]any{
			"error": err.Error(),
		})
	}
	return l.store.Snapshot(), nil
}

// Logout ends the persisted session of the configured profile
func (l *LeanSocial) Logout(ctx context.Context) error {
	return l.identity.SignOut(ctx)
}

// Close releases the session storage
func (l *LeanSocial) Close() {
	if err := l.storage.Close(); err != nil {
		log.LogWarnWithFields("leansocial", "Failed to close storage", map[string]any{"error": err.Error()})
	}
}

func logTransition(prev, next authstate.State) {
	if prev.Phase() == next.Phase() {
		return
	}
	log.LogInfoWithFields("authstate", "Phase changed", map[string]any{
		"from":     string(prev.Phase()),
		"to":       string(next.Phase()),
		"revision": next.Revision,
	})
}

func launchLocation(cfg config.ShellConfig, raw string) (*url.URL, error) {
	if raw == "" {
		raw = cfg.BaseURL + "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid launch URL: %w", err)
	}
	return u, nil
}

// setupStorage creates the session store selected by cfg.Kind
func setupStorage(ctx context.Context, cfg config.StorageConfig) (storage.SessionStore, error) {
	switch cfg.Kind {
	case config.StorageKindRedis:
		encryptor, err := crypto.NewEncryptor([]byte(cfg.EncryptionKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create encryptor: %w", err)
		}
		log.LogInfoWithFields("storage", "Using Redis storage", map[string]any{
			"addr":      cfg.Redis.Addr,
			"db":        cfg.Redis.DB,
			"keyPrefix": cfg.Redis.KeyPrefix,
		})
		return storage.DialRedis(ctx, &redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: string(cfg.Redis.Password),
			DB:       cfg.Redis.DB,
		}, cfg.Redis.KeyPrefix, encryptor)

	case config.StorageKindFirestore:
		encryptor, err := crypto.NewEncryptor([]byte(cfg.EncryptionKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create encryptor: %w", err)
		}
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":    cfg.Firestore.Project,
			"database":   cfg.Firestore.Database,
			"collection": cfg.Firestore.Collection,
		})
		return storage.NewFirestoreStore(ctx, cfg.Firestore.Project, cfg.Firestore.Database, cfg.Firestore.Collection, encryptor)

	default:
		log.LogInfoWithFields("storage", "Using in-memory storage", map[string]any{})
		return storage.NewMemoryStore(), nil
	}
}

// setupIdentity builds the providers and the identity client, and the
// sign-in buttons in a stable order
func setupIdentity(ctx context.Context, cfg config.Config, store storage.SessionStore) (*identity.OAuthClient, []server.ProviderOption, error) {
	providers, policies, err := idp.NewProviders(ctx, cfg.Identity, cfg.Shell.CallbackURL())
	if err != nil {
		return nil, nil, err
	}

	opts := []identity.Option{
		identity.WithDefaultProvider(cfg.Identity.DefaultProvider),
		identity.WithProfile(cfg.Identity.Profile),
		identity.WithRefresh(cfg.Identity.RefreshThreshold, cfg.Identity.RefreshInterval),
	}
	options := make([]server.ProviderOption, 0, len(providers))
	for name, p := range providers {
		opts = append(opts, identity.WithProvider(name, p, policies[name]))
		options = append(options, server.ProviderOption{
			Name:        name,
			DisplayName: displayName(name, cfg.Identity.Providers[name]),
		})
	}
	slices.SortFunc(options, func(a, b server.ProviderOption) int {
		return strings.Compare(a.Name, b.Name)
	})

	client, err := identity.NewOAuthClient(store, []byte(cfg.Identity.StateSecret), opts...)
	if err != nil {
		return nil, nil, err
	}
	return client, options, nil
}

func displayName(name string, pc *config.ProviderConfig) string {
	if pc == nil {
		return name
	}
	if pc.DisplayName != "" {
		return pc.DisplayName
	}
	switch pc.Type {
	case config.ProviderTypeGoogle:
		return "Google"
	case config.ProviderTypeGitHub:
		return "GitHub"
	case config.ProviderTypeAzure:
		return "Microsoft"
	}
	if name == "" {
		return "SSO"
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
