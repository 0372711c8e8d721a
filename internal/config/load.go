package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"

	"github.com/leansocial/shell/internal/envutil"
	"github.com/leansocial/shell/internal/log"
)

// SupportedVersion is the config version prefix this build understands
const SupportedVersion = "v1"

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse processes raw config JSON the same way Load does
func Parse(data []byte) (Config, error) {
	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, SupportedVersion) {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if config.Storage.Kind == "" {
		config.Storage.Kind = StorageKindMemory
	}

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// secretFields lists, per section, the fields that must come from the environment
var secretFields = map[string][]string{
	"shell":    {"csrfSecret"},
	"identity": {"stateSecret"},
	"storage":  {"encryptionKey"},
}

// validateRawConfig validates the config structure before environment resolution
func validateRawConfig(rawConfig map[string]any) error {
	if envutil.IsDev() {
		return nil
	}

	for section, fields := range secretFields {
		obj, ok := rawConfig[section].(map[string]any)
		if !ok {
			continue
		}
		for _, field := range fields {
			if err := requireEnvRef(obj, field); err != nil {
				return fmt.Errorf("%s.%w", section, err)
			}
		}
	}

	identity, _ := rawConfig["identity"].(map[string]any)
	providers, _ := identity["providers"].(map[string]any)
	for name, p := range providers {
		if provider, ok := p.(map[string]any); ok {
			if err := requireEnvRef(provider, "clientSecret"); err != nil {
				return fmt.Errorf("identity.providers.%s.%w", name, err)
			}
		}
	}
	return nil
}

func requireEnvRef(obj map[string]any, field string) error {
	value, exists := obj[field]
	if !exists {
		return nil
	}
	// Check if it's a string (bad) or a map (good - env ref)
	if _, isString := value.(string); isString {
		return fmt.Errorf("%s must use environment variable reference for security", field)
	}
	if refMap, isMap := value.(map[string]any); isMap {
		if _, hasEnv := refMap["$env"]; !hasEnv {
			return fmt.Errorf("%s must use {\"$env\": \"VAR_NAME\"} format", field)
		}
	}
	return nil
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if err := validateShellConfig(&config.Shell); err != nil {
		return fmt.Errorf("shell config: %w", err)
	}
	if config.API.BaseURL == "" {
		return fmt.Errorf("api.baseURL is required")
	}
	if _, err := url.ParseRequestURI(config.API.BaseURL); err != nil {
		return fmt.Errorf("api.baseURL is invalid: %w", err)
	}
	if config.API.Timeout < 0 {
		return fmt.Errorf("api.timeout cannot be negative")
	}
	if err := validateIdentityConfig(&config.Identity); err != nil {
		return fmt.Errorf("identity config: %w", err)
	}
	if err := validateStorageConfig(&config.Storage); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}
	return nil
}

func validateShellConfig(shell *ShellConfig) error {
	if shell.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if shell.BaseURL == "" {
		return fmt.Errorf("baseURL is required")
	}
	if _, err := url.ParseRequestURI(shell.BaseURL); err != nil {
		return fmt.Errorf("baseURL is invalid: %w", err)
	}
	views := []struct{ field, path string }{
		{"landingPath", shell.LandingPath},
		{"signInPath", shell.SignInPath},
		{"signUpPath", shell.SignUpPath},
	}
	for _, v := range views {
		if err := validateViewPath(v.field, v.path); err != nil {
			return err
		}
	}
	if shell.LandingPath == shell.SignInPath || shell.LandingPath == shell.SignUpPath || shell.SignInPath == shell.SignUpPath {
		return fmt.Errorf("landingPath, signInPath and signUpPath must differ")
	}
	if shell.BootstrapTimeout < 0 {
		return fmt.Errorf("bootstrapTimeout cannot be negative")
	}
	if len(shell.CSRFSecret) < 32 {
		return fmt.Errorf("csrfSecret must be at least 32 characters (got %d). Generate with: openssl rand -base64 32", len(shell.CSRFSecret))
	}
	return nil
}

// validateViewPath checks path can be routed as a page of its own
func validateViewPath(field, path string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("%s must start with /", field)
	}
	if slices.Contains(ReservedPaths, path) {
		return fmt.Errorf("%s %q is reserved by the shell", field, path)
	}
	if strings.HasSuffix(path, "/") || strings.ContainsAny(path, "?#{}*") {
		return fmt.Errorf("%s %q must be a plain path without a trailing slash", field, path)
	}
	return nil
}

func validateIdentityConfig(identity *IdentityConfig) error {
	if len(identity.StateSecret) < 32 {
		return fmt.Errorf("stateSecret must be at least 32 characters (got %d). Generate with: openssl rand -base64 32", len(identity.StateSecret))
	}
	if len(identity.Providers) == 0 {
		return fmt.Errorf("at least one provider is required")
	}
	if _, ok := identity.Providers[identity.DefaultProvider]; !ok {
		return fmt.Errorf("defaultProvider %q is not a configured provider", identity.DefaultProvider)
	}
	if identity.RefreshThreshold < 0 || identity.RefreshInterval < 0 {
		return fmt.Errorf("refresh durations cannot be negative")
	}
	if identity.RefreshInterval > identity.RefreshThreshold {
		log.LogWarn("Refresh interval %s is longer than refresh threshold %s, sessions may expire before refresh",
			identity.RefreshInterval, identity.RefreshThreshold)
	}
	for name, p := range identity.Providers {
		if err := validateProvider(p); err != nil {
			return fmt.Errorf("provider %s: %w", name, err)
		}
	}
	return nil
}

func validateProvider(p *ProviderConfig) error {
	if p.ClientID == "" {
		return fmt.Errorf("clientId is required")
	}
	if p.ClientSecret == "" {
		return fmt.Errorf("clientSecret is required")
	}
	switch p.Type {
	case ProviderTypeGoogle, ProviderTypeGitHub:
	case ProviderTypeAzure:
		if p.TenantID == "" {
			return fmt.Errorf("tenantId is required for azure")
		}
	case ProviderTypeOIDC:
		if p.DiscoveryURL == "" && (p.AuthorizationURL == "" || p.TokenURL == "" || p.UserInfoURL == "") {
			return fmt.Errorf("either discoveryUrl or all of authorizationUrl, tokenUrl, userInfoUrl are required")
		}
	default:
		return fmt.Errorf("unknown provider type: %s", p.Type)
	}
	return nil
}

func validateStorageConfig(storage *StorageConfig) error {
	switch storage.Kind {
	case StorageKindMemory:
		return nil
	case StorageKindRedis:
		if storage.Redis == nil || storage.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when using redis storage")
		}
	case StorageKindFirestore:
		if storage.Firestore == nil || storage.Firestore.Project == "" {
			return fmt.Errorf("firestore.project is required when using firestore storage")
		}
	default:
		return fmt.Errorf("unknown storage kind: %s", storage.Kind)
	}
	if len(storage.EncryptionKey) != 32 {
		return fmt.Errorf("encryptionKey must be exactly 32 characters (got %d). Generate with: openssl rand -base64 32 | head -c 32", len(storage.EncryptionKey))
	}
	return nil
}
