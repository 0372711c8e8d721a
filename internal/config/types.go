package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// StorageKind selects where the identity client persists the session
type StorageKind string

const (
	StorageKindMemory    StorageKind = "memory"
	StorageKindRedis     StorageKind = "redis"
	StorageKindFirestore StorageKind = "firestore"
)

// ProviderType identifies an identity provider implementation
type ProviderType string

const (
	ProviderTypeGoogle ProviderType = "google"
	ProviderTypeGitHub ProviderType = "github"
	ProviderTypeAzure  ProviderType = "azure"
	ProviderTypeOIDC   ProviderType = "oidc"
)

// Defaults applied when the corresponding field is omitted
const (
	DefaultAddr             = "127.0.0.1:5173"
	DefaultLandingPath      = "/me"
	DefaultSignInPath       = "/login"
	DefaultSignUpPath       = "/signup"
	DefaultBootstrapTimeout = 10 * time.Second
	DefaultAPITimeout       = 15 * time.Second
	DefaultRefreshThreshold = 5 * time.Minute
	DefaultRefreshInterval  = time.Minute
	DefaultProfile          = "default"
	DefaultRedisKeyPrefix   = "leansocial:session:"
	DefaultFirestoreDB      = "(default)"
	DefaultFirestoreColl    = "leansocial_sessions"
)

// ShellConfig configures the local HTTP shell.
//
// CSRFSecret signs the forms served by the shell. It must be given as an
// environment reference.
type ShellConfig struct {
	Addr             string        `json:"addr"`
	BaseURL          string        `json:"baseURL"`
	LandingPath      string        `json:"landingPath"`
	SignInPath       string        `json:"signInPath"`
	SignUpPath       string        `json:"signUpPath"`
	BootstrapTimeout time.Duration `json:"bootstrapTimeout"`
	CSRFSecret       Secret        `json:"csrfSecret"`
}

// ReservedPaths are served by the shell itself and cannot host a view
var ReservedPaths = []string{"/", "/auth/callback", "/logout", "/events", "/state", "/healthz", "/metrics"}

// CallbackURL is where identity providers send the browser back to
func (s ShellConfig) CallbackURL() string {
	return s.BaseURL + "/auth/callback"
}

// APIConfig points the shell at the LeanSocial backend
type APIConfig struct {
	BaseURL string        `json:"baseURL"`
	Timeout time.Duration `json:"timeout"`
}

// ProviderConfig configures one external sign-in provider
type ProviderConfig struct {
	Type         ProviderType `json:"type"`
	DisplayName  string       `json:"displayName,omitempty"`
	ClientID     string       `json:"clientId"`
	ClientSecret Secret       `json:"clientSecret"`
	RedirectURI  string       `json:"redirectUri,omitempty"`

	// Azure
	TenantID string `json:"tenantId,omitempty"`

	// OIDC
	DiscoveryURL     string   `json:"discoveryUrl,omitempty"`
	AuthorizationURL string   `json:"authorizationUrl,omitempty"`
	TokenURL         string   `json:"tokenUrl,omitempty"`
	UserInfoURL      string   `json:"userInfoUrl,omitempty"`
	Scopes           []string `json:"scopes,omitempty"`

	// Access control
	AllowedDomains []string `json:"allowedDomains,omitempty"`
	AllowedOrgs    []string `json:"allowedOrgs,omitempty"`
}

// IdentityConfig configures the identity provider client
type IdentityConfig struct {
	Profile          string                     `json:"profile"`
	DefaultProvider  string                     `json:"defaultProvider"`
	StateSecret      Secret                     `json:"stateSecret"`
	RefreshThreshold time.Duration              `json:"refreshThreshold"`
	RefreshInterval  time.Duration              `json:"refreshInterval"`
	Providers        map[string]*ProviderConfig `json:"providers"`
}

// RedisConfig configures the Redis session store
type RedisConfig struct {
	Addr      string `json:"addr"`
	Password  Secret `json:"password"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"keyPrefix"`
}

// FirestoreConfig configures the Firestore session store
type FirestoreConfig struct {
	Project    string `json:"project"`
	Database   string `json:"database"`
	Collection string `json:"collection"`
}

// StorageConfig configures session persistence
type StorageConfig struct {
	Kind          StorageKind      `json:"kind"`
	EncryptionKey Secret           `json:"encryptionKey"`
	Redis         *RedisConfig     `json:"redis,omitempty"`
	Firestore     *FirestoreConfig `json:"firestore,omitempty"`
}

// Config is the fully resolved configuration of the shell
type Config struct {
	Version  string         `json:"version"`
	Shell    ShellConfig    `json:"shell"`
	API      APIConfig      `json:"api"`
	Identity IdentityConfig `json:"identity"`
	Storage  StorageConfig  `json:"storage"`
}

// RawConfigValue is a parsed string or environment reference.
// It only exists during parsing.
type RawConfigValue struct {
	value   string
	fromEnv bool
}

// ParseConfigValue parses a JSON value that could be a string or {"$env": "VAR"}
func ParseConfigValue(raw json.RawMessage) (*RawConfigValue, error) {
	// Try plain string first
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return &RawConfigValue{value: str}, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return nil, fmt.Errorf("unknown reference type in config value")
	}
	value := os.Getenv(envVar)
	if value == "" {
		return nil, fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return &RawConfigValue{value: value, fromEnv: true}, nil
}
