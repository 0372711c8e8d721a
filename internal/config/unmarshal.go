package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

func parseString(raw json.RawMessage, field string) (string, error) {
	if raw == nil {
		return "", nil
	}
	parsed, err := ParseConfigValue(raw)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", field, err)
	}
	return parsed.value, nil
}

func parseDuration(value, field string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", field, err)
	}
	return d, nil
}

// UnmarshalJSON implements custom unmarshaling for ShellConfig
func (s *ShellConfig) UnmarshalJSON(data []byte) error {
	type rawShell struct {
		Addr             json.RawMessage `json:"addr"`
		BaseURL          json.RawMessage `json:"baseURL"`
		LandingPath      string          `json:"landingPath"`
		SignInPath       string          `json:"signInPath"`
		SignUpPath       string          `json:"signUpPath"`
		BootstrapTimeout string          `json:"bootstrapTimeout"`
		CSRFSecret       json.RawMessage `json:"csrfSecret"`
	}

	var raw rawShell
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if s.Addr, err = parseString(raw.Addr, "addr"); err != nil {
		return err
	}
	if s.BaseURL, err = parseString(raw.BaseURL, "baseURL"); err != nil {
		return err
	}
	s.BaseURL = strings.TrimRight(s.BaseURL, "/")
	if s.BootstrapTimeout, err = parseDuration(raw.BootstrapTimeout, "bootstrapTimeout"); err != nil {
		return err
	}
	csrf, err := parseString(raw.CSRFSecret, "csrfSecret")
	if err != nil {
		return err
	}
	s.CSRFSecret = Secret(csrf)

	s.LandingPath = raw.LandingPath
	s.SignInPath = raw.SignInPath
	s.SignUpPath = raw.SignUpPath
	if s.Addr == "" {
		s.Addr = DefaultAddr
	}
	if s.BaseURL == "" {
		s.BaseURL = "http://" + s.Addr
	}
	if s.LandingPath == "" {
		s.LandingPath = DefaultLandingPath
	}
	if s.SignInPath == "" {
		s.SignInPath = DefaultSignInPath
	}
	if s.SignUpPath == "" {
		s.SignUpPath = DefaultSignUpPath
	}
	if s.BootstrapTimeout == 0 {
		s.BootstrapTimeout = DefaultBootstrapTimeout
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for APIConfig
func (a *APIConfig) UnmarshalJSON(data []byte) error {
	type rawAPI struct {
		BaseURL json.RawMessage `json:"baseURL"`
		Timeout string          `json:"timeout"`
	}

	var raw rawAPI
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if a.BaseURL, err = parseString(raw.BaseURL, "baseURL"); err != nil {
		return err
	}
	a.BaseURL = strings.TrimRight(a.BaseURL, "/")
	if a.Timeout, err = parseDuration(raw.Timeout, "timeout"); err != nil {
		return err
	}
	if a.Timeout == 0 {
		a.Timeout = DefaultAPITimeout
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for ProviderConfig
func (p *ProviderConfig) UnmarshalJSON(data []byte) error {
	// Use type alias to avoid recursion
	type rawProvider ProviderConfig
	type wrapper struct {
		rawProvider
		ClientID     json.RawMessage `json:"clientId"`
		ClientSecret json.RawMessage `json:"clientSecret"`
		TenantID     json.RawMessage `json:"tenantId,omitempty"`
	}

	var raw wrapper
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = ProviderConfig(raw.rawProvider)

	if p.Type == "" {
		return fmt.Errorf("type is required")
	}

	var err error
	if p.ClientID, err = parseString(raw.ClientID, "clientId"); err != nil {
		return err
	}
	if p.TenantID, err = parseString(raw.TenantID, "tenantId"); err != nil {
		return err
	}
	secret, err := parseString(raw.ClientSecret, "clientSecret")
	if err != nil {
		return err
	}
	p.ClientSecret = Secret(secret)
	return nil
}

// UnmarshalJSON implements custom unmarshaling for IdentityConfig
func (i *IdentityConfig) UnmarshalJSON(data []byte) error {
	type rawIdentity struct {
		Profile          string                     `json:"profile"`
		DefaultProvider  string                     `json:"defaultProvider"`
		StateSecret      json.RawMessage            `json:"stateSecret"`
		RefreshThreshold string                     `json:"refreshThreshold"`
		RefreshInterval  string                     `json:"refreshInterval"`
		Providers        map[string]*ProviderConfig `json:"providers"`
	}

	var raw rawIdentity
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	i.Profile = raw.Profile
	i.DefaultProvider = raw.DefaultProvider
	i.Providers = raw.Providers

	state, err := parseString(raw.StateSecret, "stateSecret")
	if err != nil {
		return err
	}
	i.StateSecret = Secret(state)

	if i.RefreshThreshold, err = parseDuration(raw.RefreshThreshold, "refreshThreshold"); err != nil {
		return err
	}
	if i.RefreshInterval, err = parseDuration(raw.RefreshInterval, "refreshInterval"); err != nil {
		return err
	}

	if i.Profile == "" {
		i.Profile = DefaultProfile
	}
	if i.RefreshThreshold == 0 {
		i.RefreshThreshold = DefaultRefreshThreshold
	}
	if i.RefreshInterval == 0 {
		i.RefreshInterval = DefaultRefreshInterval
	}
	// A single provider is the default without saying so
	if i.DefaultProvider == "" && len(i.Providers) == 1 {
		for name := range i.Providers {
			i.DefaultProvider = name
		}
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for StorageConfig
func (s *StorageConfig) UnmarshalJSON(data []byte) error {
	type rawRedis struct {
		Addr      json.RawMessage `json:"addr"`
		Password  json.RawMessage `json:"password"`
		DB        int             `json:"db"`
		KeyPrefix string          `json:"keyPrefix"`
	}
	type rawStorage struct {
		Kind          StorageKind      `json:"kind"`
		EncryptionKey json.RawMessage  `json:"encryptionKey"`
		Redis         *rawRedis        `json:"redis"`
		Firestore     *FirestoreConfig `json:"firestore"`
	}

	var raw rawStorage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Kind = raw.Kind
	if s.Kind == "" {
		s.Kind = StorageKindMemory
	}

	key, err := parseString(raw.EncryptionKey, "encryptionKey")
	if err != nil {
		return err
	}
	s.EncryptionKey = Secret(key)

	if raw.Redis != nil {
		addr, err := parseString(raw.Redis.Addr, "redis.addr")
		if err != nil {
			return err
		}
		password, err := parseString(raw.Redis.Password, "redis.password")
		if err != nil {
			return err
		}
		s.Redis = &RedisConfig{
			Addr:      addr,
			Password:  Secret(password),
			DB:        raw.Redis.DB,
			KeyPrefix: raw.Redis.KeyPrefix,
		}
		if s.Redis.KeyPrefix == "" {
			s.Redis.KeyPrefix = DefaultRedisKeyPrefix
		}
	}

	s.Firestore = raw.Firestore
	if s.Kind == StorageKindFirestore {
		if s.Firestore == nil {
			s.Firestore = &FirestoreConfig{}
		}
		// Apply defaults for Firestore configuration
		if s.Firestore.Database == "" {
			s.Firestore.Database = DefaultFirestoreDB
		}
		if s.Firestore.Collection == "" {
			s.Firestore.Collection = DefaultFirestoreColl
		}
	}
	return nil
}
