package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ValidateBytes(data), nil
}

// ValidateBytes is ValidateFile for config already in memory
func ValidateBytes(data []byte) *ValidationResult {
	result := &ValidationResult{}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": %q", SupportedVersion)
	} else if !strings.HasPrefix(version, SupportedVersion) {
		result.addError("version", "unsupported version '%s' - use '%s'", version, SupportedVersion)
	}

	validateShellStructure(rawConfig, result)
	validateAPIStructure(rawConfig, result)
	validateIdentityStructure(rawConfig, result)
	validateStorageStructure(rawConfig, result)

	return result
}

func validateShellStructure(rawConfig map[string]any, result *ValidationResult) {
	shell, ok := rawConfig["shell"].(map[string]any)
	if !ok {
		result.addError("shell", "shell field is required and must be an object")
		return
	}

	if err := validateEnvVarReference(shell["csrfSecret"], "csrfSecret", "shell.csrfSecret"); err != nil {
		result.Errors = append(result.Errors, *err)
	}
	validateDurationField(shell, "bootstrapTimeout", "shell.bootstrapTimeout", result)

	for _, field := range []string{"landingPath", "signInPath", "signUpPath"} {
		if p, ok := shell[field].(string); ok && !strings.HasPrefix(p, "/") {
			result.addError("shell."+field, "%s must be an absolute path like \"/me\"", field)
		}
	}
}

func validateAPIStructure(rawConfig map[string]any, result *ValidationResult) {
	api, ok := rawConfig["api"].(map[string]any)
	if !ok {
		result.addError("api", "api field is required and must be an object")
		return
	}
	if _, ok := api["baseURL"]; !ok {
		result.addError("api.baseURL", "baseURL is required. Example: \"http://localhost:8000\"")
	}
	validateDurationField(api, "timeout", "api.timeout", result)
}

func validateIdentityStructure(rawConfig map[string]any, result *ValidationResult) {
	identity, ok := rawConfig["identity"].(map[string]any)
	if !ok {
		result.addError("identity", "identity field is required and must be an object")
		return
	}

	if err := validateEnvVarReference(identity["stateSecret"], "stateSecret", "identity.stateSecret"); err != nil {
		result.Errors = append(result.Errors, *err)
	}
	validateDurationField(identity, "refreshThreshold", "identity.refreshThreshold", result)
	validateDurationField(identity, "refreshInterval", "identity.refreshInterval", result)

	providers, ok := identity["providers"].(map[string]any)
	if !ok || len(providers) == 0 {
		result.addError("identity.providers", "at least one provider is required. Options: google, github, azure, oidc")
		return
	}

	for name, p := range providers {
		path := "identity.providers." + name
		provider, ok := p.(map[string]any)
		if !ok {
			result.addError(path, "provider must be an object")
			continue
		}
		validateProviderStructure(provider, path, result)
	}

	if def, ok := identity["defaultProvider"].(string); ok {
		if _, exists := providers[def]; !exists {
			result.addError("identity.defaultProvider", "defaultProvider '%s' is not one of the configured providers", def)
		}
	} else if len(providers) > 1 {
		result.addError("identity.defaultProvider", "defaultProvider is required when more than one provider is configured")
	}
}

func validateProviderStructure(provider map[string]any, path string, result *ValidationResult) {
	providerType, _ := provider["type"].(string)
	if _, ok := provider["clientId"]; !ok {
		result.addError(path+".clientId", "clientId is required")
	}
	if err := validateEnvVarReference(provider["clientSecret"], "clientSecret", path+".clientSecret"); err != nil {
		result.Errors = append(result.Errors, *err)
	}

	switch ProviderType(providerType) {
	case ProviderTypeGoogle:
	case ProviderTypeGitHub:
		if _, ok := provider["allowedDomains"]; ok {
			result.addWarning(path+".allowedDomains", "allowedDomains is matched against the primary email domain on GitHub. Consider allowedOrgs")
		}
	case ProviderTypeAzure:
		if _, ok := provider["tenantId"]; !ok {
			result.addError(path+".tenantId", "tenantId is required for azure")
		}
	case ProviderTypeOIDC:
		_, hasDiscovery := provider["discoveryUrl"]
		_, hasAuth := provider["authorizationUrl"]
		_, hasToken := provider["tokenUrl"]
		_, hasUserInfo := provider["userInfoUrl"]
		if !hasDiscovery && !(hasAuth && hasToken && hasUserInfo) {
			result.addError(path, "oidc requires discoveryUrl or all of authorizationUrl, tokenUrl, userInfoUrl")
		}
	case "":
		result.addError(path+".type", "type is required. Options: google, github, azure, oidc")
	default:
		result.addError(path+".type", "unknown provider type '%s' - supported types: google, github, azure, oidc", providerType)
	}
}

func validateStorageStructure(rawConfig map[string]any, result *ValidationResult) {
	storage, ok := rawConfig["storage"].(map[string]any)
	if !ok {
		result.addWarning("storage", "no storage configured, the session will not survive a restart")
		return
	}

	kind, _ := storage["kind"].(string)
	switch StorageKind(kind) {
	case "", StorageKindMemory:
		result.addWarning("storage.kind", "memory storage does not survive a restart")
		return
	case StorageKindRedis:
		redis, ok := storage["redis"].(map[string]any)
		if !ok {
			result.addError("storage.redis", "redis configuration is required when using redis storage")
		} else if _, ok := redis["addr"]; !ok {
			result.addError("storage.redis.addr", "addr is required. Example: \"localhost:6379\"")
		}
	case StorageKindFirestore:
		fs, ok := storage["firestore"].(map[string]any)
		if !ok {
			result.addError("storage.firestore", "firestore configuration is required when using firestore storage")
		} else if _, ok := fs["project"]; !ok {
			result.addError("storage.firestore.project", "project is required")
		}
	default:
		result.addError("storage.kind", "unknown storage kind '%s' - supported kinds: memory, redis, firestore", kind)
		return
	}

	if err := validateEnvVarReference(storage["encryptionKey"], "encryptionKey", "storage.encryptionKey"); err != nil {
		result.Errors = append(result.Errors, *err)
	}
}

func validateDurationField(obj map[string]any, field, path string, result *ValidationResult) {
	v, ok := obj[field]
	if !ok {
		return
	}
	s, ok := v.(string)
	if !ok {
		result.addError(path, "%s must be a duration string like \"10s\"", field)
		return
	}
	if _, err := time.ParseDuration(s); err != nil {
		result.addError(path, "invalid duration '%s': %v", s, err)
	}
}

// validateEnvVarReference checks that a secret is given as {"$env": "VAR"}
func validateEnvVarReference(value any, fieldName, path string) *ValidationError {
	if value == nil {
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s is required. Use {\"$env\": \"VAR_NAME\"}", fieldName),
		}
	}
	if _, isString := value.(string); isString {
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must use environment variable reference for security. Use {\"$env\": \"VAR_NAME\"}", fieldName),
		}
	}
	ref, ok := value.(map[string]any)
	if !ok {
		return &ValidationError{Path: path, Message: fmt.Sprintf("%s must be an object", fieldName)}
	}
	if _, hasEnv := ref["$env"]; !hasEnv {
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must use {\"$env\": \"VAR_NAME\"} format", fieldName),
		}
	}
	return nil
}

var bashStyleRegex = regexp.MustCompile(`\$\{?[A-Z_][A-Z0-9_]*\}?`)

// checkBashStyleSyntax recursively checks for bash-style env var syntax
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.addWarning(path, "found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", match, varName)
		}
	case map[string]any:
		// Skip if this is already an env ref
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
