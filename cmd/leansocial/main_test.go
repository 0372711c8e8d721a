package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/leansocial/shell/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDefaultConfig_Validates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, generateDefaultConfig(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	var out bytes.Buffer
	require.NoError(t, validateConfig(&out, path))
	assert.Contains(t, out.String(), "Result: PASS")
}

func TestGenerateDefaultConfig_Loads(t *testing.T) {
	t.Setenv("LEANSOCIAL_CSRF_SECRET", "csrf-secret-that-is-at-least-32-chars")
	t.Setenv("LEANSOCIAL_STATE_SECRET", "state-secret-that-is-at-least-32-chars")
	t.Setenv("LEANSOCIAL_ENCRYPTION_KEY", "encryption-key-exactly-32-bytes!")
	t.Setenv("GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "client-secret")

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, generateDefaultConfig(path))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultLandingPath, cfg.Shell.LandingPath)
	assert.Equal(t, "google", cfg.Identity.DefaultProvider)
	assert.Equal(t, config.StorageKindRedis, cfg.Storage.Kind)
}

func TestValidateConfig_ReportsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": "v1", "shell": {"csrfSecret": "inline"}}`), 0600))

	var out bytes.Buffer
	err := validateConfig(&out, path)
	require.Error(t, err)
	assert.Contains(t, out.String(), "shell.csrfSecret")
	assert.Contains(t, out.String(), "Result: FAIL")
}

func TestVersionCommand(t *testing.T) {
	cmd := versionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	require.NoError(t, cmd.Execute())
	assert.Equal(t, BuildVersion+"\n", out.String())
}
