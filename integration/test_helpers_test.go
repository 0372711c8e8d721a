package integration

import (
	"encoding/json"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// shellEnv carries the secrets the test configs reference
var shellEnv = []string{
	"TEST_CSRF_SECRET=csrf-secret-that-is-at-least-32-chars",
	"TEST_STATE_SECRET=state-secret-that-is-at-least-32-chars",
	"TEST_CLIENT_SECRET=client-secret",
	"LOG_LEVEL=debug",
}

func idpURL(path string) string {
	return "http://127.0.0.1:" + idpPort + path
}

func testOIDCProvider(allowedDomains ...string) map[string]any {
	p := map[string]any{
		"type":             "oidc",
		"displayName":      "Test SSO",
		"clientId":         "test-client",
		"clientSecret":     map[string]string{"$env": "TEST_CLIENT_SECRET"},
		"authorizationUrl": idpURL("/auth"),
		"tokenUrl":         idpURL("/token"),
		"userInfoUrl":      idpURL("/userinfo"),
	}
	if len(allowedDomains) > 0 {
		p["allowedDomains"] = allowedDomains
	}
	return p
}

func buildTestConfig(providers map[string]any, defaultProvider string) map[string]any {
	return map[string]any{
		"version": "v1",
		"shell": map[string]any{
			"addr":       shellAddr,
			"baseURL":    shellURL,
			"csrfSecret": map[string]string{"$env": "TEST_CSRF_SECRET"},
		},
		"api": map[string]any{
			"baseURL": "http://127.0.0.1:" + apiPort + "/v1",
			"timeout": "5s",
		},
		"identity": map[string]any{
			"defaultProvider": defaultProvider,
			"stateSecret":     map[string]string{"$env": "TEST_STATE_SECRET"},
			"providers":       providers,
		},
		"storage": map[string]any{"kind": "memory"},
	}
}

func writeTestConfig(t *testing.T, cfg map[string]any) string {
	t.Helper()
	data, err := json.MarshalIndent(cfg, "", "  ")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func runShell(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(shellBinary, args...)
	cmd.Env = append(os.Environ(), shellEnv...)
	out, err := cmd.CombinedOutput()
	t.Logf("leansocial %s:\n%s", strings.Join(args, " "), out)
	return string(out), err
}

// startShell runs "leansocial serve" until the test ends
func startShell(t *testing.T, configPath string) {
	t.Helper()
	cmd := exec.Command(shellBinary, "serve", "--config", configPath)
	cmd.Env = append(os.Environ(), shellEnv...)
	logFile, err := os.Create(filepath.Join(t.TempDir(), "leansocial.log"))
	require.NoError(t, err)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	require.NoError(t, cmd.Start())

	t.Cleanup(func() {
		stopShell(cmd)
		_ = logFile.Close()
		if t.Failed() {
			if data, err := os.ReadFile(logFile.Name()); err == nil {
				t.Logf("leansocial output:\n%s", data)
			}
		}
	})

	waitForShell(t)
}

func stopShell(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		_ = cmd.Process.Kill()
		<-done
	}
}

func waitForShell(t *testing.T) {
	t.Helper()
	for j := 0; j < 50; j++ {
		resp, err := http.Get(shellURL + "/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatal("leansocial did not become healthy")
}
