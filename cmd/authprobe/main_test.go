package main

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/authprobe/mockauth"
	"github.com/c360studio/authprobe/report"
)

func newMockAPI(t *testing.T) string {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := httptest.NewServer(mockauth.New(mockauth.Config{Logger: quiet}).Handler())
	t.Cleanup(ts.Close)
	return ts.URL + mockauth.BasePath
}

// execute runs the root command with an isolated home directory.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	var stdout, stderr bytes.Buffer
	cmd := rootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCmd_AuthFlowAgainstMock(t *testing.T) {
	baseURL := newMockAPI(t)

	out, _, err := execute(t, "--base-url", baseURL)
	require.NoError(t, err)

	assert.Contains(t, out, "Authentication API Test")
	assert.Contains(t, out, "✅ Registration successful!")
	assert.Contains(t, out, "✓ Get Current User: Success")
	assert.Contains(t, out, "✅ All tests completed!")
	assert.Contains(t, out, "Email: authprobe@example.com")
	assert.NotContains(t, out, "SUMMARY", "single scenario runs print no table")
}

func TestRootCmd_ConnectionFailureExitsCleanly(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, _, err := execute(t, "--base-url", url+"/auth", "--strict")
	require.Error(t, err, "strict mode reports the failed scenario")

	out, _, err := execute(t, "--base-url", url+"/auth")
	require.NoError(t, err)
	assert.Contains(t, out, "❌ Error: Cannot connect to the server.")
	assert.NotContains(t, out, "All tests completed!")
}

func TestRootCmd_JSONConnectionFailureOnStderr(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL + "/auth"
	ts.Close()

	out, errOut, err := execute(t, "--json", "--base-url", url)
	require.NoError(t, err)
	assert.Contains(t, errOut, "❌ Error: Cannot connect to the server.")
	assert.NotContains(t, out, "Cannot connect", "stdout carries only the report")

	var run report.Run
	require.NoError(t, json.Unmarshal([]byte(out), &run), out)
	assert.Equal(t, 1, run.Summary.Failed)
}

func TestRootCmd_ShortPasswordReachesServer(t *testing.T) {
	api := mockauth.New(mockauth.Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}).Handler()
	var mu sync.Mutex
	var registered []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == mockauth.BasePath+"/register" {
			mu.Lock()
			registered = append(registered, r.URL.Path)
			mu.Unlock()
		}
		api.ServeHTTP(w, r)
	}))
	defer ts.Close()

	out, _, err := execute(t, "--base-url", ts.URL+mockauth.BasePath, "--password", "abc123", "--strict")
	require.NoError(t, err)
	assert.Contains(t, out, "Password: abc123")
	assert.Contains(t, out, "✅ Registration successful!")

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, registered, 1)
}

func TestRootCmd_StrictFailsOnDuplicateRegistration(t *testing.T) {
	baseURL := newMockAPI(t)

	_, _, err := execute(t, "--base-url", baseURL, "--strict")
	require.NoError(t, err)

	out, _, err := execute(t, "--base-url", baseURL, "--strict")
	require.ErrorIs(t, err, errScenariosFailed)
	assert.Contains(t, out, "Registration failed. Cannot proceed with other tests.")

	// Without --strict the same outcome exits cleanly.
	_, _, err = execute(t, "--base-url", baseURL)
	require.NoError(t, err)
}

func TestRootCmd_AllAsJSON(t *testing.T) {
	baseURL := newMockAPI(t)

	out, _, err := execute(t, "all", "--json", "--unique-email", "--base-url", baseURL)
	require.NoError(t, err)

	var run report.Run
	require.NoError(t, json.Unmarshal([]byte(out), &run), out)
	assert.Equal(t, baseURL, run.BaseURL)
	assert.Equal(t, 3, run.Summary.Total)
	assert.Equal(t, 3, run.Summary.Passed, out)

	names := make([]string, 0, len(run.Results))
	for _, r := range run.Results {
		names = append(names, r.ScenarioName)
	}
	assert.Equal(t, []string{"auth-flow", "auth-guards", "account-recovery"}, names)
}

func TestRootCmd_MetricsFile(t *testing.T) {
	baseURL := newMockAPI(t)
	path := filepath.Join(t.TempDir(), "authprobe.prom")

	_, _, err := execute(t, "--base-url", baseURL, "--metrics-file", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `authprobe_requests_total{code="201",endpoint="register"} 1`)
	assert.Contains(t, string(data), `authprobe_stage_success{scenario="auth-flow",stage="refresh-token"} 1`)
}

func TestRootCmd_ConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"unknown scenario", []string{"nope"}, "unknown scenario: nope"},
		{"empty email", []string{"--email", ""}, "credentials.email is required"},
		{"invalid log level", []string{"--log-level", "loud"}, "log_level"},
		{"missing config file", []string{"--config", "/does/not/exist.yaml"}, "load config"},
		{"too many args", []string{"auth-flow", "auth-guards"}, "accepts at most 1 arg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigFileAndFlagPrecedence(t *testing.T) {
	baseURL := newMockAPI(t)
	path := filepath.Join(t.TempDir(), "authprobe.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base_url: http://127.0.0.1:1/auth\ncredentials:\n  email: file@example.com\n"), 0o600))

	out, _, err := execute(t, "--config", path, "--base-url", baseURL)
	require.NoError(t, err)
	assert.Contains(t, out, "Email: file@example.com", "email from file, base URL from flag")
}

func TestListAndVersion(t *testing.T) {
	out, _, err := execute(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "auth-flow")
	assert.Contains(t, out, "auth-guards")
	assert.Contains(t, out, "account-recovery")

	out, _, err = execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "authprobe version "+Version+" (build: "+BuildTime+")\n", out)
}

func TestInitWritesUserConfig(t *testing.T) {
	out, _, err := execute(t, "init")
	require.NoError(t, err)

	path := filepath.Join(os.Getenv("HOME"), ".config", "authprobe", "config.yaml")
	assert.Equal(t, "User config: "+path+"\n", out)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "base_url: http://localhost:8080/auth")
}
