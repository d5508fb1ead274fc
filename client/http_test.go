package client_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/authprobe/client"
	"github.com/c360studio/authprobe/mockauth"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newMockServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(mockauth.New(mockauth.Config{Logger: quiet}).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func newClient(ts *httptest.Server, opts ...client.Option) *client.AuthClient {
	opts = append([]client.Option{client.WithLogger(quiet)}, opts...)
	return client.NewAuthClient(ts.URL+mockauth.BasePath, opts...)
}

// closedServerURL returns a URL nothing listens on.
func closedServerURL(t *testing.T) string {
	t.Helper()
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()
	return url
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
	codes []int
}

func (o *recordingObserver) ObserveRequest(endpoint string, status int, _ time.Duration, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, endpoint)
	o.codes = append(o.codes, status)
}

func TestAuthClient_FullFlow(t *testing.T) {
	ts := newMockServer(t)
	obs := &recordingObserver{}
	c := newClient(ts, client.WithObserver(obs))
	ctx := context.Background()

	resp, err := c.Register(ctx, client.RegisterRequest{Email: "qa@example.com", Password: "Test1234!", Name: "Test User"})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Pretty())

	var registered client.AuthResponse
	require.NoError(t, resp.Decode(&registered))
	assert.NotEmpty(t, registered.AccessToken)
	assert.NotEmpty(t, registered.RefreshToken)
	assert.Equal(t, "qa@example.com", resp.StringField("user", "email"))

	resp, err = c.Login(ctx, client.LoginRequest{Email: "qa@example.com", Password: "Test1234!"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	accessToken := resp.StringField("accessToken")
	refreshToken := resp.StringField("refreshToken")
	require.NotEmpty(t, accessToken)
	require.NotEmpty(t, refreshToken)

	resp, err = c.CurrentUser(ctx, accessToken)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me client.UserResponse
	require.NoError(t, resp.Decode(&me))
	assert.Equal(t, "Test User", me.Name)

	resp, err = c.RefreshToken(ctx, refreshToken)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEqual(t, refreshToken, resp.StringField("refreshToken"))

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, []string{
		client.EndpointRegister,
		client.EndpointLogin,
		client.EndpointMe,
		client.EndpointRefreshToken,
	}, obs.calls)
	assert.Equal(t, []int{201, 200, 200, 200}, obs.codes)
}

func TestAuthClient_NonSuccessIsNotAnError(t *testing.T) {
	ts := newMockServer(t)
	c := newClient(ts)

	resp, err := c.CurrentUser(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "/auth/me", resp.StringField("path"))
}

func TestAuthClient_Headers(t *testing.T) {
	var got http.Header
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":1}`))
	}))
	defer ts.Close()

	c := client.NewAuthClient(ts.URL, client.WithLogger(quiet))
	_, err := c.CurrentUser(context.Background(), "abc")
	require.NoError(t, err)

	assert.Equal(t, "Bearer abc", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Accept"))
	assert.Empty(t, got.Get("Content-Type"), "GET has no body")
	_, err = uuid.Parse(got.Get(client.RequestIDHeader))
	assert.NoError(t, err, "request id should be a uuid")

	_, err = c.Login(context.Background(), client.LoginRequest{Email: "a@example.com", Password: "x"})
	require.NoError(t, err)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Empty(t, got.Get("Authorization"))
}

func TestAuthClient_ForwardsValuesUnchanged(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []map[string]string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		bodies = append(bodies, body)
		mu.Unlock()
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()
	c := client.NewAuthClient(ts.URL+"/auth", client.WithLogger(quiet))

	resp, err := c.Register(context.Background(), client.RegisterRequest{Email: "not-an-email", Password: "abc123"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, err = c.RefreshToken(context.Background(), "")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 2, "every request reaches the server")
	assert.Equal(t, map[string]string{"email": "not-an-email", "password": "abc123", "name": ""}, bodies[0])
	assert.Equal(t, map[string]string{"refreshToken": ""}, bodies[1])
}

func TestAuthClient_SharedHTTPClientUntouched(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	shared := &http.Client{}
	c := client.NewAuthClient(ts.URL+"/auth",
		client.WithLogger(quiet),
		client.WithHTTPClient(shared),
		client.WithTimeout(50*time.Millisecond))

	_, err := c.CurrentUser(context.Background(), "")
	require.Error(t, err, "the per-request timeout still applies")
	assert.Zero(t, shared.Timeout)
}

func TestAuthClient_ConnectionError(t *testing.T) {
	c := client.NewAuthClient(closedServerURL(t)+"/auth", client.WithLogger(quiet))

	_, err := c.Login(context.Background(), client.LoginRequest{Email: "a@example.com", Password: "Test1234!"})
	require.Error(t, err)
	assert.True(t, client.IsConnectionError(err), "got %v", err)

	var connErr *client.ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Contains(t, connErr.URL, "/auth")
}

func TestAuthClient_CancelledContextIsNotConnectionError(t *testing.T) {
	ts := newMockServer(t)
	c := newClient(ts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Probe(ctx)
	require.Error(t, err)
	assert.False(t, client.IsConnectionError(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitForReady(t *testing.T) {
	ts := newMockServer(t)
	c := newClient(ts)

	// Any HTTP answer counts, even a 404 on the bare base path.
	require.NoError(t, c.WaitForReady(context.Background(), time.Second))
}

func TestWaitForReady_Timeout(t *testing.T) {
	c := client.NewAuthClient(closedServerURL(t), client.WithLogger(quiet))

	start := time.Now()
	err := c.WaitForReady(context.Background(), 1200*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout waiting for auth service")
	assert.True(t, client.IsConnectionError(err), "got %v", err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestResponse_PrettyAndField(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantPretty string
	}{
		{"json object", `{"a":1,"b":{"c":"d"}}`, "{\n  \"a\": 1,\n  \"b\": {\n    \"c\": \"d\"\n  }\n}"},
		{"plain text", "Service Unavailable", "Service Unavailable"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &client.Response{Body: []byte(tt.body)}
			assert.Equal(t, tt.wantPretty, resp.Pretty())
		})
	}

	resp := &client.Response{Body: []byte(`{"user":{"email":"qa@example.com","id":7}}`)}
	assert.True(t, resp.IsJSON())
	assert.Equal(t, "qa@example.com", resp.StringField("user", "email"))
	id, ok := resp.Field("user", "id")
	require.True(t, ok)
	assert.Equal(t, float64(7), id)
	assert.Equal(t, "", resp.StringField("user", "id"), "non-string leaf")
	_, ok = resp.Field("user", "missing")
	assert.False(t, ok)

	text := &client.Response{Body: []byte("<html>")}
	assert.False(t, text.IsJSON())
	_, ok = text.Field("user")
	assert.False(t, ok)
	assert.Error(t, text.Decode(&struct{}{}))
}
