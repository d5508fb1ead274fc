// Package client provides the HTTP client used to exercise the auth API.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Endpoint names, relative to the base URL.
const (
	EndpointRegister           = "register"
	EndpointLogin              = "login"
	EndpointMe                 = "me"
	EndpointRefreshToken       = "refresh-token"
	EndpointForgotPassword     = "forgot-password"
	EndpointResendVerification = "resend-verification"
	EndpointProbe              = "probe"
)

// RequestIDHeader carries a fresh uuid on every request.
const RequestIDHeader = "X-Request-ID"

const readyPollInterval = 500 * time.Millisecond

// RequestObserver is notified after every request, successful or not.
// status is 0 when no response was received.
type RequestObserver interface {
	ObserveRequest(endpoint string, status int, duration time.Duration, err error)
}

// AuthClient issues requests against the auth API.
type AuthClient struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
	observer   RequestObserver
}

// Option configures an AuthClient.
type Option func(*AuthClient)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *AuthClient) { c.timeout = d }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *AuthClient) { c.httpClient = hc }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *AuthClient) { c.logger = l }
}

// WithObserver registers a RequestObserver.
func WithObserver(o RequestObserver) Option {
	return func(c *AuthClient) { c.observer = o }
}

// NewAuthClient creates a client for the auth API rooted at baseURL.
func NewAuthClient(baseURL string, opts ...Option) *AuthClient {
	c := &AuthClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    30 * time.Second,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		// Copy so a shared client such as http.DefaultClient is left alone.
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c
}

// BaseURL returns the API root the client talks to.
func (c *AuthClient) BaseURL() string {
	return c.baseURL
}

// Register creates an account. The service answers 201 on success.
func (c *AuthClient) Register(ctx context.Context, req RegisterRequest) (*Response, error) {
	return c.do(ctx, http.MethodPost, EndpointRegister, req, "")
}

// Login authenticates with email and password.
func (c *AuthClient) Login(ctx context.Context, req LoginRequest) (*Response, error) {
	return c.do(ctx, http.MethodPost, EndpointLogin, req, "")
}

// CurrentUser fetches the profile of the bearer of accessToken.
// An empty token sends no Authorization header.
func (c *AuthClient) CurrentUser(ctx context.Context, accessToken string) (*Response, error) {
	return c.do(ctx, http.MethodGet, EndpointMe, nil, accessToken)
}

// RefreshToken exchanges a refresh token for a new token pair.
func (c *AuthClient) RefreshToken(ctx context.Context, refreshToken string) (*Response, error) {
	return c.do(ctx, http.MethodPost, EndpointRefreshToken, RefreshTokenRequest{RefreshToken: refreshToken}, "")
}

// ForgotPassword requests a password reset link.
func (c *AuthClient) ForgotPassword(ctx context.Context, email string) (*Response, error) {
	return c.do(ctx, http.MethodPost, EndpointForgotPassword, EmailRequest{Email: email}, "")
}

// ResendVerification requests a new email verification link.
func (c *AuthClient) ResendVerification(ctx context.Context, email string) (*Response, error) {
	return c.do(ctx, http.MethodPost, EndpointResendVerification, EmailRequest{Email: email}, "")
}

// Probe issues a GET against the base URL. Any HTTP answer, whatever its
// status, proves the service is listening.
func (c *AuthClient) Probe(ctx context.Context) (*Response, error) {
	return c.do(ctx, http.MethodGet, EndpointProbe, nil, "")
}

// WaitForReady polls the service until it answers or the timeout elapses.
func (c *AuthClient) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	err := retry.Do(
		func() error {
			_, lastErr = c.Probe(ctx)
			return lastErr
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(readyPollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(IsConnectionError),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		// On timeout retry reports the context error; keep the dial failure visible.
		if IsConnectionError(lastErr) {
			err = lastErr
		}
		return fmt.Errorf("timeout waiting for auth service to be ready: %w", err)
	}
	return nil
}

func (c *AuthClient) url(endpoint string) string {
	if endpoint == EndpointProbe {
		return c.baseURL
	}
	return c.baseURL + "/" + endpoint
}

func (c *AuthClient) do(ctx context.Context, method, endpoint string, body any, bearer string) (*Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	url := c.url(endpoint)
	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	requestID := uuid.New().String()
	httpReq.Header.Set(RequestIDHeader, requestID)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		elapsed := time.Since(start)
		c.observe(endpoint, 0, elapsed, err)
		c.logger.Debug("HTTP request failed",
			slog.String("request_id", requestID),
			slog.String("method", method),
			slog.String("url", url),
			slog.String("error", err.Error()))
		if ctx.Err() == nil && isDialFailure(err) {
			return nil, NewConnectionError(c.baseURL, err)
		}
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	if err != nil {
		c.observe(endpoint, resp.StatusCode, elapsed, err)
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.observe(endpoint, resp.StatusCode, elapsed, nil)

	c.logger.Debug("HTTP request",
		slog.String("request_id", requestID),
		slog.String("method", method),
		slog.String("url", url),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", elapsed))

	return &Response{
		Endpoint:   endpoint,
		Method:     method,
		StatusCode: resp.StatusCode,
		Body:       data,
		Duration:   elapsed,
	}, nil
}

func (c *AuthClient) observe(endpoint string, status int, d time.Duration, err error) {
	if c.observer != nil {
		c.observer.ObserveRequest(endpoint, status, d, err)
	}
}
