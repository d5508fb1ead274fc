package scenarios

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/c360studio/authprobe/client"
	"github.com/c360studio/authprobe/config"
	"github.com/c360studio/authprobe/token"
)

// Detail keys recorded by the auth-flow scenario.
const (
	DetailEmail          = "email"
	DetailPassword       = "password"
	DetailUserID         = "user_id"
	DetailTokenSource    = "token_source"
	DetailTokenSubject   = "access_token_subject"
	DetailTokenExpiresAt = "access_token_expires_at"
	DetailTokenTTL       = "access_token_ttl_seconds"
	DetailTokensRotated  = "refresh_rotated"
)

// AuthFlowScenario walks the happy path of the auth API: register, login,
// fetch the current user and refresh the token pair.
type AuthFlowScenario struct {
	name        string
	description string
	config      *config.Config
	deps        Deps
	http        *client.AuthClient

	email        string
	accessToken  string
	refreshToken string
}

// NewAuthFlowScenario creates a new auth flow scenario.
func NewAuthFlowScenario(cfg *config.Config, deps Deps) *AuthFlowScenario {
	return &AuthFlowScenario{
		name:        "auth-flow",
		description: "Registers a user, logs in, fetches /me and refreshes the token",
		config:      cfg,
		deps:        deps,
	}
}

// Name returns the scenario name.
func (s *AuthFlowScenario) Name() string {
	return s.name
}

// Description returns the scenario description.
func (s *AuthFlowScenario) Description() string {
	return s.description
}

// Setup creates the client, picks the account email and optionally waits
// for the service.
func (s *AuthFlowScenario) Setup(ctx context.Context) error {
	s.http = newAuthClient(s.config, s.deps)

	s.email = s.config.Credentials.Email
	if s.config.UniqueEmail {
		s.email = uniqueEmail(s.email)
	}
	s.accessToken, s.refreshToken = "", ""

	return awaitService(ctx, s.http, s.config, s.deps)
}

// Execute runs the auth flow.
func (s *AuthFlowScenario) Execute(ctx context.Context) (*Result, error) {
	result := NewResult(s.name)
	defer finish(result)

	result.SetDetail(DetailEmail, s.email)
	result.SetDetail(DetailPassword, s.config.Credentials.Password)

	stages := []exchange{
		{
			name:     "register",
			title:    "Registration",
			section:  "Testing User Registration...",
			passMsg:  "Registration successful!",
			failMsg:  "Registration failed!",
			expect:   []int{201},
			required: true,
			abortMsg: "Registration failed. Cannot proceed with other tests.",
			call: func(ctx context.Context) (*client.Response, error) {
				return s.http.Register(ctx, client.RegisterRequest{
					Email:    s.email,
					Password: s.config.Credentials.Password,
					Name:     s.config.Credentials.Name,
				})
			},
			onPass: func(resp *client.Response, result *Result) {
				if email := resp.StringField("user", "email"); email != "" {
					s.email = email
					result.SetDetail(DetailEmail, email)
				}
				if id, ok := resp.Field("user", "id"); ok {
					result.SetDetail(DetailUserID, id)
				}
				s.takeTokens(resp, result, "register")
			},
		},
		{
			name:    "login",
			title:   "Login",
			section: "Testing User Login...",
			passMsg: "Login successful!",
			failMsg: "Login failed!",
			expect:  []int{200},
			call: func(ctx context.Context) (*client.Response, error) {
				return s.http.Login(ctx, client.LoginRequest{
					Email:    s.email,
					Password: s.config.Credentials.Password,
				})
			},
			onPass: func(resp *client.Response, result *Result) {
				s.takeTokens(resp, result, "login")
			},
		},
		{
			name:    "current-user",
			title:   "Get Current User",
			section: "Testing Get Current User...",
			passMsg: "Get current user successful!",
			failMsg: "Get current user failed!",
			expect:  []int{200},
			skip: func() string {
				if s.accessToken == "" {
					return "no access token available"
				}
				return ""
			},
			call: func(ctx context.Context) (*client.Response, error) {
				return s.http.CurrentUser(ctx, s.accessToken)
			},
		},
		{
			name:    "refresh-token",
			title:   "Refresh Token",
			section: "Testing Token Refresh...",
			passMsg: "Token refresh successful!",
			failMsg: "Token refresh failed!",
			expect:  []int{200},
			skip: func() string {
				if s.refreshToken == "" {
					return "no refresh token available"
				}
				return ""
			},
			call: func(ctx context.Context) (*client.Response, error) {
				return s.http.RefreshToken(ctx, s.refreshToken)
			},
			onPass: func(resp *client.Response, result *Result) {
				previous := s.refreshToken
				s.takeTokens(resp, result, "refresh")
				result.SetDetail(DetailTokensRotated, s.refreshToken != previous)
			},
		},
	}

	runner := stageRunner{printer: s.deps.printer(), timeout: s.config.StageTimeout}
	if err := runner.run(ctx, result, stages); err != nil {
		return result, err
	}
	return result, nil
}

// Teardown cleans up after the scenario.
func (s *AuthFlowScenario) Teardown(ctx context.Context) error {
	// The service offers no account deletion; accounts outlive the run.
	return nil
}

// takeTokens keeps whichever tokens resp carries and inspects the access token.
func (s *AuthFlowScenario) takeTokens(resp *client.Response, result *Result, source string) {
	if at := resp.StringField("accessToken"); at != "" {
		s.accessToken = at
		result.SetDetail(DetailTokenSource, source)
		s.inspectAccessToken(result)
	}
	if rt := resp.StringField("refreshToken"); rt != "" {
		s.refreshToken = rt
	}
}

func (s *AuthFlowScenario) inspectAccessToken(result *Result) {
	claims, err := token.Inspect(s.accessToken)
	if err != nil {
		if errors.Is(err, token.ErrNotJWT) {
			result.AddWarning("access token is not a JWT; expiry not reported")
			return
		}
		result.AddWarning(fmt.Sprintf("inspect access token: %v", err))
		return
	}

	result.SetDetail(DetailTokenSubject, claims.Subject)
	if claims.Expired(time.Now()) {
		result.AddWarning("access token is already expired")
	}
	if !claims.ExpiresAt.IsZero() {
		result.SetDetail(DetailTokenExpiresAt, claims.ExpiresAt.UTC().Format(time.RFC3339))
		result.SetDetail(DetailTokenTTL, int64(claims.TTL(time.Now()).Seconds()))
	}
	if claims.Subject != "" && !strings.EqualFold(claims.Subject, s.email) {
		result.AddWarning(fmt.Sprintf("access token subject %q does not match email %q", claims.Subject, s.email))
	}
}
