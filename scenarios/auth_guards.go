package scenarios

import (
	"context"

	"github.com/google/uuid"

	"github.com/c360studio/authprobe/client"
	"github.com/c360studio/authprobe/config"
)

// malformedToken looks like a JWT but cannot verify against any key.
const malformedToken = "eyJhbGciOiJIUzI1NiJ9.bm90LWEtY2xhaW1zZXQ.c2lnbmF0dXJl"

// AuthGuardsScenario checks that the API refuses bad credentials and tokens.
type AuthGuardsScenario struct {
	name        string
	description string
	config      *config.Config
	deps        Deps
	http        *client.AuthClient
	email       string
}

// NewAuthGuardsScenario creates a new auth guards scenario.
func NewAuthGuardsScenario(cfg *config.Config, deps Deps) *AuthGuardsScenario {
	return &AuthGuardsScenario{
		name:        "auth-guards",
		description: "Verifies the API rejects wrong passwords, missing or malformed tokens and unknown refresh tokens",
		config:      cfg,
		deps:        deps,
	}
}

// Name returns the scenario name.
func (s *AuthGuardsScenario) Name() string {
	return s.name
}

// Description returns the scenario description.
func (s *AuthGuardsScenario) Description() string {
	return s.description
}

// Setup prepares the scenario environment.
func (s *AuthGuardsScenario) Setup(ctx context.Context) error {
	s.http = newAuthClient(s.config, s.deps)
	s.email = s.config.Credentials.Email
	if s.config.UniqueEmail {
		s.email = uniqueEmail(s.email)
	}

	return awaitService(ctx, s.http, s.config, s.deps)
}

// Execute runs the negative checks.
func (s *AuthGuardsScenario) Execute(ctx context.Context) (*Result, error) {
	result := NewResult(s.name)
	defer finish(result)

	result.SetDetail(DetailEmail, s.email)

	stages := []exchange{
		{
			// A wrong password only proves something if the account exists.
			name:    "ensure-account",
			title:   "Account Setup",
			section: "Ensuring Test Account Exists...",
			passMsg: "Test account available!",
			failMsg: "Could not create or find the test account!",
			expect:  []int{201, 409},
			call: func(ctx context.Context) (*client.Response, error) {
				return s.http.Register(ctx, client.RegisterRequest{
					Email:    s.email,
					Password: s.config.Credentials.Password,
					Name:     s.config.Credentials.Name,
				})
			},
		},
		{
			name:    "wrong-password",
			title:   "Wrong Password Rejected",
			section: "Testing Login With Wrong Password...",
			passMsg: "Wrong password rejected!",
			failMsg: "Wrong password was not rejected!",
			expect:  []int{401},
			call: func(ctx context.Context) (*client.Response, error) {
				return s.http.Login(ctx, client.LoginRequest{
					Email:    s.email,
					Password: s.config.Credentials.Password + "-wrong",
				})
			},
		},
		{
			name:    "me-without-token",
			title:   "Missing Token Rejected",
			section: "Testing Get Current User Without Token...",
			passMsg: "Request without token rejected!",
			failMsg: "Request without token was not rejected!",
			expect:  []int{401, 403},
			call: func(ctx context.Context) (*client.Response, error) {
				return s.http.CurrentUser(ctx, "")
			},
		},
		{
			name:    "me-malformed-token",
			title:   "Malformed Token Rejected",
			section: "Testing Get Current User With Malformed Token...",
			passMsg: "Malformed token rejected!",
			failMsg: "Malformed token was not rejected!",
			expect:  []int{401, 403},
			call: func(ctx context.Context) (*client.Response, error) {
				return s.http.CurrentUser(ctx, malformedToken)
			},
		},
		{
			name:    "refresh-unknown-token",
			title:   "Unknown Refresh Token Rejected",
			section: "Testing Token Refresh With Unknown Token...",
			passMsg: "Unknown refresh token rejected!",
			failMsg: "Unknown refresh token was not rejected!",
			expect:  []int{400, 401, 404},
			call: func(ctx context.Context) (*client.Response, error) {
				return s.http.RefreshToken(ctx, uuid.NewString())
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
func (s *AuthGuardsScenario) Teardown(ctx context.Context) error {
	return nil
}
