package scenarios

import (
	"context"
	"errors"

	"github.com/c360studio/authprobe/client"
	"github.com/c360studio/authprobe/config"
)

// AccountRecoveryScenario exercises the password-reset and
// verification-resend endpoints.
type AccountRecoveryScenario struct {
	name        string
	description string
	config      *config.Config
	deps        Deps
	http        *client.AuthClient
}

// NewAccountRecoveryScenario creates a new account recovery scenario.
func NewAccountRecoveryScenario(cfg *config.Config, deps Deps) *AccountRecoveryScenario {
	return &AccountRecoveryScenario{
		name:        "account-recovery",
		description: "Requests a password reset and a verification resend for the configured email",
		config:      cfg,
		deps:        deps,
	}
}

// Name returns the scenario name.
func (s *AccountRecoveryScenario) Name() string {
	return s.name
}

// Description returns the scenario description.
func (s *AccountRecoveryScenario) Description() string {
	return s.description
}

// Setup prepares the scenario environment.
func (s *AccountRecoveryScenario) Setup(ctx context.Context) error {
	s.http = newAuthClient(s.config, s.deps)
	return awaitService(ctx, s.http, s.config, s.deps)
}

// Execute runs the recovery requests.
func (s *AccountRecoveryScenario) Execute(ctx context.Context) (*Result, error) {
	result := NewResult(s.name)
	defer finish(result)

	email := s.config.Credentials.Email
	result.SetDetail(DetailEmail, email)

	stages := []exchange{
		{
			name:    "forgot-password",
			title:   "Forgot Password",
			section: "Testing Forgot Password...",
			passMsg: "Password reset requested!",
			failMsg: "Password reset request failed!",
			expect:  []int{200},
			call: func(ctx context.Context) (*client.Response, error) {
				return s.http.ForgotPassword(ctx, email)
			},
			check: requireMessage,
		},
		{
			name:    "resend-verification",
			title:   "Resend Verification",
			section: "Testing Resend Verification...",
			passMsg: "Verification email requested!",
			failMsg: "Verification resend failed!",
			expect:  []int{200},
			call: func(ctx context.Context) (*client.Response, error) {
				return s.http.ResendVerification(ctx, email)
			},
			check: requireMessage,
		},
	}

	runner := stageRunner{printer: s.deps.printer(), timeout: s.config.StageTimeout}
	if err := runner.run(ctx, result, stages); err != nil {
		return result, err
	}
	return result, nil
}

// Teardown cleans up after the scenario.
func (s *AccountRecoveryScenario) Teardown(ctx context.Context) error {
	return nil
}

func requireMessage(resp *client.Response) error {
	if !resp.IsJSON() {
		return errors.New("response is not JSON")
	}
	if resp.StringField("message") == "" {
		return errors.New("response has no message")
	}
	return nil
}
