package client

import "time"

// RegisterRequest is the body of POST /register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshTokenRequest is the body of POST /refresh-token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// EmailRequest is the body of the account-recovery endpoints.
type EmailRequest struct {
	Email string `json:"email"`
}

// AuthResponse is returned by register, login and refresh.
type AuthResponse struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	TokenType    string        `json:"tokenType,omitempty"`
	ExpiresIn    int64         `json:"expiresIn,omitempty"`
	User         *UserResponse `json:"user,omitempty"`
}

// UserResponse is the profile returned by GET /me.
type UserResponse struct {
	ID            int64  `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Role          string `json:"role,omitempty"`
	EmailVerified bool   `json:"emailVerified"`
}

// MessageResponse carries informational replies.
type MessageResponse struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse is the error envelope used by the auth service.
type ErrorResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Path      string    `json:"path,omitempty"`
	ErrorCode string    `json:"errorCode,omitempty"`
	Errors    []string  `json:"errors,omitempty"`
}
