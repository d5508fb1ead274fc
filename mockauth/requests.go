package mockauth

// Request bodies as the service accepts them. The client sends its own
// types unchecked; these tags are the service's input policy.

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"required"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}
