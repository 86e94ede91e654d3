package dto

import (
	"time"

	"github.com/mernacademy/student-auth/internal/domain"
)

// SignupRequest payload for new accounts.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Course   string `json:"course"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenRequest carries a single-use token.
type TokenRequest struct {
	Token string `json:"token"`
}

// ForgotPasswordRequest starts a password reset.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest completes a password reset.
type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ChangePasswordRequest replaces the caller's password.
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// MessageResponse is the body of state-changing endpoints.
type MessageResponse struct {
	Message string `json:"message"`
}

// AuthResponse is returned by login.
type AuthResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	User      domain.Profile `json:"user"`
}

// ProfileResponse wraps a redacted account.
type ProfileResponse struct {
	User domain.Profile `json:"user"`
}
