package domain

import (
	"strings"
	"time"
)

// Account is the credential record owned by the store.
type Account struct {
	ID                string
	Name              string
	Email             string
	PasswordHash      string
	Role              Role
	Verified          bool
	VerificationToken *string
	ResetToken        *string
	ResetExpiresAt    *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Profile is the redacted view of an account returned to clients.
type Profile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
	Verified bool   `json:"verified"`
}

// Profile strips credential and token state.
func (a *Account) Profile() Profile {
	return Profile{
		ID:       a.ID,
		Name:     a.Name,
		Email:    a.Email,
		Role:     a.Role,
		Verified: a.Verified,
	}
}

// HasPendingReset reports whether an unexpired reset token is stored.
func (a *Account) HasPendingReset(now time.Time) bool {
	return a.ResetToken != nil && a.ResetExpiresAt != nil && now.Before(*a.ResetExpiresAt)
}

// NormalizeEmail folds an identity to its stored form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
