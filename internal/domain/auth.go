package domain

import "time"

// Role is the access level assigned to an account at creation.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStudent Role = "student"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleStudent
}

// TokenPurpose distinguishes session tokens from single-use tokens so one
// kind cannot be replayed as another.
type TokenPurpose string

const (
	PurposeSession       TokenPurpose = "session"
	PurposeVerifyEmail   TokenPurpose = "verify-email"
	PurposeResetPassword TokenPurpose = "reset-password"
)

// TokenClaims is the claim set carried by every bearer token.
type TokenClaims struct {
	Subject   string
	Role      Role
	Purpose   TokenPurpose
	IssuedAt  time.Time
	ExpiresAt time.Time
}
