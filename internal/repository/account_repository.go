package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mernacademy/student-auth/internal/domain"
)

var (
	// ErrNotFound is returned when no account matches the lookup.
	ErrNotFound = errors.New("account not found")
	// ErrDuplicate is returned when the identity is already registered.
	ErrDuplicate = errors.New("account already exists")
	// ErrPreconditionFailed is returned when a conditional update matched no record.
	ErrPreconditionFailed = errors.New("account precondition failed")
)

// AccountRepository defines persistence access for credential records.
// Every mutating method is a single atomic conditional update.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)

	// MarkVerified sets verified and clears the verification token when the
	// stored token equals token.
	MarkVerified(ctx context.Context, id, token string) error

	// SetResetToken stores a reset token and its expiry, replacing any previous one.
	SetResetToken(ctx context.Context, id, token string, expiresAt time.Time) error

	// ConsumeResetToken replaces the password hash and clears both reset fields
	// when the stored token equals token and has not expired at now.
	ConsumeResetToken(ctx context.Context, id, token, passwordHash string, now time.Time) error

	// ClearExpiredReset clears reset fields whose expiry is at or before now.
	ClearExpiredReset(ctx context.Context, id string, now time.Time) error

	// UpdatePasswordHash swaps the hash when the stored hash equals currentHash.
	UpdatePasswordHash(ctx context.Context, id, currentHash, newHash string) error
}
