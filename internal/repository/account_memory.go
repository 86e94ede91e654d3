package repository

import (
	"context"
	"sync"
	"time"

	"github.com/mernacademy/student-auth/internal/domain"
)

type memoryAccountRepository struct {
	mu      sync.Mutex
	byID    map[string]*domain.Account
	byEmail map[string]string
	now     func() time.Time
}

// NewMemoryAccountRepository returns a process-local store. Used for tests and
// for development runs without a database.
func NewMemoryAccountRepository() AccountRepository {
	return &memoryAccountRepository{
		byID:    make(map[string]*domain.Account),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (r *memoryAccountRepository) Create(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := domain.NormalizeEmail(account.Email)
	if _, exists := r.byEmail[email]; exists {
		return ErrDuplicate
	}
	if _, exists := r.byID[account.ID]; exists {
		return ErrDuplicate
	}

	now := r.now().UTC()
	account.Email = email
	account.CreatedAt = now
	account.UpdatedAt = now

	r.byID[account.ID] = cloneAccount(account)
	r.byEmail[email] = account.ID
	return nil
}

func (r *memoryAccountRepository) GetByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAccount(acc), nil
}

func (r *memoryAccountRepository) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAccount(r.byID[id]), nil
}

func (r *memoryAccountRepository) MarkVerified(_ context.Context, id, token string) error {
	return r.update(id, func(acc *domain.Account) bool {
		if acc.VerificationToken == nil || *acc.VerificationToken != token {
			return false
		}
		acc.Verified = true
		acc.VerificationToken = nil
		return true
	})
}

func (r *memoryAccountRepository) SetResetToken(_ context.Context, id, token string, expiresAt time.Time) error {
	return r.update(id, func(acc *domain.Account) bool {
		exp := expiresAt
		acc.ResetToken = &token
		acc.ResetExpiresAt = &exp
		return true
	})
}

func (r *memoryAccountRepository) ConsumeResetToken(_ context.Context, id, token, passwordHash string, now time.Time) error {
	return r.update(id, func(acc *domain.Account) bool {
		if acc.ResetToken == nil || *acc.ResetToken != token || !acc.HasPendingReset(now) {
			return false
		}
		acc.PasswordHash = passwordHash
		acc.ResetToken = nil
		acc.ResetExpiresAt = nil
		return true
	})
}

func (r *memoryAccountRepository) ClearExpiredReset(_ context.Context, id string, now time.Time) error {
	err := r.update(id, func(acc *domain.Account) bool {
		if acc.ResetExpiresAt == nil || now.Before(*acc.ResetExpiresAt) {
			return false
		}
		acc.ResetToken = nil
		acc.ResetExpiresAt = nil
		return true
	})
	if err == ErrPreconditionFailed {
		return nil
	}
	return err
}

func (r *memoryAccountRepository) UpdatePasswordHash(_ context.Context, id, currentHash, newHash string) error {
	return r.update(id, func(acc *domain.Account) bool {
		if acc.PasswordHash != currentHash {
			return false
		}
		acc.PasswordHash = newHash
		return true
	})
}

// update applies mutate under the lock; mutate returns false when its
// precondition does not hold, in which case nothing is written.
func (r *memoryAccountRepository) update(id string, mutate func(*domain.Account) bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	next := cloneAccount(acc)
	if !mutate(next) {
		return ErrPreconditionFailed
	}
	next.UpdatedAt = r.now().UTC()
	r.byID[id] = next
	return nil
}

func cloneAccount(acc *domain.Account) *domain.Account {
	out := *acc
	if acc.VerificationToken != nil {
		v := *acc.VerificationToken
		out.VerificationToken = &v
	}
	if acc.ResetToken != nil {
		v := *acc.ResetToken
		out.ResetToken = &v
	}
	if acc.ResetExpiresAt != nil {
		v := *acc.ResetExpiresAt
		out.ResetExpiresAt = &v
	}
	return &out
}
