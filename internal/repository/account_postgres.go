package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mernacademy/student-auth/internal/domain"
)

const (
	uniqueViolation           = "23505"
	invalidTextRepresentation = "22P02"
)

// DBTX is the subset of database/sql used by the Postgres repository.
// Both *sql.DB and *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type postgresAccountRepository struct {
	db DBTX
}

// NewPostgresAccountRepository returns a Postgres-backed implementation.
func NewPostgresAccountRepository(db DBTX) AccountRepository {
	return &postgresAccountRepository{db: db}
}

const accountColumns = `id, name, email, password_hash, role, verified,
        verification_token, reset_token, reset_expires_at, created_at, updated_at`

func (r *postgresAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	const query = `
        INSERT INTO accounts (id, name, email, password_hash, role, verified, verification_token)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING created_at, updated_at`

	account.Email = domain.NormalizeEmail(account.Email)
	err := r.db.QueryRowContext(ctx, query,
		account.ID,
		account.Name,
		account.Email,
		account.PasswordHash,
		account.Role,
		account.Verified,
		account.VerificationToken,
	).Scan(&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if hasPgCode(err, uniqueViolation) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *postgresAccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	// ids are UUIDs; anything else cannot name a row.
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *postgresAccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE lower(email) = $1`
	return r.getOne(ctx, query, domain.NormalizeEmail(email))
}

func (r *postgresAccountRepository) MarkVerified(ctx context.Context, id, token string) error {
	const query = `
        UPDATE accounts SET verified = TRUE, verification_token = NULL, updated_at = NOW()
        WHERE id = $1 AND verification_token = $2`
	return r.execConditional(ctx, "mark verified", ErrPreconditionFailed, query, id, token)
}

func (r *postgresAccountRepository) SetResetToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	const query = `
        UPDATE accounts SET reset_token = $2, reset_expires_at = $3, updated_at = NOW()
        WHERE id = $1`
	return r.execConditional(ctx, "set reset token", ErrNotFound, query, id, token, expiresAt.UTC())
}

func (r *postgresAccountRepository) ConsumeResetToken(ctx context.Context, id, token, passwordHash string, now time.Time) error {
	const query = `
        UPDATE accounts SET password_hash = $3, reset_token = NULL, reset_expires_at = NULL, updated_at = NOW()
        WHERE id = $1 AND reset_token = $2 AND reset_expires_at > $4`
	return r.execConditional(ctx, "consume reset token", ErrPreconditionFailed, query, id, token, passwordHash, now.UTC())
}

func (r *postgresAccountRepository) ClearExpiredReset(ctx context.Context, id string, now time.Time) error {
	const query = `
        UPDATE accounts SET reset_token = NULL, reset_expires_at = NULL, updated_at = NOW()
        WHERE id = $1 AND reset_expires_at <= $2`
	if _, err := r.db.ExecContext(ctx, query, id, now.UTC()); err != nil {
		return fmt.Errorf("clear expired reset: %w", err)
	}
	return nil
}

func (r *postgresAccountRepository) UpdatePasswordHash(ctx context.Context, id, currentHash, newHash string) error {
	const query = `
        UPDATE accounts SET password_hash = $3, updated_at = NOW()
        WHERE id = $1 AND password_hash = $2`
	return r.execConditional(ctx, "update password", ErrPreconditionFailed, query, id, currentHash, newHash)
}

func (r *postgresAccountRepository) getOne(ctx context.Context, query string, arg any) (*domain.Account, error) {
	var acc domain.Account
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&acc.ID,
		&acc.Name,
		&acc.Email,
		&acc.PasswordHash,
		&acc.Role,
		&acc.Verified,
		&acc.VerificationToken,
		&acc.ResetToken,
		&acc.ResetExpiresAt,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || hasPgCode(err, invalidTextRepresentation) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select account: %w", err)
	}
	return &acc, nil
}

func (r *postgresAccountRepository) execConditional(ctx context.Context, op string, noMatch error, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if hasPgCode(err, invalidTextRepresentation) {
			return noMatch
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return noMatch
	}
	return nil
}

func hasPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
