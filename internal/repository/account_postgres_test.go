package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mernacademy/student-auth/internal/domain"
)

func newPostgresRepoWithMock(t *testing.T) (AccountRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewPostgresAccountRepository(db), mock
}

var selectColumns = []string{
	"id", "name", "email", "password_hash", "role", "verified",
	"verification_token", "reset_token", "reset_expires_at", "created_at", "updated_at",
}

func TestPostgresCreate_Success(t *testing.T) {
	repo, mock := newPostgresRepoWithMock(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	token := "verify-token"

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO accounts")).
		WithArgs("acc-1", "Ann", "ann@x.com", "hash", "student", false, "verify-token").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	acc := &domain.Account{
		ID:                "acc-1",
		Name:              "Ann",
		Email:             "Ann@X.com",
		PasswordHash:      "hash",
		Role:              domain.RoleStudent,
		VerificationToken: &token,
	}
	require.NoError(t, repo.Create(context.Background(), acc))
	assert.Equal(t, "ann@x.com", acc.Email)
	assert.Equal(t, now, acc.CreatedAt)
}

func TestPostgresCreate_UniqueViolation(t *testing.T) {
	repo, mock := newPostgresRepoWithMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO accounts")).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	err := repo.Create(context.Background(), &domain.Account{ID: "acc-1", Email: "ann@x.com", Role: domain.RoleStudent})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestPostgresCreate_DBError(t *testing.T) {
	repo, mock := newPostgresRepoWithMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO accounts")).
		WillReturnError(errors.New("db down"))

	err := repo.Create(context.Background(), &domain.Account{ID: "acc-1", Email: "ann@x.com"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicate)
	assert.Contains(t, err.Error(), "db down")
}

func TestPostgresGetByEmail_Found(t *testing.T) {
	repo, mock := newPostgresRepoWithMock(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	exp := now.Add(10 * time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE lower(email) = $1")).
		WithArgs("ann@x.com").
		WillReturnRows(sqlmock.NewRows(selectColumns).
			AddRow("acc-1", "Ann", "ann@x.com", "hash", "student", true, nil, "reset", exp, now, now))

	acc, err := repo.GetByEmail(context.Background(), " ANN@x.com")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", acc.ID)
	assert.Equal(t, domain.RoleStudent, acc.Role)
	assert.True(t, acc.Verified)
	assert.Nil(t, acc.VerificationToken)
	require.NotNil(t, acc.ResetToken)
	assert.Equal(t, "reset", *acc.ResetToken)
	require.NotNil(t, acc.ResetExpiresAt)
	assert.True(t, acc.ResetExpiresAt.Equal(exp))
}

func TestPostgresGetByID_NotFound(t *testing.T) {
	repo, mock := newPostgresRepoWithMock(t)

	id := "0b7d3c8e-5f7a-4c1e-9d2b-6a4f1e2c3d4b"

	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE id = $1")).
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresGetByID_MalformedIDSkipsQuery(t *testing.T) {
	repo, _ := newPostgresRepoWithMock(t)

	_, err := repo.GetByID(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresInvalidTextRepresentationIsNoMatch(t *testing.T) {
	repo, mock := newPostgresRepoWithMock(t)
	badUUID := &pgconn.PgError{Code: "22P02", Message: "invalid input syntax for type uuid"}

	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE lower(email) = $1")).
		WithArgs("ann@x.com").
		WillReturnError(badUUID)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts SET verified = TRUE")).
		WithArgs("abc", "tok").
		WillReturnError(badUUID)

	_, err := repo.GetByEmail(context.Background(), "ann@x.com")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.MarkVerified(context.Background(), "abc", "tok"), ErrPreconditionFailed)
}

func TestPostgresMarkVerified(t *testing.T) {
	repo, mock := newPostgresRepoWithMock(t)
	q := regexp.QuoteMeta("UPDATE accounts SET verified = TRUE, verification_token = NULL")

	mock.ExpectExec(q).WithArgs("acc-1", "tok").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("acc-1", "tok").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkVerified(context.Background(), "acc-1", "tok"))
	assert.ErrorIs(t, repo.MarkVerified(context.Background(), "acc-1", "tok"), ErrPreconditionFailed)
}

func TestPostgresSetResetToken_NotFound(t *testing.T) {
	repo, mock := newPostgresRepoWithMock(t)
	exp := time.Date(2026, 1, 1, 0, 10, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts SET reset_token = $2, reset_expires_at = $3")).
		WithArgs("missing", "tok", exp).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.SetResetToken(context.Background(), "missing", "tok", exp), ErrNotFound)
}

func TestPostgresConsumeResetToken(t *testing.T) {
	repo, mock := newPostgresRepoWithMock(t)
	now := time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC)
	q := regexp.QuoteMeta("WHERE id = $1 AND reset_token = $2 AND reset_expires_at > $4")

	mock.ExpectExec(q).WithArgs("acc-1", "tok", "new-hash", now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("acc-1", "tok", "new-hash", now).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.ConsumeResetToken(context.Background(), "acc-1", "tok", "new-hash", now))
	assert.ErrorIs(t, repo.ConsumeResetToken(context.Background(), "acc-1", "tok", "new-hash", now), ErrPreconditionFailed)
}

func TestPostgresClearExpiredReset_NoMatchIsFine(t *testing.T) {
	repo, mock := newPostgresRepoWithMock(t)
	now := time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND reset_expires_at <= $2")).
		WithArgs("acc-1", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, repo.ClearExpiredReset(context.Background(), "acc-1", now))
}

func TestPostgresUpdatePasswordHash(t *testing.T) {
	repo, mock := newPostgresRepoWithMock(t)
	q := regexp.QuoteMeta("WHERE id = $1 AND password_hash = $2")

	mock.ExpectExec(q).WithArgs("acc-1", "old", "new").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("acc-1", "old", "new").WillReturnError(errors.New("conn reset"))

	require.NoError(t, repo.UpdatePasswordHash(context.Background(), "acc-1", "old", "new"))
	err := repo.UpdatePasswordHash(context.Background(), "acc-1", "old", "new")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update password")
}
