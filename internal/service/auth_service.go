package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mernacademy/student-auth/internal/auth"
	"github.com/mernacademy/student-auth/internal/config"
	"github.com/mernacademy/student-auth/internal/domain"
	"github.com/mernacademy/student-auth/internal/events"
	"github.com/mernacademy/student-auth/internal/notify"
	"github.com/mernacademy/student-auth/internal/repository"
	apperrors "github.com/mernacademy/student-auth/pkg/util/errorutil"
)

// AuthService coordinates the credential lifecycle: registration, email
// verification, login and the password flows.
type AuthService struct {
	accounts   repository.AccountRepository
	hasher     auth.PasswordHasher
	tokens     *auth.TokenCodec
	notifier   notify.Notifier
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time

	clientURL        string
	sessionTTL       time.Duration
	verifyTTL        time.Duration
	resetTTL         time.Duration
	allowAdminSignup bool

	// dummyHash is compared against on unknown identities so login timing
	// does not reveal whether an account exists.
	dummyHash string
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	Accounts   repository.AccountRepository
	Hasher     auth.PasswordHasher
	Tokens     *auth.TokenCodec
	Notifier   notify.Notifier
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Clock      func() time.Time
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	User      domain.Profile `json:"user"`
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) (*AuthService, error) {
	if deps.Accounts == nil || deps.Hasher == nil || deps.Tokens == nil || deps.Notifier == nil {
		return nil, errors.New("auth service: accounts, hasher, tokens and notifier are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}

	dummy, err := deps.Hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("auth service: prepare dummy hash: %w", err)
	}

	return &AuthService{
		accounts:         deps.Accounts,
		hasher:           deps.Hasher,
		tokens:           deps.Tokens,
		notifier:         deps.Notifier,
		dispatcher:       deps.Dispatcher,
		logger:           logger,
		now:              now,
		clientURL:        cfg.App.ClientURL,
		sessionTTL:       cfg.Auth.SessionTTL(),
		verifyTTL:        cfg.Auth.VerifyEmailTTL(),
		resetTTL:         cfg.Auth.PasswordResetTTL(),
		allowAdminSignup: cfg.Auth.AllowAdminSignup,
		dummyHash:        dummy,
	}, nil
}

// Signup registers an unverified account and mails its verification link.
// The caller is not logged in. When delivery fails the account remains and
// DELIVERY_FAILED is returned.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (domain.Profile, error) {
	in.normalize()
	if err := in.Validate(); err != nil {
		return domain.Profile{}, validationError(err)
	}
	if in.Role == domain.RoleAdmin && !s.allowAdminSignup {
		return domain.Profile{}, apperrors.NewValidationError("invalid request", map[string]any{
			"role": "admin accounts cannot be self-registered",
		})
	}

	id := uuid.NewString()
	verifyToken, _, err := s.tokens.Sign(domain.TokenClaims{
		Subject: id,
		Purpose: domain.PurposeVerifyEmail,
	}, s.verifyTTL)
	if err != nil {
		return domain.Profile{}, apperrors.NewInternalError(err)
	}

	hash, err := s.hashPassword(in.Password, "password")
	if err != nil {
		return domain.Profile{}, err
	}

	account := &domain.Account{
		ID:                id,
		Name:              in.Name,
		Email:             in.Email,
		PasswordHash:      hash,
		Role:              in.Role,
		VerificationToken: &verifyToken,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return domain.Profile{}, apperrors.NewConflict("email already registered", map[string]any{"email": in.Email})
		}
		return domain.Profile{}, apperrors.NewInternalError(err)
	}

	payload := events.AccountRegisteredPayload{Name: account.Name, Role: account.Role}
	if account.Role == domain.RoleStudent {
		payload.Course = in.Course
		if payload.Course == "" {
			payload.Course = defaultCourse
		}
	}
	s.publish(ctx, events.EventAccountRegistered, account, payload)

	link := s.link("/verify", verifyToken)
	body := fmt.Sprintf(`<p>Welcome %s!</p><p>Please verify your email by clicking the link below:</p><p><a href="%s">Verify Email</a></p>`,
		html.EscapeString(account.Name), link)
	if err := s.notifier.Send(ctx, account.Email, "Verify your email", body); err != nil {
		s.logger.Warn("verification email not delivered", zap.String("account_id", account.ID), zap.Error(err))
		return account.Profile(), apperrors.NewDeliveryFailed("account created but the verification email could not be sent", err)
	}

	return account.Profile(), nil
}

// Login exchanges verified credentials for a session token. Unknown
// identities and wrong passwords fail identically.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	in.Email = domain.NormalizeEmail(in.Email)
	if err := in.Validate(); err != nil {
		return nil, validationError(err)
	}

	account, err := s.accounts.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.hasher.Verify(in.Password, s.dummyHash)
			return nil, apperrors.NewInvalidCredentials()
		}
		return nil, apperrors.NewInternalError(err)
	}

	if !s.hasher.Verify(in.Password, account.PasswordHash) {
		return nil, apperrors.NewInvalidCredentials()
	}
	if !account.Verified {
		return nil, apperrors.NewUnverified()
	}

	token, exp, err := s.tokens.Sign(domain.TokenClaims{
		Subject: account.ID,
		Role:    account.Role,
		Purpose: domain.PurposeSession,
	}, s.sessionTTL)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	return &LoginResult{Token: token, ExpiresAt: exp, User: account.Profile()}, nil
}

// VerifyEmail consumes a verification token. A token verifies at most once.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	if err := (tokenInput{Token: token}).Validate(); err != nil {
		return validationError(err)
	}

	claims, err := s.tokens.VerifyPurpose(token, domain.PurposeVerifyEmail)
	if err != nil {
		return apperrors.NewInvalidToken()
	}

	if err := s.accounts.MarkVerified(ctx, claims.Subject, token); err != nil {
		if errors.Is(err, repository.ErrPreconditionFailed) || errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewInvalidToken()
		}
		return apperrors.NewInternalError(err)
	}

	s.publish(ctx, events.EventEmailVerified, s.lookup(ctx, claims.Subject), nil)
	return nil
}

// RequestPasswordReset issues a reset link for a known identity, replacing
// any previous pending reset. Unknown identities succeed silently.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	in := emailInput{Email: domain.NormalizeEmail(email)}
	if err := in.Validate(); err != nil {
		return validationError(err)
	}

	account, err := s.accounts.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return apperrors.NewInternalError(err)
	}

	token, exp, err := s.tokens.Sign(domain.TokenClaims{
		Subject: account.ID,
		Purpose: domain.PurposeResetPassword,
	}, s.resetTTL)
	if err != nil {
		return apperrors.NewInternalError(err)
	}

	if err := s.accounts.SetResetToken(ctx, account.ID, token, exp); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return apperrors.NewInternalError(err)
	}

	link := s.link("/reset-password", token)
	body := fmt.Sprintf(`<p>Reset your password using this link (valid for %d minutes):</p><p><a href="%s">Reset Password</a></p>`,
		int(s.resetTTL/time.Minute), link)
	if err := s.notifier.Send(ctx, account.Email, "Password Reset", body); err != nil {
		s.logger.Warn("reset email not delivered", zap.String("account_id", account.ID), zap.Error(err))
		return apperrors.NewDeliveryFailed("the reset email could not be sent", err)
	}
	return nil
}

// ResetPassword consumes a reset token and replaces the password. The token
// must be the one currently stored for the account and unexpired.
func (s *AuthService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	if err := in.Validate(); err != nil {
		return validationError(err)
	}

	claims, err := s.tokens.VerifyPurpose(in.Token, domain.PurposeResetPassword)
	if err != nil {
		return apperrors.NewInvalidToken()
	}

	hash, err := s.hashPassword(in.Password, "password")
	if err != nil {
		return err
	}

	now := s.now()
	if err := s.accounts.ConsumeResetToken(ctx, claims.Subject, in.Token, hash, now); err != nil {
		switch {
		case errors.Is(err, repository.ErrPreconditionFailed):
			if cerr := s.accounts.ClearExpiredReset(ctx, claims.Subject, now); cerr != nil {
				s.logger.Warn("clear expired reset", zap.String("account_id", claims.Subject), zap.Error(cerr))
			}
			return apperrors.NewInvalidToken()
		case errors.Is(err, repository.ErrNotFound):
			return apperrors.NewInvalidToken()
		default:
			return apperrors.NewInternalError(err)
		}
	}

	s.publish(ctx, events.EventPasswordReset, s.lookup(ctx, claims.Subject), nil)
	return nil
}

// ChangePassword replaces the password of an authenticated account after
// checking the current one. A concurrent change makes this call fail.
func (s *AuthService) ChangePassword(ctx context.Context, accountID string, in ChangePasswordInput) error {
	if err := in.Validate(); err != nil {
		return validationError(err)
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("account", nil)
		}
		return apperrors.NewInternalError(err)
	}

	if !s.hasher.Verify(in.OldPassword, account.PasswordHash) {
		return apperrors.NewInvalidCredentials()
	}

	hash, err := s.hashPassword(in.NewPassword, "newPassword")
	if err != nil {
		return err
	}

	if err := s.accounts.UpdatePasswordHash(ctx, account.ID, account.PasswordHash, hash); err != nil {
		if errors.Is(err, repository.ErrPreconditionFailed) {
			return apperrors.NewInvalidCredentials()
		}
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("account", nil)
		}
		return apperrors.NewInternalError(err)
	}

	s.publish(ctx, events.EventPasswordChanged, account, nil)
	return nil
}

// Profile returns the redacted view of an account.
func (s *AuthService) Profile(ctx context.Context, accountID string) (domain.Profile, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Profile{}, apperrors.NewNotFound("account", map[string]any{"id": accountID})
		}
		return domain.Profile{}, apperrors.NewInternalError(err)
	}
	return account.Profile(), nil
}

// SeedAdmin creates a verified administrator unless the identity already
// exists. It reports whether an account was created.
func (s *AuthService) SeedAdmin(ctx context.Context, in SeedAdminInput) (domain.Profile, bool, error) {
	in.Email = domain.NormalizeEmail(in.Email)
	if err := in.Validate(); err != nil {
		return domain.Profile{}, false, validationError(err)
	}

	existing, err := s.accounts.GetByEmail(ctx, in.Email)
	switch {
	case err == nil:
		if existing.Role != domain.RoleAdmin {
			return domain.Profile{}, false, apperrors.NewConflict("email belongs to a non-admin account", map[string]any{"email": in.Email})
		}
		return existing.Profile(), false, nil
	case !errors.Is(err, repository.ErrNotFound):
		return domain.Profile{}, false, apperrors.NewInternalError(err)
	}

	hash, err := s.hashPassword(in.Password, "password")
	if err != nil {
		return domain.Profile{}, false, err
	}

	account := &domain.Account{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
		Verified:     true,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return domain.Profile{}, false, apperrors.NewConflict("email already registered", map[string]any{"email": in.Email})
		}
		return domain.Profile{}, false, apperrors.NewInternalError(err)
	}
	return account.Profile(), true, nil
}

func (s *AuthService) hashPassword(password, field string) (string, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return "", apperrors.NewValidationError("invalid request", map[string]any{field: err.Error()})
		}
		return "", apperrors.NewInternalError(err)
	}
	return hash, nil
}

func (s *AuthService) link(path, token string) string {
	return s.clientURL + path + "?token=" + url.QueryEscape(token)
}

// lookup loads an account for event enrichment; failures yield a bare
// account carrying only the ID.
func (s *AuthService) lookup(ctx context.Context, id string) *domain.Account {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return &domain.Account{ID: id}
	}
	return account
}

func (s *AuthService) publish(ctx context.Context, typ events.EventType, account *domain.Account, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      typ,
		AccountID: account.ID,
		Email:     account.Email,
		Timestamp: s.now().UTC(),
		Payload:   payload,
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handlers failed", zap.String("event_type", string(typ)), zap.Error(err))
	}
}
