package service

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/mernacademy/student-auth/internal/domain"
	apperrors "github.com/mernacademy/student-auth/pkg/util/errorutil"
)

const (
	minPasswordLen = 6
	// bcrypt ignores input past 72 bytes.
	maxPasswordLen = 72
	defaultCourse  = "MERN Bootcamp"
)

var passwordRules = []validation.Rule{
	validation.Required,
	validation.Length(minPasswordLen, maxPasswordLen),
	validation.By(maxBytes(maxPasswordLen)),
}

// SignupInput is the registration request. Role defaults to student.
// Role admin passes validation here but Signup rejects it with
// VALIDATION_FAILED (400) unless AUTH_ALLOW_ADMIN_SIGNUP is set; admins are
// normally created with cmd/seed-admin.
type SignupInput struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
	Course   string      `json:"course"`
}

func (in *SignupInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = domain.NormalizeEmail(in.Email)
	in.Course = strings.TrimSpace(in.Course)
	if in.Role == "" {
		in.Role = domain.RoleStudent
	}
}

// Validate implements validation.Validatable.
func (in SignupInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(2, 100)),
		validation.Field(&in.Email, validation.Required, is.Email),
		validation.Field(&in.Password, passwordRules...),
		validation.Field(&in.Role, validation.In(domain.RoleAdmin, domain.RoleStudent)),
		validation.Field(&in.Course, validation.Length(0, 200)),
	)
}

// LoginInput is the credential presentation.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in LoginInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required, is.Email),
		validation.Field(&in.Password, validation.Required),
	)
}

// ResetPasswordInput completes a password reset.
type ResetPasswordInput struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (in ResetPasswordInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Token, validation.Required),
		validation.Field(&in.Password, passwordRules...),
	)
}

// ChangePasswordInput replaces the password of an authenticated caller.
type ChangePasswordInput struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (in ChangePasswordInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.OldPassword, validation.Required),
		validation.Field(&in.NewPassword, passwordRules...),
	)
}

// SeedAdminInput bootstraps an administrator.
type SeedAdminInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in SeedAdminInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(2, 100)),
		validation.Field(&in.Email, validation.Required, is.Email),
		validation.Field(&in.Password, passwordRules...),
	)
}

type emailInput struct {
	Email string `json:"email"`
}

func (in emailInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required, is.Email),
	)
}

type tokenInput struct {
	Token string `json:"token"`
}

func (in tokenInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Token, validation.Required),
	)
}

func maxBytes(n int) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if len(s) > n {
			return errors.New("must be at most 72 bytes")
		}
		return nil
	}
}

// validationError converts ozzo field errors into a VALIDATION_FAILED error
// whose details map each field to its message.
func validationError(err error) error {
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		details := make(map[string]any, len(fieldErrs))
		for field, ferr := range fieldErrs {
			details[field] = ferr.Error()
		}
		return apperrors.NewValidationError("invalid request", details)
	}
	return apperrors.NewValidationError(err.Error(), nil)
}
