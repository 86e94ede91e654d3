package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/mernacademy/student-auth/internal/api/dto"
	"github.com/mernacademy/student-auth/internal/auth"
	"github.com/mernacademy/student-auth/internal/domain"
	"github.com/mernacademy/student-auth/internal/service"
	apperrors "github.com/mernacademy/student-auth/pkg/util/errorutil"
)

// AuthHandler exposes the credential lifecycle endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Signup handles POST /api/auth/signup.
func (h *AuthHandler) Signup(c *fiber.Ctx) error {
	var req dto.SignupRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}

	_, err := h.auth.Signup(c.UserContext(), service.SignupInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     domain.Role(req.Role),
		Course:   req.Course,
	})
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(dto.MessageResponse{
		Message: "Signup successful. Please verify your email.",
	})
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}

	res, err := h.auth.Login(c.UserContext(), service.LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		return err
	}

	return c.JSON(dto.AuthResponse{Token: res.Token, ExpiresAt: res.ExpiresAt, User: res.User})
}

// VerifyEmail handles POST /api/auth/verify-email.
func (h *AuthHandler) VerifyEmail(c *fiber.Ctx) error {
	var req dto.TokenRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}
	if err := h.auth.VerifyEmail(c.UserContext(), req.Token); err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Message: "Email verified successfully"})
}

// ForgotPassword handles POST /api/auth/forgot-password. The response does
// not reveal whether the identity exists.
func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req dto.ForgotPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}
	if err := h.auth.RequestPasswordReset(c.UserContext(), req.Email); err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Message: "Reset link sent if email exists"})
}

// ResetPassword handles POST /api/auth/reset-password.
func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req dto.ResetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}
	err := h.auth.ResetPassword(c.UserContext(), service.ResetPasswordInput{Token: req.Token, Password: req.Password})
	if err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Message: "Password reset successful"})
}

// ChangePassword handles POST /api/auth/change-password.
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}

	err := h.auth.ChangePassword(c.UserContext(), principal.AccountID, service.ChangePasswordInput{
		OldPassword: req.OldPassword,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Message: "Password changed successfully"})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	profile, err := h.auth.Profile(c.UserContext(), principal.AccountID)
	if err != nil {
		return err
	}
	return c.JSON(dto.ProfileResponse{User: profile})
}

func invalidPayload() error {
	return apperrors.NewValidationError("invalid payload", nil)
}
