package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mernacademy/student-auth/internal/api/dto"
	"github.com/mernacademy/student-auth/internal/service"
)

// AdminHandler serves administrator-only account views.
type AdminHandler struct {
	auth *service.AuthService
}

func NewAdminHandler(authService *service.AuthService) *AdminHandler {
	return &AdminHandler{auth: authService}
}

// GetAccount handles GET /api/admin/accounts/:id.
func (h *AdminHandler) GetAccount(c *fiber.Ctx) error {
	profile, err := h.auth.Profile(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.ProfileResponse{User: profile})
}
