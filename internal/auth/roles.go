package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mernacademy/student-auth/internal/domain"
	apperrors "github.com/mernacademy/student-auth/pkg/util/errorutil"
)

// RequireRole ensures the principal holds one of the allowed roles. It must
// run after AuthMiddleware.Handle.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

// RequireAuthenticated ensures a principal was attached.
func RequireAuthenticated() fiber.Handler {
	return RequireRole()
}
