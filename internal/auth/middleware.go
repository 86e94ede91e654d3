package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/mernacademy/student-auth/internal/domain"
	apperrors "github.com/mernacademy/student-auth/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	AccountID string
	Role      domain.Role
}

// AuthMiddleware validates session bearer tokens.
type AuthMiddleware struct {
	tokens *TokenCodec
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenCodec) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	raw, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
	if !ok {
		return apperrors.NewUnauthorized("missing or invalid authorization header")
	}

	claims, err := m.tokens.VerifyPurpose(raw, domain.PurposeSession)
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}
	if !claims.Role.Valid() {
		return apperrors.NewUnauthorized("invalid token")
	}

	c.Locals(principalKey, &Principal{AccountID: claims.Subject, Role: claims.Role})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated caller.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
