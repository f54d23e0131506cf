package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/unicore-dev/unicore-api/internal/models"
	"github.com/unicore-dev/unicore-api/internal/utils"
)

// Auth role selectors used by the WithAuth helper. AuthRoleReviewer accepts
// both professors and heads of department.
const (
	AuthRoleAny      = "any"
	AuthRoleStudent  = models.RoleStudent
	AuthRoleReviewer = "reviewer"
	AuthRoleHOD      = models.RoleHOD
)

// AuthOptions configures the WithAuth helper.
type AuthOptions struct {
	Role        string
	RequireUser bool
}

// WithAuth wraps a handler with basic authentication/authorization guards.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	role := strings.ToLower(strings.TrimSpace(opts.Role))
	if role == "" {
		role = AuthRoleAny
	}

	requireUser := opts.RequireUser
	if !requireUser && role != AuthRoleAny {
		requireUser = true
	}

	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id")
		if requireUser && userID == nil {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}

		if role == AuthRoleAny {
			if !requireUser || userID != nil {
				return handler(c)
			}
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}

		currentRole := normalizeRoleValue(c.Locals("user_role"))
		switch role {
		case AuthRoleReviewer:
			if currentRole != models.RoleProfessor && currentRole != models.RoleHOD {
				return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
			}
		default:
			if currentRole != role {
				return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
			}
		}

		return handler(c)
	}
}
