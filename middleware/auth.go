// middleware/auth.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// UserContextMiddleware extracts user identity and roles forwarded by the
// Gateway. Identity is an opaque external id; the admin capability is a role
// claim on the principal, never a hardcoded user list.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-ID")
		userName := c.Get("X-User-Name")
		userEmail := c.Get("X-User-Email")
		rolesStr := c.Get("X-User-Roles")

		var roles []string
		for _, r := range strings.Split(rolesStr, ",") {
			r = strings.TrimSpace(r)
			if r != "" {
				roles = append(roles, r)
			}
		}

		// Attach to ctx for handlers
		c.Locals("user_id", userID)
		c.Locals("user_name", userName)
		c.Locals("user_email", userEmail)
		c.Locals("user_roles", roles)

		return c.Next()
	}
}

// RequireUser rejects requests with no authenticated user context.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		if userID == "" {
			log.Printf("🚫 [USER_CTX] X-User-ID required but missing on secured route: %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "authentication required",
			})
		}
		return c.Next()
	}
}

// RequireRole rejects requests whose principal lacks the given role claim.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		roles, _ := c.Locals("user_roles").([]string)
		for _, r := range roles {
			if strings.EqualFold(r, role) {
				return c.Next()
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "insufficient permissions",
		})
	}
}

// UserID returns the external user id from the request context ("" if anonymous).
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}

// UserName returns the display name forwarded by the gateway ("" if absent).
func UserName(c *fiber.Ctx) string {
	name, _ := c.Locals("user_name").(string)
	return name
}

// UserEmail returns the email forwarded by the gateway ("" if absent).
func UserEmail(c *fiber.Ctx) string {
	email, _ := c.Locals("user_email").(string)
	return email
}
