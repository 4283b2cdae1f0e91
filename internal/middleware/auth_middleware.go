package middleware

import (
	"strings"

	"go-inventory-predict/pkg/jwt"

	"github.com/gofiber/fiber/v2"
)

// Locals keys set by RequireAuth.
const (
	LocalOperator = "operator"
	LocalScopes   = "operator_scopes"
)

// RequireAuth validates the bearer token and stores the operator in the
// request context.
func RequireAuth(secret []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return c.Status(401).JSON(fiber.Map{"error": "Missing authorization token"})
		}

		// Extract token from "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return c.Status(401).JSON(fiber.Map{"error": "Invalid authorization format. Use: Bearer <token>"})
		}

		claims, err := jwt.ValidateToken(secret, parts[1])
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": "Invalid or expired token"})
		}

		c.Locals(LocalOperator, claims.Operator)
		c.Locals(LocalScopes, claims.Scopes)

		return c.Next()
	}
}

// RequireScope checks that the authenticated operator holds scope.
func RequireScope(scope string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scopes, ok := c.Locals(LocalScopes).([]string)
		if !ok {
			return c.Status(403).JSON(fiber.Map{"error": "No scopes found"})
		}

		for _, s := range scopes {
			if s == scope {
				return c.Next()
			}
		}

		return c.Status(403).JSON(fiber.Map{
			"error": "Forbidden: requires '" + scope + "' scope",
		})
	}
}

// Operator returns the operator set by RequireAuth, or "anonymous".
func Operator(c *fiber.Ctx) string {
	if op, ok := c.Locals(LocalOperator).(string); ok && op != "" {
		return op
	}
	return "anonymous"
}
