package handler

import (
	"time"

	"go-inventory-predict/pkg/jwt"

	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	secret []byte
}

func NewAuthHandler(secret []byte) *AuthHandler {
	return &AuthHandler{secret: secret}
}

// ValidateTokenRequest represents the validate token request body
type ValidateTokenRequest struct {
	Token string `json:"token"`
}

type TokenValidationResponse struct {
	Valid     bool      `json:"valid"`
	Operator  string    `json:"operator"`
	Scopes    []string  `json:"scopes"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ValidateToken reports who an operator token belongs to.
// POST /api/v1/auth/validate-token
func (h *AuthHandler) ValidateToken(c *fiber.Ctx) error {
	var req ValidateTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}

	if req.Token == "" {
		return c.Status(400).JSON(fiber.Map{"error": "Token is required"})
	}

	claims, err := jwt.ValidateToken(h.secret, req.Token)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"error": err.Error()})
	}

	resp := TokenValidationResponse{Valid: true, Operator: claims.Operator, Scopes: claims.Scopes}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time
	}
	return c.JSON(resp)
}
