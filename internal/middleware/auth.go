package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"gshvpn_backend/internal/model"
	"gshvpn_backend/internal/service"
	"gshvpn_backend/pkg/utils/jwt"
)

const userLocal = "user"

// AuthMiddleware verifies the bearer token and stores its claims under
// c.Locals("user").
func AuthMiddleware(tokens *jwt.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authorization header",
			})
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization header format",
			})
		}

		claims, err := tokens.ValidateToken(strings.TrimSpace(token))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals(userLocal, claims)
		return c.Next()
	}
}

type UserLoader interface {
	Get(ctx context.Context, id uint) (*model.User, error)
}

// AdminOnly must run after AuthMiddleware. The token's admin claim is
// checked against the stored account so that a demoted or disabled admin
// loses access before the token expires.
func AdminOnly(users UserLoader) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := Claims(c)
		if claims == nil || !claims.IsAdmin {
			return adminRequired(c)
		}
		user, err := users.Get(c.UserContext(), claims.UserID)
		if err != nil || !user.IsActive || !user.IsAdmin {
			return adminRequired(c)
		}
		return c.Next()
	}
}

func adminRequired(c *fiber.Ctx) error {
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"error": "Admin access required",
	})
}

// Claims returns the authenticated caller or nil.
func Claims(c *fiber.Ctx) *jwt.Claims {
	claims, _ := c.Locals(userLocal).(*jwt.Claims)
	return claims
}

func Actor(c *fiber.Ctx) service.Actor {
	claims := Claims(c)
	if claims == nil {
		return service.Actor{}
	}
	return service.Actor{UserID: claims.UserID, IsAdmin: claims.IsAdmin}
}
