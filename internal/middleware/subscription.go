package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"gshvpn_backend/internal/model"
)

const entitlementLocal = "entitlement"

type EntitlementSource interface {
	CurrentEntitlement(ctx context.Context, userID uint) (*model.Subscription, error)
}

// RequireEntitlement rejects callers without a currently entitling
// subscription. Admins pass through.
func RequireEntitlement(source EntitlementSource) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := Claims(c)
		if claims == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}
		if claims.IsAdmin {
			return c.Next()
		}

		sub, err := source.CurrentEntitlement(c.UserContext(), claims.UserID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Could not check subscription, try again later",
			})
		}
		// Aktif abonelik kontrolü
		if sub == nil {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "No active subscription found",
			})
		}

		c.Locals(entitlementLocal, sub)
		return c.Next()
	}
}

// Entitlement returns the subscription stored by RequireEntitlement.
func Entitlement(c *fiber.Ctx) *model.Subscription {
	sub, _ := c.Locals(entitlementLocal).(*model.Subscription)
	return sub
}
