package middleware

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"gshvpn_backend/internal/model"
	"gshvpn_backend/internal/service"
)

const keyLocal = "key"

type KeyLoader interface {
	Key(ctx context.Context, actor service.Actor, keyID uint) (*model.VPNKey, error)
}

// CheckKeyOwnership VPN anahtarının sahibi olup olmadığını kontrol eder.
// The loaded key is available through Key(c).
func CheckKeyOwnership(keys KeyLoader) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid key id",
			})
		}

		key, err := keys.Key(c.UserContext(), Actor(c), uint(id))
		switch {
		case errors.Is(err, service.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Key not found",
			})
		case errors.Is(err, service.ErrForbidden):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "You don't have permission to access this key",
			})
		case err != nil:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Could not load key, try again later",
			})
		}

		c.Locals(keyLocal, key)
		return c.Next()
	}
}

func Key(c *fiber.Ctx) *model.VPNKey {
	key, _ := c.Locals(keyLocal).(*model.VPNKey)
	return key
}
