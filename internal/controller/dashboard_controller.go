package controller

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"gshvpn_backend/internal/middleware"
	"gshvpn_backend/internal/model"
	"gshvpn_backend/pkg/storage"
)

// GetDashboard returns the caller's entitlement, active keys and
// subscription history.
func (h *Handler) GetDashboard(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	ctx := c.UserContext()

	current, err := h.Lifecycle.CurrentEntitlement(ctx, claims.UserID)
	if err != nil {
		return h.errorResponse(c, err)
	}
	keys, err := h.Lifecycle.Keys(ctx, claims.UserID, true)
	if err != nil {
		return h.errorResponse(c, err)
	}
	history, err := h.Lifecycle.History(ctx, claims.UserID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	var daysRemaining *int
	if current != nil {
		daysRemaining = current.DaysRemaining(h.Now())
	}

	return c.JSON(fiber.Map{
		"subscription":   current,
		"has_access":     current != nil,
		"days_remaining": daysRemaining,
		"keys":           keys,
		"history":        history,
	})
}

func (h *Handler) ListMyKeys(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	onlyActive := c.QueryBool("active", false)

	keys, err := h.Lifecycle.Keys(c.UserContext(), claims.UserID, onlyActive)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"keys": keys})
}

// GetKeyConfig serves the client config of a key loaded by
// CheckKeyOwnership. ?format=text downloads it as a file.
func (h *Handler) GetKeyConfig(c *fiber.Ctx) error {
	key := middleware.Key(c)
	if !key.IsUsable(h.Now()) {
		return c.Status(fiber.StatusGone).JSON(fiber.Map{
			"error": "This key is no longer active",
		})
	}

	config := storage.RenderConfig(key, "")
	if c.Query("format") == "text" {
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="gshvpn-key-%d.txt"`, key.ID))
		c.Type("txt", "utf-8")
		return c.SendString(config)
	}

	resp := fiber.Map{
		"key":    key,
		"config": config,
	}
	if h.Archive != nil {
		url, err := h.Archive.URL(c.UserContext(), key)
		if err != nil {
			h.log.Warn().Err(err).Uint("key_id", key.ID).Msg("could not presign config url")
		} else {
			resp["download_url"] = url
		}
	}
	return c.JSON(resp)
}

func (h *Handler) ListMyNotifications(c *fiber.Ctx) error {
	claims := middleware.Claims(c)

	history, err := h.Ledger.History(c.UserContext(), claims.UserID)
	if err != nil {
		return h.errorResponse(c, err)
	}
	if history == nil {
		history = []model.EmailNotification{}
	}
	return c.JSON(fiber.Map{"notifications": history})
}
