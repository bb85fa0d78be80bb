package controller

import (
	"github.com/gofiber/fiber/v2"

	"gshvpn_backend/internal/middleware"
	"gshvpn_backend/internal/model"
	"gshvpn_backend/internal/service"
)

type ServerActiveInput struct {
	Active *bool `json:"active"`
}

// GetAdminStats genel dashboard istatistiklerini getirir
func (h *Handler) GetAdminStats(c *fiber.Ctx) error {
	stats, err := h.Stats.Dashboard(c.UserContext())
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(stats)
}

func (h *Handler) ListUsers(c *fiber.Ctx) error {
	limit, offset := page(c)
	users, err := h.Accounts.List(c.UserContext(), limit, offset)
	if err != nil {
		return h.errorResponse(c, err)
	}

	profiles := make([]map[string]interface{}, 0, len(users))
	for i := range users {
		profiles = append(profiles, users[i].GetPublicProfile())
	}
	return c.JSON(fiber.Map{"users": profiles, "limit": limit, "offset": offset})
}

func (h *Handler) ListSubscriptions(c *fiber.Ctx) error {
	limit, offset := page(c)
	subs, err := h.Lifecycle.All(c.UserContext(), limit, offset)
	if err != nil {
		return h.errorResponse(c, err)
	}
	if subs == nil {
		subs = []model.Subscription{}
	}
	return c.JSON(fiber.Map{"subscriptions": subs, "limit": limit, "offset": offset})
}

func (h *Handler) ListServers(c *fiber.Ctx) error {
	servers, err := h.Servers.List(c.UserContext())
	if err != nil {
		return h.errorResponse(c, err)
	}

	out := make([]fiber.Map, 0, len(servers))
	for i := range servers {
		out = append(out, fiber.Map{
			"server":          servers[i],
			"load_percentage": servers[i].LoadPercentage(),
			"available":       servers[i].IsAvailable(),
		})
	}
	return c.JSON(fiber.Map{"servers": out})
}

func (h *Handler) ListEmails(c *fiber.Ctx) error {
	limit, offset := page(c)
	emails, err := h.Ledger.Recent(c.UserContext(), limit, offset)
	if err != nil {
		return h.errorResponse(c, err)
	}
	if emails == nil {
		emails = []model.EmailNotification{}
	}
	return c.JSON(fiber.Map{"emails": emails, "limit": limit, "offset": offset})
}

func (h *Handler) AddServer(c *fiber.Ctx) error {
	input := new(service.NewServer)
	if err := c.BodyParser(input); err != nil {
		return invalidInput(c)
	}

	srv, err := h.Servers.Add(c.UserContext(), *input)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(srv)
}

func (h *Handler) SetServerActive(c *fiber.Ctx) error {
	id, ok := idParam(c)
	if !ok {
		return invalidInput(c)
	}
	input := new(ServerActiveInput)
	if err := c.BodyParser(input); err != nil || input.Active == nil {
		return invalidInput(c)
	}

	srv, err := h.Servers.SetActive(c.UserContext(), id, *input.Active)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(srv)
}

// DeleteUser removes the account and everything it owns, then cleans up
// the released keys outside the database.
func (h *Handler) DeleteUser(c *fiber.Ctx) error {
	id, ok := idParam(c)
	if !ok {
		return invalidInput(c)
	}
	if id == middleware.Claims(c).UserID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "You cannot delete your own account",
		})
	}
	ctx := c.UserContext()

	released, err := h.Lifecycle.DeleteUser(ctx, id)
	if err != nil {
		return h.errorResponse(c, err)
	}
	h.deprovision(ctx, released)

	return c.JSON(fiber.Map{
		"message":       "User deleted",
		"released_keys": len(released),
	})
}
