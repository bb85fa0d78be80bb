package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"gshvpn_backend/internal/middleware"
	"gshvpn_backend/internal/model"
	"gshvpn_backend/internal/service"
)

type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Register(c *fiber.Ctx) error {
	input := new(RegisterInput)
	if err := c.BodyParser(input); err != nil {
		return invalidInput(c)
	}

	user, err := h.Accounts.Register(c.UserContext(), input.Email, input.Password)
	if errors.Is(err, service.ErrAlreadyExists) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Email already exists",
		})
	}
	if err != nil {
		return h.errorResponse(c, err)
	}

	token, err := h.Tokens.GenerateToken(user.ID, user.Email, user.IsAdmin)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not generate token",
		})
	}

	if err := h.Notifier.Welcome(c.UserContext(), user); err != nil {
		h.log.Warn().Err(err).Uint("user_id", user.ID).Msg("could not record welcome email")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Registration successful",
		"token":   token,
		"user":    user.GetPublicProfile(),
	})
}

// Login kullanıcı girişi
func (h *Handler) Login(c *fiber.Ctx) error {
	input := new(LoginInput)
	if err := c.BodyParser(input); err != nil {
		return invalidInput(c)
	}

	user, err := h.Accounts.Authenticate(c.UserContext(), input.Email, input.Password)
	if err != nil {
		return h.errorResponse(c, err)
	}

	token, err := h.Tokens.GenerateToken(user.ID, user.Email, user.IsAdmin)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not generate token",
		})
	}

	return c.JSON(fiber.Map{
		"token": token,
		"user":  user.GetPublicProfile(),
	})
}

// GetMe oturum açmış kullanıcının bilgilerini getirir
func (h *Handler) GetMe(c *fiber.Ctx) error {
	claims := middleware.Claims(c)

	user, err := h.Accounts.Get(c.UserContext(), claims.UserID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"user": user.GetPublicProfile(),
	})
}

func (h *Handler) currentUser(c *fiber.Ctx) (*model.User, error) {
	return h.Accounts.Get(c.UserContext(), middleware.Claims(c).UserID)
}
