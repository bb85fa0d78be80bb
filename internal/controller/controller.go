package controller

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"gshvpn_backend/internal/model"
	"gshvpn_backend/internal/service"
	"gshvpn_backend/pkg/outline"
	"gshvpn_backend/pkg/payment"
	"gshvpn_backend/pkg/utils/jwt"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type Notifier interface {
	Welcome(ctx context.Context, user *model.User) error
	PaymentSuccess(ctx context.Context, user *model.User, sub *model.Subscription, key *model.VPNKey) error
	Revoked(ctx context.Context, user *model.User, sub *model.Subscription) error
}

// Panel mirrors keys onto the VPN server's management API.
type Panel interface {
	Attach(ctx context.Context, k *model.VPNKey) (*outline.AccessKey, error)
	DetachAll(ctx context.Context, keys []model.VPNKey) error
}

// Archive stores downloadable client configs.
type Archive interface {
	Put(ctx context.Context, k *model.VPNKey, accessURL string) (string, error)
	URL(ctx context.Context, k *model.VPNKey) (string, error)
	Delete(ctx context.Context, k *model.VPNKey) error
}

// Deps wires the handlers. Panel and Archive are optional.
type Deps struct {
	Log        zerolog.Logger
	Tokens     *jwt.Manager
	Accounts   *service.Accounts
	Lifecycle  *service.Lifecycle
	Ledger     *service.Ledger
	Servers    *service.Servers
	Stats      *service.Stats
	Notifier   Notifier
	Payments   payment.Gateway
	Panel      Panel
	Archive    Archive
	SuccessURL string
	CancelURL  string
	Now        func() time.Time
}

type Handler struct {
	Deps
	log zerolog.Logger
}

func New(d Deps) *Handler {
	if d.Payments == nil {
		d.Payments = payment.Disabled{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Handler{Deps: d, log: d.Log.With().Str("component", "http").Logger()}
}

// errorResponse maps service errors onto HTTP statuses.
func (h *Handler) errorResponse(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	msg := "Something went wrong, try again later"

	switch {
	case errors.Is(err, service.ErrInvalidPlan):
		status, msg = fiber.StatusBadRequest, "Unknown plan"
	case errors.Is(err, service.ErrValidation):
		status, msg = fiber.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrInvalidCredentials):
		status, msg = fiber.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, service.ErrForbidden):
		status, msg = fiber.StatusForbidden, "You don't have permission to do this"
	case errors.Is(err, service.ErrNotEntitled):
		status, msg = fiber.StatusForbidden, "Subscription is no longer active"
	case errors.Is(err, service.ErrNotFound):
		status, msg = fiber.StatusNotFound, "Not found"
	case errors.Is(err, service.ErrAlreadyExists):
		status, msg = fiber.StatusConflict, "Already exists"
	case errors.Is(err, service.ErrNoCapacity):
		status, msg = fiber.StatusServiceUnavailable, "All VPN servers are full right now. Please try again later or contact support."
	case errors.Is(err, payment.ErrDisabled):
		status, msg = fiber.StatusServiceUnavailable, "Payments are not available right now"
	case errors.Is(err, service.ErrPersistence):
		msg = "Could not save your changes, try again later"
	}

	if status >= fiber.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

func page(c *fiber.Ctx) (limit, offset int) {
	limit = c.QueryInt("limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset = c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func idParam(c *fiber.Ctx) (uint, bool) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, false
	}
	return uint(id), true
}

func invalidInput(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "Invalid input",
	})
}

// provision runs the post-commit side effects of a fresh key. Failures are
// logged; the key stays valid in the database.
func (h *Handler) provision(ctx context.Context, user *model.User, p *service.Purchase) {
	var accessURL string
	if h.Panel != nil {
		ak, err := h.Panel.Attach(ctx, p.Key)
		if err != nil {
			h.log.Warn().Err(err).Uint("key_id", p.Key.ID).Msg("could not provision key on panel")
		} else if ak != nil {
			accessURL = ak.AccessURL
		}
	}

	if h.Archive != nil {
		if _, err := h.Archive.Put(ctx, p.Key, accessURL); err != nil {
			h.log.Warn().Err(err).Uint("key_id", p.Key.ID).Msg("could not archive key config")
		}
	}

	if err := h.Notifier.PaymentSuccess(ctx, user, p.Subscription, p.Key); err != nil {
		h.log.Warn().Err(err).Uint("user_id", user.ID).Msg("could not record payment notification")
	}
}

// deprovision undoes provision for released keys.
func (h *Handler) deprovision(ctx context.Context, keys []model.VPNKey) {
	if len(keys) == 0 {
		return
	}
	if h.Panel != nil {
		if err := h.Panel.DetachAll(ctx, keys); err != nil {
			h.log.Warn().Err(err).Int("keys", len(keys)).Msg("could not remove keys from panel")
		}
	}
	if h.Archive != nil {
		for i := range keys {
			if err := h.Archive.Delete(ctx, &keys[i]); err != nil {
				h.log.Warn().Err(err).Uint("key_id", keys[i].ID).Msg("could not delete key config")
			}
		}
	}
}
