package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"gshvpn_backend/internal/middleware"
	"gshvpn_backend/internal/service"
	"gshvpn_backend/pkg/payment"
	"gshvpn_backend/pkg/subscription"
)

type CheckoutInput struct {
	Plan string `json:"plan"`
}

func (h *Handler) ListPlans(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"plans": h.Lifecycle.Plans(),
	})
}

// Checkout buys the free plan immediately and opens a Stripe checkout
// session for paid plans.
func (h *Handler) Checkout(c *fiber.Ctx) error {
	input := new(CheckoutInput)
	if err := c.BodyParser(input); err != nil {
		return invalidInput(c)
	}

	plan, ok := subscription.Lookup(input.Plan)
	if !ok {
		return h.errorResponse(c, service.ErrInvalidPlan)
	}

	user, err := h.currentUser(c)
	if err != nil {
		return h.errorResponse(c, err)
	}
	ctx := c.UserContext()

	if plan.IsFree() {
		p, err := h.Lifecycle.Purchase(ctx, user.ID, string(plan.ID), "")
		if err != nil {
			return h.errorResponse(c, err)
		}
		h.provision(ctx, user, p)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"message":      "Subscription activated",
			"subscription": p.Subscription,
			"key":          p.Key,
		})
	}

	session, err := h.Payments.CreateCheckout(ctx, payment.Checkout{
		UserID:     user.ID,
		Email:      user.Email,
		Plan:       plan,
		SuccessURL: h.SuccessURL,
		CancelURL:  h.CancelURL,
	})
	if err != nil {
		if !errors.Is(err, payment.ErrDisabled) {
			h.log.Error().Err(err).Uint("user_id", user.ID).Msg("could not create checkout session")
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "Could not start checkout, try again later",
			})
		}
		return h.errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"session_id":   session.ID,
		"checkout_url": session.URL,
	})
}

// HandleStripeWebhook turns a completed checkout into a purchase. Events
// are acknowledged unless storage failed, so Stripe retries only those.
func (h *Handler) HandleStripeWebhook(c *fiber.Ctx) error {
	completion, err := h.Payments.ParseWebhook(c.Body(), c.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, payment.ErrIgnoredEvent):
		return c.JSON(fiber.Map{"received": true})
	case errors.Is(err, payment.ErrInvalidSignature):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook signature",
		})
	case err != nil:
		return h.errorResponse(c, err)
	}

	log := h.log.With().Str("reference", completion.Reference).Uint("user_id", completion.UserID).Logger()
	if !completion.Paid {
		log.Info().Msg("checkout completed without payment, ignoring")
		return c.JSON(fiber.Map{"received": true})
	}

	ctx := c.UserContext()
	p, err := h.Lifecycle.Purchase(ctx, completion.UserID, completion.PlanID, completion.Reference)
	switch {
	case errors.Is(err, service.ErrNoCapacity):
		log.Error().Msg("paid checkout but no capacity, refunding")
		if rerr := h.Payments.Refund(ctx, completion.PaymentIntentID); rerr != nil {
			log.Error().Err(rerr).Str("payment_intent", completion.PaymentIntentID).Msg("refund failed")
		}
		return c.JSON(fiber.Map{"received": true, "refunded": true})
	case errors.Is(err, service.ErrPersistence):
		return h.errorResponse(c, err)
	case err != nil:
		log.Error().Err(err).Str("plan", completion.PlanID).Msg("could not fulfil checkout")
		return c.JSON(fiber.Map{"received": true})
	}

	user, err := h.Accounts.Get(ctx, completion.UserID)
	if err != nil {
		log.Warn().Err(err).Msg("purchase stored but user could not be reloaded")
		return c.JSON(fiber.Map{"received": true})
	}
	h.provision(ctx, user, p)

	return c.JSON(fiber.Map{"received": true, "subscription_id": p.Subscription.ID})
}

func (h *Handler) RevokeSubscription(c *fiber.Ctx) error {
	id, ok := idParam(c)
	if !ok {
		return invalidInput(c)
	}
	ctx := c.UserContext()
	actor := middleware.Actor(c)

	released, err := h.Lifecycle.Revoke(ctx, actor, id)
	if err != nil {
		return h.errorResponse(c, err)
	}
	h.deprovision(ctx, released)

	if len(released) > 0 {
		sub, err := h.Lifecycle.Subscription(ctx, id)
		if err != nil {
			h.log.Warn().Err(err).Uint("subscription_id", id).Msg("could not reload revoked subscription")
		} else if err := h.Notifier.Revoked(ctx, &sub.User, sub); err != nil {
			h.log.Warn().Err(err).Uint("subscription_id", id).Msg("could not record revoke notification")
		}
	}

	return c.JSON(fiber.Map{
		"message":       "Subscription revoked",
		"released_keys": len(released),
	})
}
