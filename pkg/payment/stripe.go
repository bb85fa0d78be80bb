package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"
)

const (
	metaUserID = "user_id"
	metaPlan   = "plan"
)

type StripeGateway struct {
	api           *client.API
	webhookSecret string
	log           zerolog.Logger
}

type StripeOption func(*stripe.BackendConfig)

// WithAPIURL sends API calls to url instead of api.stripe.com.
func WithAPIURL(url string) StripeOption {
	return func(c *stripe.BackendConfig) { c.URL = stripe.String(url) }
}

func NewStripeGateway(secretKey, webhookSecret string, log zerolog.Logger, opts ...StripeOption) *StripeGateway {
	cfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(2),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	api := &client.API{}
	api.Init(secretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, cfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, cfg),
	})

	return &StripeGateway{
		api:           api,
		webhookSecret: webhookSecret,
		log:           log.With().Str("component", "stripe").Logger(),
	}
}

func (g *StripeGateway) CreateCheckout(ctx context.Context, in Checkout) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(in.SuccessURL),
		CancelURL:         stripe.String(in.CancelURL),
		CustomerEmail:     stripe.String(in.Email),
		ClientReferenceID: stripe.String(strconv.FormatUint(uint64(in.UserID), 10)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(string(stripe.CurrencyUSD)),
					UnitAmount: stripe.Int64(in.Plan.AmountCents()),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("GSH VPN " + in.Plan.Name),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	params.AddMetadata(metaUserID, strconv.FormatUint(uint64(in.UserID), 10))
	params.AddMetadata(metaPlan, string(in.Plan.ID))
	params.SetIdempotencyKey(uuid.NewString())

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("could not create stripe checkout session: %w", err)
	}

	g.log.Info().Str("session_id", s.ID).Uint("user_id", in.UserID).Str("plan", string(in.Plan.ID)).Msg("checkout session created")
	return &Session{ID: s.ID, URL: s.URL}, nil
}

func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*Completion, error) {
	event, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	g.log.Debug().Str("event_id", event.ID).Str("type", string(event.Type)).Msg("processing stripe webhook event")

	if event.Type != "checkout.session.completed" {
		return nil, ErrIgnoredEvent
	}

	var s stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}

	userID, err := strconv.ParseUint(s.Metadata[metaUserID], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("checkout session %s has no valid user id: %w", s.ID, err)
	}

	c := &Completion{
		Reference: s.ID,
		UserID:    uint(userID),
		PlanID:    s.Metadata[metaPlan],
		Paid:      s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
	}
	if s.PaymentIntent != nil {
		c.PaymentIntentID = s.PaymentIntent.ID
	}
	return c, nil
}

func (g *StripeGateway) Refund(ctx context.Context, paymentIntentID string) error {
	params := &stripe.RefundParams{PaymentIntent: stripe.String(paymentIntentID)}
	params.Context = ctx

	r, err := g.api.Refunds.New(params)
	if err != nil {
		return fmt.Errorf("could not refund payment %s: %w", paymentIntentID, err)
	}
	g.log.Info().Str("refund_id", r.ID).Str("payment_intent", paymentIntentID).Msg("payment refunded")
	return nil
}
