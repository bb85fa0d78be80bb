// Package payment captures plan payments through a hosted checkout and
// turns gateway webhooks into purchase confirmations.
package payment

import (
	"context"
	"errors"

	"gshvpn_backend/pkg/subscription"
)

var (
	// ErrIgnoredEvent marks webhook events that carry no purchase.
	ErrIgnoredEvent     = errors.New("webhook event ignored")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrDisabled         = errors.New("payments are not configured")
)

type Checkout struct {
	UserID     uint
	Email      string
	Plan       subscription.Plan
	SuccessURL string
	CancelURL  string
}

type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Completion is a confirmed checkout. Reference is the value stored as the
// subscription's payment reference.
type Completion struct {
	Reference       string
	UserID          uint
	PlanID          string
	Paid            bool
	PaymentIntentID string
}

type Gateway interface {
	CreateCheckout(ctx context.Context, in Checkout) (*Session, error)
	ParseWebhook(payload []byte, signature string) (*Completion, error)
	Refund(ctx context.Context, paymentIntentID string) error
}

// Disabled rejects every call. It stands in when no gateway is configured.
type Disabled struct{}

func (Disabled) CreateCheckout(context.Context, Checkout) (*Session, error) { return nil, ErrDisabled }
func (Disabled) ParseWebhook([]byte, string) (*Completion, error)           { return nil, ErrDisabled }
func (Disabled) Refund(context.Context, string) error                       { return ErrDisabled }
