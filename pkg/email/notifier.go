package email

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"gshvpn_backend/internal/model"
	"gshvpn_backend/internal/service"
	"gshvpn_backend/pkg/subscription"
)

// Recorder is the audit sink for delivery attempts.
type Recorder interface {
	Record(ctx context.Context, user *model.User, template model.NotificationTemplate, out service.Outcome) (*model.EmailNotification, error)
}

// Notifier renders, sends and records user notifications. Delivery
// failures end up in the ledger; only ledger failures are returned.
type Notifier struct {
	sender   Sender
	renderer *Renderer
	ledger   Recorder
	log      zerolog.Logger
}

func NewNotifier(sender Sender, ledger Recorder, log zerolog.Logger) (*Notifier, error) {
	r, err := NewRenderer()
	if err != nil {
		return nil, err
	}
	return &Notifier{
		sender:   sender,
		renderer: r,
		ledger:   ledger,
		log:      log.With().Str("component", "notifier").Logger(),
	}, nil
}

func planName(id subscription.PlanID) string {
	if p, ok := subscription.Lookup(string(id)); ok {
		return p.Name
	}
	return string(id)
}

func formatTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func (n *Notifier) Welcome(ctx context.Context, user *model.User) error {
	return n.notify(ctx, user, nil, model.TemplateWelcome, WelcomeData{Email: user.Email}, nil)
}

func (n *Notifier) PaymentSuccess(ctx context.Context, user *model.User, sub *model.Subscription, key *model.VPNKey) error {
	data := PaymentSuccessData{
		PlanName:  planName(sub.Plan),
		AmountUSD: sub.AmountUSD,
		ExpiresAt: sub.ExpiresAt,
	}
	payload := map[string]interface{}{
		"subscription_id": sub.ID,
		"plan":            string(sub.Plan),
		"amount_usd":      sub.AmountUSD,
		"expires_at":      formatTime(sub.ExpiresAt),
	}
	if key != nil {
		payload["key_id"] = key.ID
		if key.Server != nil {
			data.Server = key.Server.Name
		}
	}
	return n.notify(ctx, user, sub, model.TemplatePaymentSuccess, data, payload)
}

func (n *Notifier) ExpiringSoon(ctx context.Context, user *model.User, sub *model.Subscription, daysLeft int) error {
	data := ExpiringSoonData{PlanName: planName(sub.Plan), DaysLeft: daysLeft, ExpiresAt: sub.ExpiresAt}
	payload := map[string]interface{}{
		"subscription_id": sub.ID,
		"days_left":       daysLeft,
		"expires_at":      formatTime(sub.ExpiresAt),
	}
	return n.notify(ctx, user, sub, model.TemplateExpiringSoon, data, payload)
}

func (n *Notifier) Expired(ctx context.Context, user *model.User, sub *model.Subscription, releasedKeys int) error {
	data := ExpiredData{PlanName: planName(sub.Plan), ExpiresAt: sub.ExpiresAt}
	payload := map[string]interface{}{
		"subscription_id": sub.ID,
		"released_keys":   releasedKeys,
	}
	return n.notify(ctx, user, sub, model.TemplateExpired, data, payload)
}

func (n *Notifier) Revoked(ctx context.Context, user *model.User, sub *model.Subscription) error {
	data := RevokedData{PlanName: planName(sub.Plan)}
	payload := map[string]interface{}{"subscription_id": sub.ID}
	return n.notify(ctx, user, sub, model.TemplateSubscriptionRevoked, data, payload)
}

func (n *Notifier) notify(ctx context.Context, user *model.User, sub *model.Subscription, kind model.NotificationTemplate, data interface{}, payload map[string]interface{}) error {
	subject, body, err := n.renderer.Render(kind, data)
	if err == nil {
		err = n.sender.Send(ctx, Message{To: user.Email, Subject: subject, HTML: body})
	}
	if err != nil {
		n.log.Warn().Err(err).Uint("user_id", user.ID).Str("template", string(kind)).Msg("email delivery failed")
	}

	out := service.Outcome{Subject: subject, Err: err, Payload: payload}
	if sub != nil {
		out.SubscriptionID = &sub.ID
	}
	_, recErr := n.ledger.Record(ctx, user, kind, out)
	return recErr
}
