package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"gshvpn_backend/internal/model"
	"gshvpn_backend/internal/repository"
)

// Outcome is the result of one delivery attempt as reported by the mailer.
type Outcome struct {
	Subject        string
	Err            error
	SubscriptionID *uint
	Payload        map[string]interface{}
}

// Ledger is the append-only audit log of notification attempts.
type Ledger struct {
	store repository.Store
	log   zerolog.Logger
	opts  options
}

func NewLedger(store repository.Store, log zerolog.Logger, opts ...Option) *Ledger {
	return &Ledger{
		store: store,
		log:   log.With().Str("component", "ledger").Logger(),
		opts:  newOptions(opts),
	}
}

// Record appends the outcome of an attempt. A failed delivery is stored,
// not returned; only storage failures surface.
func (l *Ledger) Record(ctx context.Context, user *model.User, template model.NotificationTemplate, out Outcome) (*model.EmailNotification, error) {
	row := &model.EmailNotification{
		UserID:         user.ID,
		SubscriptionID: out.SubscriptionID,
		Email:          user.Email,
		Subject:        out.Subject,
		Template:       template,
		SentAt:         l.opts.clock(),
		Success:        out.Err == nil,
	}
	if out.Err != nil {
		msg := out.Err.Error()
		row.ErrorMessage = &msg
	}
	if len(out.Payload) > 0 {
		row.Payload = datatypes.JSONMap(out.Payload)
	}

	if err := l.store.Notifications().Create(ctx, row); err != nil {
		l.log.Error().Err(err).Uint("user_id", user.ID).Str("template", string(template)).Msg("failed to record notification")
		return nil, storeErr("record notification", err)
	}
	return row, nil
}

// History lists a user's notifications, newest first.
func (l *Ledger) History(ctx context.Context, userID uint) ([]model.EmailNotification, error) {
	rows, err := l.store.Notifications().ListByUser(ctx, userID)
	if err != nil {
		return nil, storeErr("list notifications", err)
	}
	return rows, nil
}

// HasSince reports whether any attempt of template was recorded for the
// user at or after since, successful or not.
func (l *Ledger) HasSince(ctx context.Context, userID uint, template model.NotificationTemplate, since time.Time) (bool, error) {
	n, err := l.store.Notifications().CountSince(ctx, userID, template, since)
	if err != nil {
		return false, storeErr("count notifications", err)
	}
	return n > 0, nil
}

// SubscriptionHasSince is HasSince scoped to one subscription.
func (l *Ledger) SubscriptionHasSince(ctx context.Context, subscriptionID uint, template model.NotificationTemplate, since time.Time) (bool, error) {
	n, err := l.store.Notifications().CountForSubscriptionSince(ctx, subscriptionID, template, since)
	if err != nil {
		return false, storeErr("count notifications", err)
	}
	return n > 0, nil
}

func (l *Ledger) Recent(ctx context.Context, limit, offset int) ([]model.EmailNotification, error) {
	rows, err := l.store.Notifications().List(ctx, limit, offset)
	if err != nil {
		return nil, storeErr("list notifications", err)
	}
	return rows, nil
}
