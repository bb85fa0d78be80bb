package cron

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"gshvpn_backend/internal/model"
)

type ExpiringSource interface {
	ExpiringWithin(ctx context.Context, now time.Time, window time.Duration) ([]model.Subscription, error)
	CurrentEntitlement(ctx context.Context, userID uint) (*model.Subscription, error)
}

type ReminderNotifier interface {
	ExpiringSoon(ctx context.Context, user *model.User, sub *model.Subscription, daysLeft int) error
}

// Reminders warns owners of subscriptions that run out within the window.
// Each subscription is reminded at most once, enforced by the guard.
type Reminders struct {
	source   ExpiringSource
	notifier ReminderNotifier
	guard    ReminderGuard
	window   time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

func NewReminders(source ExpiringSource, notifier ReminderNotifier, guard ReminderGuard, window time.Duration, now func() time.Time, log zerolog.Logger) *Reminders {
	return &Reminders{
		source:   source,
		notifier: notifier,
		guard:    guard,
		window:   window,
		now:      now,
		log:      log.With().Str("component", "reminders").Logger(),
	}
}

func (j *Reminders) Name() string { return "expiry_reminders" }

// renewed reports whether the user holds another entitlement that outlives sub.
func renewed(current, sub *model.Subscription) bool {
	if current == nil || current.ID == sub.ID {
		return false
	}
	return current.ExpiresAt == nil || current.ExpiresAt.After(*sub.ExpiresAt)
}

func (j *Reminders) Run(ctx context.Context) error {
	now := j.now().UTC()
	subs, err := j.source.ExpiringWithin(ctx, now, j.window)
	if err != nil {
		return err
	}

	var (
		sent int
		errs []error
	)
	for i := range subs {
		sub := &subs[i]

		current, err := j.source.CurrentEntitlement(ctx, sub.UserID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if renewed(current, sub) {
			continue
		}

		ok, err := j.guard.Acquire(ctx, sub, j.window)
		if err != nil {
			j.log.Warn().Err(err).Uint("subscription_id", sub.ID).Msg("reminder guard unavailable, skipping")
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}

		days := 0
		if d := sub.DaysRemaining(now); d != nil {
			days = *d
		}
		if err := j.notifier.ExpiringSoon(ctx, &sub.User, sub, days); err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}

	j.log.Info().Int("candidates", len(subs)).Int("sent", sent).Msg("expiry reminders done")
	return errors.Join(errs...)
}
