package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"gshvpn_backend/internal/model"
	"gshvpn_backend/internal/repository"
	"gshvpn_backend/pkg/subscription"
)

// Lifecycle owns subscription purchase, revocation and expiry release.
type Lifecycle struct {
	store repository.Store
	alloc *Allocator
	log   zerolog.Logger
	opts  options
}

func NewLifecycle(store repository.Store, alloc *Allocator, log zerolog.Logger, opts ...Option) *Lifecycle {
	return &Lifecycle{
		store: store,
		alloc: alloc,
		log:   log.With().Str("component", "lifecycle").Logger(),
		opts:  newOptions(opts),
	}
}

// Purchase is the result of a successful plan purchase.
type Purchase struct {
	Subscription *model.Subscription `json:"subscription"`
	Key          *model.VPNKey       `json:"key"`
}

// Actor is the caller of an ownership-checked operation.
type Actor struct {
	UserID  uint
	IsAdmin bool
}

// Expiry describes the keys released for one expired subscription.
type Expiry struct {
	Subscription model.Subscription
	Keys         []model.VPNKey
}

func (l *Lifecycle) Plans() []subscription.Plan {
	return subscription.Catalog()
}

// Purchase creates a subscription to planID and issues its first key in a
// single transaction. Either both exist afterwards or neither does.
func (l *Lifecycle) Purchase(ctx context.Context, userID uint, planID, paymentRef string) (*Purchase, error) {
	plan, ok := subscription.Lookup(planID)
	if !ok {
		return nil, fmt.Errorf("plan %q: %w", planID, ErrInvalidPlan)
	}
	if plan.IsFree() && paymentRef == "" {
		paymentRef = subscription.FreePaymentRef
	}

	var out Purchase
	err := l.store.WithTx(ctx, func(tx repository.Store) error {
		user, err := tx.Users().Get(ctx, userID)
		if err != nil {
			return storeErr("load user", err)
		}
		if !user.IsActive {
			return fmt.Errorf("user %d is disabled: %w", userID, ErrNotFound)
		}

		now := l.opts.clock()
		sub := &model.Subscription{
			UserID:    userID,
			Plan:      plan.ID,
			AmountUSD: plan.AmountUSD,
			CreatedAt: now,
			ExpiresAt: plan.ExpiresAt(now),
			IsActive:  true,
		}
		if paymentRef != "" {
			sub.PaymentID = &paymentRef
		}
		if err := tx.Subscriptions().Create(ctx, sub); err != nil {
			return storeErr("create subscription", err)
		}

		key, err := l.alloc.issue(ctx, tx, sub)
		if err != nil {
			return err
		}
		out = Purchase{Subscription: sub, Key: key}
		return nil
	})
	if err != nil {
		l.log.Warn().Err(err).Uint("user_id", userID).Str("plan", planID).Msg("purchase failed")
		return nil, txErr("purchase", err)
	}

	l.log.Info().
		Uint("user_id", userID).
		Uint("subscription_id", out.Subscription.ID).
		Str("plan", string(plan.ID)).
		Msg("subscription purchased")
	return &out, nil
}

// Revoke deactivates a subscription and releases each of its active keys.
// Non-admin actors may only revoke their own subscriptions. Repeated calls
// succeed and release nothing. The released keys are returned.
func (l *Lifecycle) Revoke(ctx context.Context, actor Actor, subscriptionID uint) ([]model.VPNKey, error) {
	var released []model.VPNKey
	err := l.store.WithTx(ctx, func(tx repository.Store) error {
		sub, err := tx.Subscriptions().Get(ctx, subscriptionID)
		if err != nil {
			return storeErr("load subscription", err)
		}
		if !actor.IsAdmin && sub.UserID != actor.UserID {
			return fmt.Errorf("subscription %d: %w", subscriptionID, ErrForbidden)
		}

		if sub.IsActive {
			if err := tx.Subscriptions().Deactivate(ctx, sub.ID); err != nil {
				return storeErr("deactivate subscription", err)
			}
		}

		released, err = l.releaseAll(ctx, tx, func() ([]model.VPNKey, error) {
			return tx.Keys().ListActiveBySubscription(ctx, sub.ID)
		})
		return err
	})
	if err != nil {
		return nil, txErr("revoke", err)
	}

	l.log.Info().
		Uint("subscription_id", subscriptionID).
		Uint("actor_id", actor.UserID).
		Int("released_keys", len(released)).
		Msg("subscription revoked")
	return released, nil
}

func (l *Lifecycle) releaseAll(ctx context.Context, tx repository.Store, list func() ([]model.VPNKey, error)) ([]model.VPNKey, error) {
	keys, err := list()
	if err != nil {
		return nil, storeErr("list active keys", err)
	}
	released := make([]model.VPNKey, 0, len(keys))
	for i := range keys {
		changed, err := l.alloc.release(ctx, tx, &keys[i])
		if err != nil {
			return nil, err
		}
		if changed {
			released = append(released, keys[i])
		}
	}
	return released, nil
}

// CurrentEntitlement returns the user's entitling subscription or nil.
func (l *Lifecycle) CurrentEntitlement(ctx context.Context, userID uint) (*model.Subscription, error) {
	subs, err := l.store.Subscriptions().ListByUser(ctx, userID)
	if err != nil {
		return nil, storeErr("list subscriptions", err)
	}
	return model.CurrentEntitlement(subs, l.opts.clock()), nil
}

func (l *Lifecycle) History(ctx context.Context, userID uint) ([]model.Subscription, error) {
	subs, err := l.store.Subscriptions().ListByUser(ctx, userID)
	if err != nil {
		return nil, storeErr("list subscriptions", err)
	}
	return subs, nil
}

// All lists every subscription, newest first.
func (l *Lifecycle) All(ctx context.Context, limit, offset int) ([]model.Subscription, error) {
	subs, err := l.store.Subscriptions().List(ctx, limit, offset)
	if err != nil {
		return nil, storeErr("list subscriptions", err)
	}
	return subs, nil
}

func (l *Lifecycle) Keys(ctx context.Context, userID uint, onlyActive bool) ([]model.VPNKey, error) {
	keys, err := l.store.Keys().ListByUser(ctx, userID, onlyActive)
	if err != nil {
		return nil, storeErr("list keys", err)
	}
	return keys, nil
}

// Subscription loads a subscription together with its owner.
func (l *Lifecycle) Subscription(ctx context.Context, id uint) (*model.Subscription, error) {
	sub, err := l.store.Subscriptions().Get(ctx, id)
	if err != nil {
		return nil, storeErr("load subscription", err)
	}
	user, err := l.store.Users().Get(ctx, sub.UserID)
	if err != nil {
		return nil, storeErr("load subscription owner", err)
	}
	sub.User = *user
	return sub, nil
}

// Key loads one key on behalf of actor. Admins may read any key.
func (l *Lifecycle) Key(ctx context.Context, actor Actor, keyID uint) (*model.VPNKey, error) {
	key, err := l.store.Keys().Get(ctx, keyID)
	if err != nil {
		return nil, storeErr("load key", err)
	}
	if key.UserID != actor.UserID && !actor.IsAdmin {
		return nil, fmt.Errorf("key %d: %w", keyID, ErrForbidden)
	}
	return key, nil
}

// ReleaseExpired frees the capacity still held by keys of subscriptions
// whose expiry has passed. Each subscription commits on its own; failures
// are collected and the sweep continues. Subscription rows are left as
// they are since expiry is derived from expires_at.
func (l *Lifecycle) ReleaseExpired(ctx context.Context, now time.Time) ([]Expiry, error) {
	subs, err := l.store.Subscriptions().ListExpiredWithActiveKeys(ctx, now)
	if err != nil {
		return nil, storeErr("list expired subscriptions", err)
	}

	var (
		out  []Expiry
		errs []error
	)
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		var released []model.VPNKey
		err := l.store.WithTx(ctx, func(tx repository.Store) error {
			var err error
			released, err = l.releaseAll(ctx, tx, func() ([]model.VPNKey, error) {
				return tx.Keys().ListActiveBySubscription(ctx, sub.ID)
			})
			return err
		})
		if err != nil {
			l.log.Error().Err(err).Uint("subscription_id", sub.ID).Msg("failed to release expired keys")
			errs = append(errs, fmt.Errorf("subscription %d: %w", sub.ID, txErr("release expired", err)))
			continue
		}
		if len(released) > 0 {
			out = append(out, Expiry{Subscription: sub, Keys: released})
		}
	}

	if len(out) > 0 {
		l.log.Info().Int("subscriptions", len(out)).Msg("released keys of expired subscriptions")
	}
	return out, errors.Join(errs...)
}

// DeleteUser removes the user and everything it owns, releasing the server
// capacity of its active keys first. The released keys are returned.
func (l *Lifecycle) DeleteUser(ctx context.Context, userID uint) ([]model.VPNKey, error) {
	var released []model.VPNKey
	err := l.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Users().Get(ctx, userID); err != nil {
			return storeErr("load user", err)
		}
		var err error
		released, err = l.releaseAll(ctx, tx, func() ([]model.VPNKey, error) {
			return tx.Keys().ListActiveByUser(ctx, userID)
		})
		if err != nil {
			return err
		}
		if err := tx.Users().Delete(ctx, userID); err != nil {
			return storeErr("delete user", err)
		}
		return nil
	})
	if err != nil {
		return nil, txErr("delete user", err)
	}

	l.log.Info().Uint("user_id", userID).Int("released_keys", len(released)).Msg("user deleted")
	return released, nil
}

// ExpiringWithin lists active subscriptions whose expiry falls in
// (now, now+window].
func (l *Lifecycle) ExpiringWithin(ctx context.Context, now time.Time, window time.Duration) ([]model.Subscription, error) {
	subs, err := l.store.Subscriptions().ListExpiringBetween(ctx, now, now.Add(window))
	if err != nil {
		return nil, storeErr("list expiring subscriptions", err)
	}
	return subs, nil
}
