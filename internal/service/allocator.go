package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"gshvpn_backend/internal/model"
	"gshvpn_backend/internal/repository"
)

// Allocator binds access keys to VPN servers with spare capacity.
type Allocator struct {
	store repository.Store
	log   zerolog.Logger
	opts  options
}

func NewAllocator(store repository.Store, log zerolog.Logger, opts ...Option) *Allocator {
	return &Allocator{
		store: store,
		log:   log.With().Str("component", "allocator").Logger(),
		opts:  newOptions(opts),
	}
}

// IssueKey issues a new key for the user's subscription on the least
// loaded available server. The subscription must still grant access.
func (a *Allocator) IssueKey(ctx context.Context, userID, subscriptionID uint) (*model.VPNKey, error) {
	var key *model.VPNKey
	err := a.store.WithTx(ctx, func(tx repository.Store) error {
		sub, err := tx.Subscriptions().Get(ctx, subscriptionID)
		if err != nil {
			return storeErr("load subscription", err)
		}
		if sub.UserID != userID {
			return fmt.Errorf("subscription %d of another user: %w", subscriptionID, ErrForbidden)
		}
		if !sub.IsEntitling(a.opts.clock()) {
			return fmt.Errorf("subscription %d: %w", subscriptionID, ErrNotEntitled)
		}
		key, err = a.issue(ctx, tx, sub)
		return err
	})
	if err != nil {
		return nil, txErr("issue key", err)
	}
	return key, nil
}

// issue runs inside the caller's transaction.
func (a *Allocator) issue(ctx context.Context, tx repository.Store, sub *model.Subscription) (*model.VPNKey, error) {
	candidates, err := tx.Servers().ListAvailable(ctx)
	if err != nil {
		return nil, storeErr("list available servers", err)
	}

	for i := range candidates {
		srv := candidates[i]
		claimed, err := tx.Servers().ClaimSlot(ctx, srv.ID)
		if err != nil {
			return nil, storeErr("claim server slot", err)
		}
		if !claimed {
			a.log.Debug().Uint("server_id", srv.ID).Msg("lost race for last slot, trying next server")
			continue
		}

		token, err := a.opts.tokens()
		if err != nil {
			return nil, fmt.Errorf("generate token: %w", err)
		}

		key := &model.VPNKey{
			UserID:         sub.UserID,
			SubscriptionID: sub.ID,
			ServerID:       &srv.ID,
			Token:          token,
			CreatedAt:      a.opts.clock(),
			ExpiresAt:      copyTime(sub.ExpiresAt),
			IsActive:       true,
		}
		if err := tx.Keys().Create(ctx, key); err != nil {
			return nil, storeErr("create key", err)
		}

		srv.ActiveClients++
		key.Server = &srv

		a.log.Info().
			Uint("key_id", key.ID).
			Uint("user_id", sub.UserID).
			Uint("server_id", srv.ID).
			Int("active_clients", srv.ActiveClients).
			Msg("key issued")
		return key, nil
	}

	return nil, ErrNoCapacity
}

// Release deactivates a key and frees its server slot. Releasing an
// inactive key changes nothing.
func (a *Allocator) Release(ctx context.Context, keyID uint) error {
	err := a.store.WithTx(ctx, func(tx repository.Store) error {
		key, err := tx.Keys().Get(ctx, keyID)
		if err != nil {
			return storeErr("load key", err)
		}
		_, err = a.release(ctx, tx, key)
		return err
	})
	return txErr("release key", err)
}

// release runs inside the caller's transaction and reports whether the key
// was active.
func (a *Allocator) release(ctx context.Context, tx repository.Store, key *model.VPNKey) (bool, error) {
	changed, err := tx.Keys().Deactivate(ctx, key.ID, a.opts.clock())
	if err != nil {
		return false, storeErr("deactivate key", err)
	}
	if !changed {
		return false, nil
	}
	key.IsActive = false

	if key.ServerID == nil {
		a.log.Warn().Uint("key_id", key.ID).Msg("released key has no server")
		return true, nil
	}

	freed, err := tx.Servers().ReleaseSlot(ctx, *key.ServerID)
	if err != nil {
		return false, storeErr("release server slot", err)
	}
	if !freed {
		a.log.Warn().
			Uint("key_id", key.ID).
			Uint("server_id", *key.ServerID).
			Msg("server missing or already at zero load, nothing to decrement")
		return true, nil
	}

	a.log.Info().Uint("key_id", key.ID).Uint("server_id", *key.ServerID).Msg("key released")
	return true, nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// AttachProviderKey records the VPN panel id of an issued key.
func (a *Allocator) AttachProviderKey(ctx context.Context, keyID uint, providerKeyID string) error {
	if err := a.store.Keys().SetProviderKeyID(ctx, keyID, providerKeyID); err != nil {
		return storeErr("set provider key id", err)
	}
	return nil
}
