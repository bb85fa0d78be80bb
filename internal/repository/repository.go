// Package repository is the storage port of the account core: typed
// repositories per entity plus a transaction boundary. Entities are plain
// records from internal/model; nothing here knows about plans or capacity
// policy.
package repository

import (
	"context"
	"errors"
	"time"

	"gshvpn_backend/internal/model"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// Store vends repositories bound to one database handle. Inside WithTx
// the repositories of the tx Store share the transaction.
type Store interface {
	Users() UserRepository
	Subscriptions() SubscriptionRepository
	Keys() KeyRepository
	Servers() ServerRepository
	Notifications() NotificationRepository

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise. Nested calls become savepoints.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

type UserRepository interface {
	Create(ctx context.Context, u *model.User) error
	Get(ctx context.Context, id uint) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateLastLogin(ctx context.Context, id uint, at time.Time) error
	List(ctx context.Context, limit, offset int) ([]model.User, error)
	ListRecent(ctx context.Context, limit int) ([]model.User, error)
	Count(ctx context.Context) (int64, error)
	HasAdmin(ctx context.Context) (bool, error)
	// Delete removes the user together with its subscriptions, keys and
	// notifications.
	Delete(ctx context.Context, id uint) error
}

type SubscriptionRepository interface {
	Create(ctx context.Context, s *model.Subscription) error
	Get(ctx context.Context, id uint) (*model.Subscription, error)
	ListByUser(ctx context.Context, userID uint) ([]model.Subscription, error)
	List(ctx context.Context, limit, offset int) ([]model.Subscription, error)
	ListRecent(ctx context.Context, limit int) ([]model.Subscription, error)
	Deactivate(ctx context.Context, id uint) error
	// ListExpiredWithActiveKeys returns subscriptions whose expiry is at or
	// before now that still fund at least one active key.
	ListExpiredWithActiveKeys(ctx context.Context, now time.Time) ([]model.Subscription, error)
	// ListExpiringBetween returns active subscriptions expiring in (from, to].
	ListExpiringBetween(ctx context.Context, from, to time.Time) ([]model.Subscription, error)
	CountActive(ctx context.Context) (int64, error)
	SumRevenue(ctx context.Context) (float64, error)
}

type KeyRepository interface {
	Create(ctx context.Context, k *model.VPNKey) error
	Get(ctx context.Context, id uint) (*model.VPNKey, error)
	ListByUser(ctx context.Context, userID uint, onlyActive bool) ([]model.VPNKey, error)
	ListActiveBySubscription(ctx context.Context, subscriptionID uint) ([]model.VPNKey, error)
	ListActiveByUser(ctx context.Context, userID uint) ([]model.VPNKey, error)
	// Deactivate flips an active key to inactive and reports whether it
	// was active before the call.
	Deactivate(ctx context.Context, id uint, at time.Time) (bool, error)
	SetProviderKeyID(ctx context.Context, id uint, providerKeyID string) error
	CountActive(ctx context.Context) (int64, error)
}

type ServerRepository interface {
	Create(ctx context.Context, s *model.VPNServer) error
	Get(ctx context.Context, id uint) (*model.VPNServer, error)
	List(ctx context.Context) ([]model.VPNServer, error)
	// ListAvailable returns active servers with spare capacity, least
	// loaded first, ties by id.
	ListAvailable(ctx context.Context) ([]model.VPNServer, error)
	// ClaimSlot increments active_clients only while it stays below
	// max_clients. It reports false when the slot was not available.
	ClaimSlot(ctx context.Context, id uint) (bool, error)
	// ReleaseSlot decrements active_clients, never below zero. It reports
	// false when nothing was decremented.
	ReleaseSlot(ctx context.Context, id uint) (bool, error)
	SetActive(ctx context.Context, id uint, active bool) error
	TouchHealthCheck(ctx context.Context, id uint, at time.Time) error
	Count(ctx context.Context) (int64, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, n *model.EmailNotification) error
	ListByUser(ctx context.Context, userID uint) ([]model.EmailNotification, error)
	List(ctx context.Context, limit, offset int) ([]model.EmailNotification, error)
	CountSince(ctx context.Context, userID uint, template model.NotificationTemplate, since time.Time) (int64, error)
	CountForSubscriptionSince(ctx context.Context, subscriptionID uint, template model.NotificationTemplate, since time.Time) (int64, error)
}
