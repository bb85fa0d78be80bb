package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gshvpn_backend/internal/model"
)

// ReminderGuard hands out the right to remind a subscription once.
type ReminderGuard interface {
	Acquire(ctx context.Context, sub *model.Subscription, window time.Duration) (bool, error)
}

// RedisGuard claims reminders with SETNX so that several API instances
// running the same schedule send one email between them.
type RedisGuard struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisGuard(rdb *redis.Client) *RedisGuard {
	return &RedisGuard{rdb: rdb, prefix: "gshvpn:reminded"}
}

func (g *RedisGuard) key(sub *model.Subscription) string {
	return fmt.Sprintf("%s:%s:%d", g.prefix, model.TemplateExpiringSoon, sub.ID)
}

func (g *RedisGuard) Acquire(ctx context.Context, sub *model.Subscription, window time.Duration) (bool, error) {
	// The claim outlives the reminder window so the same subscription is
	// not picked up again on the next run.
	ok, err := g.rdb.SetNX(ctx, g.key(sub), time.Now().UTC().Format(time.RFC3339), window+24*time.Hour).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

type LedgerQuery interface {
	SubscriptionHasSince(ctx context.Context, subscriptionID uint, template model.NotificationTemplate, since time.Time) (bool, error)
}

// LedgerGuard falls back on the notification ledger when Redis is not
// configured: a reminder is due when none was recorded for the subscription
// within the window before its expiry.
type LedgerGuard struct {
	ledger LedgerQuery
}

func NewLedgerGuard(ledger LedgerQuery) *LedgerGuard {
	return &LedgerGuard{ledger: ledger}
}

func (g *LedgerGuard) Acquire(ctx context.Context, sub *model.Subscription, window time.Duration) (bool, error) {
	if sub.ExpiresAt == nil {
		return false, nil
	}
	has, err := g.ledger.SubscriptionHasSince(ctx, sub.ID, model.TemplateExpiringSoon, sub.ExpiresAt.Add(-window))
	if err != nil {
		return false, err
	}
	return !has, nil
}
