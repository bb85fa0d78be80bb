package service

import (
	"context"

	"gshvpn_backend/internal/model"
	"gshvpn_backend/internal/repository"
)

const recentLimit = 5

type Dashboard struct {
	TotalUsers          int64                `json:"total_users"`
	ActiveSubscriptions int64                `json:"active_subscriptions"`
	ActiveKeys          int64                `json:"active_keys"`
	RevenueUSD          float64              `json:"revenue_usd"`
	RecentUsers         []model.User         `json:"recent_users"`
	RecentSubscriptions []model.Subscription `json:"recent_subscriptions"`
	Servers             []model.VPNServer    `json:"servers"`
}

type Stats struct {
	store repository.Store
}

func NewStats(store repository.Store) *Stats {
	return &Stats{store: store}
}

func (s *Stats) Dashboard(ctx context.Context) (*Dashboard, error) {
	var (
		d   Dashboard
		err error
	)
	if d.TotalUsers, err = s.store.Users().Count(ctx); err != nil {
		return nil, storeErr("count users", err)
	}
	if d.ActiveSubscriptions, err = s.store.Subscriptions().CountActive(ctx); err != nil {
		return nil, storeErr("count subscriptions", err)
	}
	if d.ActiveKeys, err = s.store.Keys().CountActive(ctx); err != nil {
		return nil, storeErr("count keys", err)
	}
	if d.RevenueUSD, err = s.store.Subscriptions().SumRevenue(ctx); err != nil {
		return nil, storeErr("sum revenue", err)
	}
	if d.RecentUsers, err = s.store.Users().ListRecent(ctx, recentLimit); err != nil {
		return nil, storeErr("recent users", err)
	}
	if d.RecentSubscriptions, err = s.store.Subscriptions().ListRecent(ctx, recentLimit); err != nil {
		return nil, storeErr("recent subscriptions", err)
	}
	if d.Servers, err = s.store.Servers().List(ctx); err != nil {
		return nil, storeErr("list servers", err)
	}
	return &d, nil
}
