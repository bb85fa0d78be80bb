package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"gshvpn_backend/internal/model"
)

type subscriptionRepo struct {
	db *gorm.DB
}

func (r *subscriptionRepo) Create(ctx context.Context, s *model.Subscription) error {
	return translate("create subscription", r.db.WithContext(ctx).Omit("User", "VPNKeys").Create(s).Error)
}

func (r *subscriptionRepo) Get(ctx context.Context, id uint) (*model.Subscription, error) {
	var s model.Subscription
	if err := r.db.WithContext(ctx).First(&s, id).Error; err != nil {
		return nil, translate("get subscription", err)
	}
	return &s, nil
}

func (r *subscriptionRepo) ListByUser(ctx context.Context, userID uint) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Find(&subs).Error
	return subs, translate("list user subscriptions", err)
}

func (r *subscriptionRepo) List(ctx context.Context, limit, offset int) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := paginate(r.db.WithContext(ctx), limit, offset).
		Preload("User").
		Order("created_at DESC").Order("id DESC").
		Find(&subs).Error
	return subs, translate("list subscriptions", err)
}

func (r *subscriptionRepo) ListRecent(ctx context.Context, limit int) ([]model.Subscription, error) {
	return r.List(ctx, limit, 0)
}

func (r *subscriptionRepo) Deactivate(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Model(&model.Subscription{}).Where("id = ?", id).Update("is_active", false)
	if res.Error != nil {
		return translate("deactivate subscription", res.Error)
	}
	if res.RowsAffected == 0 {
		return translate("deactivate subscription", gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *subscriptionRepo) ListExpiredWithActiveKeys(ctx context.Context, now time.Time) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Where("id IN (SELECT subscription_id FROM vpn_keys WHERE is_active = ?)", true).
		Order("expires_at ASC").Order("id ASC").
		Find(&subs).Error
	return subs, translate("list expired subscriptions", err)
}

func (r *subscriptionRepo) ListExpiringBetween(ctx context.Context, from, to time.Time) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("is_active = ? AND expires_at > ? AND expires_at <= ?", true, from, to).
		Order("expires_at ASC").Order("id ASC").
		Find(&subs).Error
	return subs, translate("list expiring subscriptions", err)
}

func (r *subscriptionRepo) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Subscription{}).Where("is_active = ?", true).Count(&n).Error
	return n, translate("count active subscriptions", err)
}

func (r *subscriptionRepo) SumRevenue(ctx context.Context) (float64, error) {
	var total float64
	err := r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("amount_usd > ?", 0).
		Select("COALESCE(SUM(amount_usd), 0)").
		Scan(&total).Error
	return total, translate("sum revenue", err)
}
