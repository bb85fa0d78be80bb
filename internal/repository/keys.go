package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"gshvpn_backend/internal/model"
)

type keyRepo struct {
	db *gorm.DB
}

func (r *keyRepo) Create(ctx context.Context, k *model.VPNKey) error {
	return translate("create key", r.db.WithContext(ctx).Omit("Server").Create(k).Error)
}

func (r *keyRepo) Get(ctx context.Context, id uint) (*model.VPNKey, error) {
	var k model.VPNKey
	if err := r.db.WithContext(ctx).Preload("Server").First(&k, id).Error; err != nil {
		return nil, translate("get key", err)
	}
	return &k, nil
}

func (r *keyRepo) ListByUser(ctx context.Context, userID uint, onlyActive bool) ([]model.VPNKey, error) {
	q := r.db.WithContext(ctx).Preload("Server").Where("user_id = ?", userID)
	if onlyActive {
		q = q.Where("is_active = ?", true)
	}
	var keys []model.VPNKey
	err := q.Order("created_at DESC").Order("id DESC").Find(&keys).Error
	return keys, translate("list user keys", err)
}

func (r *keyRepo) ListActiveBySubscription(ctx context.Context, subscriptionID uint) ([]model.VPNKey, error) {
	var keys []model.VPNKey
	err := r.db.WithContext(ctx).
		Preload("Server").
		Where("subscription_id = ? AND is_active = ?", subscriptionID, true).
		Order("id ASC").
		Find(&keys).Error
	return keys, translate("list subscription keys", err)
}

func (r *keyRepo) ListActiveByUser(ctx context.Context, userID uint) ([]model.VPNKey, error) {
	var keys []model.VPNKey
	err := r.db.WithContext(ctx).
		Preload("Server").
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("id ASC").
		Find(&keys).Error
	return keys, translate("list active user keys", err)
}

func (r *keyRepo) Deactivate(ctx context.Context, id uint, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.VPNKey{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]interface{}{"is_active": false, "revoked_at": at})
	if res.Error != nil {
		return false, translate("deactivate key", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *keyRepo) SetProviderKeyID(ctx context.Context, id uint, providerKeyID string) error {
	res := r.db.WithContext(ctx).Model(&model.VPNKey{}).Where("id = ?", id).Update("provider_key_id", providerKeyID)
	if res.Error != nil {
		return translate("set provider key id", res.Error)
	}
	if res.RowsAffected == 0 {
		return translate("set provider key id", gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *keyRepo) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.VPNKey{}).Where("is_active = ?", true).Count(&n).Error
	return n, translate("count active keys", err)
}
