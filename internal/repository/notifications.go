package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"gshvpn_backend/internal/model"
)

type notificationRepo struct {
	db *gorm.DB
}

func (r *notificationRepo) Create(ctx context.Context, n *model.EmailNotification) error {
	return translate("create notification", r.db.WithContext(ctx).Create(n).Error)
}

func (r *notificationRepo) ListByUser(ctx context.Context, userID uint) ([]model.EmailNotification, error) {
	var rows []model.EmailNotification
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("sent_at DESC").Order("id DESC").
		Find(&rows).Error
	return rows, translate("list user notifications", err)
}

func (r *notificationRepo) List(ctx context.Context, limit, offset int) ([]model.EmailNotification, error) {
	var rows []model.EmailNotification
	err := paginate(r.db.WithContext(ctx), limit, offset).
		Order("sent_at DESC").Order("id DESC").
		Find(&rows).Error
	return rows, translate("list notifications", err)
}

func (r *notificationRepo) CountSince(ctx context.Context, userID uint, template model.NotificationTemplate, since time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.EmailNotification{}).
		Where("user_id = ? AND template = ? AND sent_at >= ?", userID, template, since).
		Count(&n).Error
	return n, translate("count notifications", err)
}

func (r *notificationRepo) CountForSubscriptionSince(ctx context.Context, subscriptionID uint, template model.NotificationTemplate, since time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.EmailNotification{}).
		Where("subscription_id = ? AND template = ? AND sent_at >= ?", subscriptionID, template, since).
		Count(&n).Error
	return n, translate("count notifications", err)
}
