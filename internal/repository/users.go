package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"gshvpn_backend/internal/model"
)

type userRepo struct {
	db *gorm.DB
}

func (r *userRepo) Create(ctx context.Context, u *model.User) error {
	u.Email = model.NormalizeEmail(u.Email)
	return translate("create user", r.db.WithContext(ctx).Create(u).Error)
}

func (r *userRepo) Get(ctx context.Context, id uint) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, translate("get user", err)
	}
	return &u, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := r.db.WithContext(ctx).
		Where("LOWER(email) = ?", model.NormalizeEmail(email)).
		First(&u).Error
	if err != nil {
		return nil, translate("get user by email", err)
	}
	return &u, nil
}

func (r *userRepo) UpdateLastLogin(ctx context.Context, id uint, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Update("last_login", at)
	if res.Error != nil {
		return translate("update last login", res.Error)
	}
	if res.RowsAffected == 0 {
		return translate("update last login", gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *userRepo) List(ctx context.Context, limit, offset int) ([]model.User, error) {
	var users []model.User
	err := paginate(r.db.WithContext(ctx), limit, offset).
		Order("created_at DESC").Order("id DESC").
		Find(&users).Error
	return users, translate("list users", err)
}

func (r *userRepo) ListRecent(ctx context.Context, limit int) ([]model.User, error) {
	return r.List(ctx, limit, 0)
}

func (r *userRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Count(&n).Error
	return n, translate("count users", err)
}

func (r *userRepo) HasAdmin(ctx context.Context) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Where("is_admin = ?", true).Count(&n).Error
	return n > 0, translate("count admins", err)
}

func (r *userRepo) Delete(ctx context.Context, id uint) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("user_id = ?", id).Delete(&model.VPNKey{}).Error; err != nil {
		return translate("delete user keys", err)
	}
	if err := db.Where("user_id = ?", id).Delete(&model.Subscription{}).Error; err != nil {
		return translate("delete user subscriptions", err)
	}
	if err := db.Where("user_id = ?", id).Delete(&model.EmailNotification{}).Error; err != nil {
		return translate("delete user notifications", err)
	}
	res := db.Delete(&model.User{}, id)
	if res.Error != nil {
		return translate("delete user", res.Error)
	}
	if res.RowsAffected == 0 {
		return translate("delete user", gorm.ErrRecordNotFound)
	}
	return nil
}
