package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"gshvpn_backend/internal/model"
)

type serverRepo struct {
	db *gorm.DB
}

func (r *serverRepo) Create(ctx context.Context, s *model.VPNServer) error {
	return translate("create server", r.db.WithContext(ctx).Create(s).Error)
}

func (r *serverRepo) Get(ctx context.Context, id uint) (*model.VPNServer, error) {
	var s model.VPNServer
	if err := r.db.WithContext(ctx).First(&s, id).Error; err != nil {
		return nil, translate("get server", err)
	}
	return &s, nil
}

func (r *serverRepo) List(ctx context.Context) ([]model.VPNServer, error) {
	var servers []model.VPNServer
	err := r.db.WithContext(ctx).Order("id ASC").Find(&servers).Error
	return servers, translate("list servers", err)
}

func (r *serverRepo) ListAvailable(ctx context.Context) ([]model.VPNServer, error) {
	var servers []model.VPNServer
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND active_clients < max_clients", true).
		Order("active_clients ASC").Order("id ASC").
		Find(&servers).Error
	return servers, translate("list available servers", err)
}

func (r *serverRepo) ClaimSlot(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.VPNServer{}).
		Where("id = ? AND is_active = ? AND active_clients < max_clients", id, true).
		UpdateColumn("active_clients", gorm.Expr("active_clients + ?", 1))
	if res.Error != nil {
		return false, translate("claim server slot", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *serverRepo) ReleaseSlot(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.VPNServer{}).
		Where("id = ? AND active_clients > 0", id).
		UpdateColumn("active_clients", gorm.Expr("active_clients - ?", 1))
	if res.Error != nil {
		return false, translate("release server slot", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *serverRepo) SetActive(ctx context.Context, id uint, active bool) error {
	res := r.db.WithContext(ctx).Model(&model.VPNServer{}).Where("id = ?", id).UpdateColumn("is_active", active)
	if res.Error != nil {
		return translate("set server active", res.Error)
	}
	if res.RowsAffected == 0 {
		return translate("set server active", gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *serverRepo) TouchHealthCheck(ctx context.Context, id uint, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.VPNServer{}).Where("id = ?", id).UpdateColumn("last_health_check", at)
	if res.Error != nil {
		return translate("touch health check", res.Error)
	}
	if res.RowsAffected == 0 {
		return translate("touch health check", gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *serverRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.VPNServer{}).Count(&n).Error
	return n, translate("count servers", err)
}
