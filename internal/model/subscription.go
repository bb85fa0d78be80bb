package model

import (
	"time"

	"gshvpn_backend/pkg/subscription"
)

type Subscription struct {
	ID        uint                `json:"id" gorm:"primaryKey"`
	UserID    uint                `json:"user_id" gorm:"not null;index"`
	Plan      subscription.PlanID `json:"plan" gorm:"size:50;not null"`
	AmountUSD float64             `json:"amount_usd" gorm:"not null"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
	ExpiresAt *time.Time          `json:"expires_at"`
	IsActive  bool                `json:"is_active" gorm:"default:true"`
	PaymentID *string             `json:"payment_id" gorm:"size:255"`

	// İlişkiler
	User    User     `json:"-" gorm:"foreignKey:UserID"`
	VPNKeys []VPNKey `json:"-" gorm:"constraint:OnDelete:CASCADE;"`
}

func (s *Subscription) IsExpired(now time.Time) bool {
	return IsExpired(s.ExpiresAt, now)
}

// IsEntitling reports whether s currently grants access.
func (s *Subscription) IsEntitling(now time.Time) bool {
	return s.IsActive && !s.IsExpired(now)
}

// DaysRemaining returns whole days left, rounded up and never negative.
// Subscriptions without expiry return nil.
func (s *Subscription) DaysRemaining(now time.Time) *int {
	return DaysRemaining(s.ExpiresAt, now)
}
