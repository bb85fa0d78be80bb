package model

import "time"

// TokenLength is the length of an issued access token.
const TokenLength = 32

type VPNKey struct {
	ID             uint       `json:"id" gorm:"primaryKey"`
	UserID         uint       `json:"user_id" gorm:"not null;index"`
	SubscriptionID uint       `json:"subscription_id" gorm:"not null;index"`
	ServerID       *uint      `json:"server_id" gorm:"index"`
	Token          string     `json:"token" gorm:"size:64;uniqueIndex;not null"`
	ProviderKeyID  *string    `json:"provider_key_id" gorm:"size:100"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      *time.Time `json:"expires_at"`
	IsActive       bool       `json:"is_active" gorm:"default:true"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`

	Server *VPNServer `json:"server,omitempty" gorm:"foreignKey:ServerID;constraint:OnDelete:SET NULL;"`
}

func (k *VPNKey) IsExpired(now time.Time) bool {
	return IsExpired(k.ExpiresAt, now)
}

// IsUsable reports whether the key may currently be used to connect.
func (k *VPNKey) IsUsable(now time.Time) bool {
	return k.IsActive && !k.IsExpired(now)
}
