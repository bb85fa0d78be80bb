package model

import (
	"strings"
	"time"
)

type User struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	Email        string     `json:"email" gorm:"size:120;uniqueIndex;not null"`
	PasswordHash string     `json:"-" gorm:"size:256;not null"`
	IsAdmin      bool       `json:"is_admin" gorm:"default:false"`
	IsActive     bool       `json:"is_active" gorm:"default:true"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`

	// İlişkiler
	Subscriptions []Subscription      `json:"-" gorm:"constraint:OnDelete:CASCADE;"`
	VPNKeys       []VPNKey            `json:"-" gorm:"constraint:OnDelete:CASCADE;"`
	Notifications []EmailNotification `json:"-" gorm:"constraint:OnDelete:CASCADE;"`
}

// NormalizeEmail is the canonical form used for storage and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u *User) GetPublicProfile() map[string]interface{} {
	return map[string]interface{}{
		"id":         u.ID,
		"email":      u.Email,
		"is_admin":   u.IsAdmin,
		"created_at": u.CreatedAt,
		"last_login": u.LastLogin,
	}
}
