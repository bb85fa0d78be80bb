package model

import (
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type NotificationTemplate string

const (
	TemplateWelcome             NotificationTemplate = "welcome"
	TemplatePaymentSuccess      NotificationTemplate = "payment_success"
	TemplateExpiringSoon        NotificationTemplate = "expiring_soon"
	TemplateExpired             NotificationTemplate = "expired"
	TemplateSubscriptionRevoked NotificationTemplate = "subscription_revoked"
)

var ErrImmutableNotification = errors.New("email notifications are append-only")

// EmailNotification is one row per notification attempt. SubscriptionID is
// set when the notification concerns a single subscription.
type EmailNotification struct {
	ID             uint                 `json:"id" gorm:"primaryKey"`
	UserID         uint                 `json:"user_id" gorm:"not null;index"`
	SubscriptionID *uint                `json:"subscription_id,omitempty" gorm:"index"`
	Email          string               `json:"email" gorm:"size:120;not null"`
	Subject        string               `json:"subject" gorm:"size:255;not null"`
	Template       NotificationTemplate `json:"template" gorm:"size:100;not null;index"`
	SentAt         time.Time            `json:"sent_at" gorm:"index"`
	Success        bool                 `json:"success" gorm:"default:false"`
	ErrorMessage   *string              `json:"error_message,omitempty" gorm:"type:text"`
	Payload        datatypes.JSONMap    `json:"payload,omitempty"`
}

func (EmailNotification) BeforeUpdate(tx *gorm.DB) error {
	return ErrImmutableNotification
}
