package model

import "time"

type VPNServer struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	Name            string     `json:"name" gorm:"size:100;not null"`
	Slug            string     `json:"slug" gorm:"size:120;uniqueIndex;not null"`
	Host            string     `json:"host" gorm:"size:255;not null"`
	Port            int        `json:"port" gorm:"default:22"`
	ManagementURL   string     `json:"-" gorm:"size:500"`
	MaxClients      int        `json:"max_clients" gorm:"not null;default:5"`
	ActiveClients   int        `json:"active_clients" gorm:"not null;default:0"`
	IsActive        bool       `json:"is_active" gorm:"default:true"`
	CreatedAt       time.Time  `json:"created_at"`
	LastHealthCheck *time.Time `json:"last_health_check"`
}

// IsAvailable reports whether the server can take one more client.
func (s *VPNServer) IsAvailable() bool {
	return s.IsActive && s.ActiveClients < s.MaxClients
}

func (s *VPNServer) LoadPercentage() float64 {
	if s.MaxClients == 0 {
		return 100
	}
	return float64(s.ActiveClients) / float64(s.MaxClients) * 100
}
