package model

import "time"

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:100;not null;uniqueIndex" json:"username"`
	Email        string    `gorm:"size:255;index" json:"email"`
	PasswordHash string    `gorm:"size:255" json:"-"`
	Active       bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	RiskProfile *RiskProfile   `gorm:"foreignKey:UserID" json:"risk_profile,omitempty"`
	Exchanges   []UserExchange `gorm:"foreignKey:UserID" json:"exchanges,omitempty"`
}

type UpdateUserPayload struct {
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
}
