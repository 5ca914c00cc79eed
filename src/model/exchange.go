package model

import "time"

// Exchange names known to the connector registry.
const (
	ExchangeBybit   = "bybit"
	ExchangeBinance = "binance"
)

type Exchange struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:50;not null;uniqueIndex" json:"name"`
	Active    bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Exchange) TableName() string {
	return "exchanges"
}
