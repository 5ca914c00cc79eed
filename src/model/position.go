package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position lifecycle: pending (order submitted) -> open (fill confirmed)
// -> closed, or error when the exchange rejected the order or reconciliation
// gave up. Only open rows count against a user's max_open_positions.
const (
	PositionStatusPending = "pending"
	PositionStatusOpen    = "open"
	PositionStatusClosed  = "closed"
	PositionStatusError   = "error"
)

type Position struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	UserID          uint            `gorm:"index" json:"user_id"`
	ExchangeID      uint            `gorm:"index" json:"exchange_id"`
	SignalID        uint            `gorm:"index" json:"signal_id"`
	Symbol          string          `gorm:"size:50;not null" json:"symbol"`
	Direction       string          `gorm:"size:10;not null" json:"direction"`
	EntryPrice      decimal.Decimal `gorm:"type:numeric" json:"entry_price"`
	TakeProfitPrice decimal.Decimal `gorm:"type:numeric" json:"take_profit_price"`
	StopLossPrice   decimal.Decimal `gorm:"type:numeric" json:"stop_loss_price"`
	Size            decimal.Decimal `gorm:"type:numeric" json:"size"`
	Status          string          `gorm:"size:50;not null;default:pending" json:"status"`
	ExchangeOrderID string          `gorm:"size:255;index" json:"exchange_order_id"`
	StatusReason    string          `gorm:"size:255" json:"status_reason,omitempty"`
	OpenedAt        *time.Time      `json:"opened_at,omitempty"`
	ClosedAt        *time.Time      `json:"closed_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}
