package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Signal actions form a closed set. Anything else is rejected at the
// ingestion boundary before it reaches the dispatch core.
const (
	SignalActionOpenLong  = "open_long"
	SignalActionOpenShort = "open_short"
	SignalActionClose     = "close"
)

const (
	DirectionLong  = "long"
	DirectionShort = "short"
)

// TradingSignal is the immutable audit record of one incoming webhook alert.
// Rows are created on receipt and never mutated afterwards; the idempotency
// key carries the duplicate-delivery guarantee via its unique index.
type TradingSignal struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	IdempotencyKey string          `gorm:"size:128;not null;uniqueIndex" json:"idempotency_key"`
	Symbol         string          `gorm:"size:50;not null;index" json:"symbol"`
	Action         string          `gorm:"size:20;not null" json:"action"`
	Price          decimal.Decimal `gorm:"type:numeric" json:"price"`
	Leverage       int             `json:"leverage"`
	Source         string          `gorm:"size:100" json:"source"`
	SignalTime     *time.Time      `json:"signal_time,omitempty"`
	ReceivedAt     time.Time       `json:"received_at"`
	CreatedAt      time.Time       `json:"created_at"`
}

// TableName keeps the audit-log table name explicit.
func (TradingSignal) TableName() string {
	return "trading_signals"
}

// Direction maps the signal action onto a position direction.
// Close signals have no direction of their own.
func (s *TradingSignal) Direction() string {
	switch s.Action {
	case SignalActionOpenLong:
		return DirectionLong
	case SignalActionOpenShort:
		return DirectionShort
	default:
		return ""
	}
}

// IsClose reports whether the signal asks to flatten an existing position.
func (s *TradingSignal) IsClose() bool {
	return s.Action == SignalActionClose
}
