package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultLeverage             = 5
	DefaultTakeProfitMultiplier = 2
	DefaultStopLossMultiplier   = 3
	DefaultBalancePercent       = 30
	DefaultMaxOpenPositions     = 2
)

// RiskProfile holds a user's per-trade risk settings. Profiles are created at
// onboarding and only ever soft-disabled, never deleted.
type RiskProfile struct {
	ID                   uint            `gorm:"primaryKey" json:"id"`
	UserID               uint            `gorm:"not null;uniqueIndex" json:"user_id"`
	Leverage             int             `gorm:"not null;default:5" json:"leverage"`
	TakeProfitMultiplier decimal.Decimal `gorm:"type:numeric;not null" json:"take_profit_multiplier"`
	StopLossMultiplier   decimal.Decimal `gorm:"type:numeric;not null" json:"stop_loss_multiplier"`
	BalancePercent       int             `gorm:"not null;default:30" json:"balance_percent"`
	MaxOpenPositions     int             `gorm:"not null;default:2" json:"max_open_positions"`
	Disabled             bool            `gorm:"not null;default:false" json:"disabled"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

func (RiskProfile) TableName() string {
	return "risk_profiles"
}

// DefaultRiskProfile returns the settings applied at onboarding before the
// user or an admin tunes anything.
func DefaultRiskProfile(userID uint) *RiskProfile {
	return &RiskProfile{
		UserID:               userID,
		Leverage:             DefaultLeverage,
		TakeProfitMultiplier: decimal.NewFromInt(DefaultTakeProfitMultiplier),
		StopLossMultiplier:   decimal.NewFromInt(DefaultStopLossMultiplier),
		BalancePercent:       DefaultBalancePercent,
		MaxOpenPositions:     DefaultMaxOpenPositions,
	}
}
