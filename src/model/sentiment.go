package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Allowed-direction policies derived from the Fear & Greed scale.
const (
	PolicyLongOnly  = "long_only"
	PolicyShortOnly = "short_only"
	PolicyBoth      = "both"
)

const (
	sentimentFearThreshold  = 30
	sentimentGreedThreshold = 80
)

// MarketSentiment is one snapshot of the external market-mood gauge.
// The collector appends rows on a fixed cadence; the serving process only
// ever reads the newest one.
type MarketSentiment struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	Value          int             `gorm:"not null" json:"value"`
	Classification string          `gorm:"size:50" json:"classification"`
	ReferencePrice decimal.Decimal `gorm:"type:numeric" json:"reference_price"`
	Source         string          `gorm:"size:100" json:"source"`
	CollectedAt    time.Time       `gorm:"index" json:"collected_at"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (MarketSentiment) TableName() string {
	return "market_sentiment_history"
}

// Policy maps the gauge value to the allowed-direction policy:
// extreme fear permits longs only, extreme greed permits shorts only.
func (m *MarketSentiment) Policy() string {
	return PolicyForValue(m.Value)
}

func PolicyForValue(value int) string {
	switch {
	case value < sentimentFearThreshold:
		return PolicyLongOnly
	case value > sentimentGreedThreshold:
		return PolicyShortOnly
	default:
		return PolicyBoth
	}
}
