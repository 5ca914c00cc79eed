package model

import "time"

// Per-user dispatch outcomes. The webhook caller never sees these; operators
// query them through the internal status endpoint.
const (
	DispatchOutcomeSuccess = "success"
	DispatchOutcomeSkipped = "skipped"
	DispatchOutcomeFailed  = "failed"
)

// DispatchResult records the outcome of dispatching one signal to one user.
type DispatchResult struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SignalID   uint      `gorm:"index" json:"signal_id"`
	UserID     uint      `gorm:"index" json:"user_id"`
	ExchangeID uint      `gorm:"index" json:"exchange_id"`
	Outcome    string    `gorm:"size:20;not null" json:"outcome"`
	Reason     string    `gorm:"size:255" json:"reason,omitempty"`
	ErrorKind  string    `gorm:"size:50" json:"error_kind,omitempty"`
	PositionID *uint     `gorm:"index" json:"position_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (DispatchResult) TableName() string {
	return "dispatch_results"
}
