package model

import "time"

// Exception represents a system-level error that must be persisted for
// auditing and operator alerting.
type Exception struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Where the error happened
	Service string `gorm:"size:100;index" json:"service"` // e.g. "dispatcher"
	Module  string `gorm:"size:100;index" json:"module"`  // e.g. "bybit_connector"
	Method  string `gorm:"size:100" json:"method"`        // e.g. "PlaceOrder"

	Message string `gorm:"type:text" json:"message"`
	Stack   string `gorm:"type:text" json:"stack"`

	Level string `gorm:"size:20;index" json:"level"` // debug | info | warn | error | fatal

	// Extra context stored as JSON (optional)
	Context string `gorm:"type:jsonb" json:"context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (Exception) TableName() string {
	return "exceptions"
}
