package model

import "time"

const (
	EnvironmentMainnet = "mainnet"
	EnvironmentTestnet = "testnet"
)

// Credential validation outcomes recorded by the keys CLI and the dispatcher.
const (
	CredentialValidationOK      = "ok"
	CredentialValidationInvalid = "invalid"
	CredentialValidationBlocked = "ip_blocked"
)

// UserExchange stores one user's API credentials for one exchange. The key
// and secret columns hold ciphertext produced by the security package; the
// plaintext only ever exists in memory during a dispatch.
type UserExchange struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	UserID          uint       `gorm:"not null;index:idx_user_exchange,unique" json:"user_id"`
	ExchangeID      uint       `gorm:"not null;index:idx_user_exchange,unique" json:"exchange_id"`
	APIKeyEnc       string     `gorm:"column:api_key;type:text" json:"-"`
	APISecretEnc    string     `gorm:"column:api_secret;type:text" json:"-"`
	Environment     string     `gorm:"size:20;not null;default:testnet" json:"environment"`
	Active          bool       `gorm:"not null;default:true" json:"active"`
	LastValidation  string     `gorm:"size:50" json:"last_validation"`
	LastValidatedAt *time.Time `json:"last_validated_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	Exchange *Exchange `gorm:"constraint:OnDelete:CASCADE" json:"exchange,omitempty"`
}

func (UserExchange) TableName() string {
	return "user_api_keys"
}
