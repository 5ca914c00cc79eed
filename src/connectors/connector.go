package connectors

import (
	"context"

	"github.com/shopspring/decimal"
)

// OrderRequest is the exchange-agnostic order the dispatcher builds.
type OrderRequest struct {
	Symbol     string
	Direction  string // model.DirectionLong / model.DirectionShort
	Size       decimal.Decimal
	TakeProfit decimal.Decimal
	StopLoss   decimal.Decimal
	ClientID   string
	ReduceOnly bool
}

// OrderResult is what the dispatcher persists after acceptance.
type OrderResult struct {
	ExchangeOrderID string
}

// ExchangePosition is a live position as the exchange reports it, used by
// close dispatches and the reconciliation job.
type ExchangePosition struct {
	Symbol    string
	Direction string
	Size      decimal.Decimal
}

// ExchangeConnector is the per-user, per-credential client the dispatcher
// talks to. Implementations wrap one exchange's REST API with signing,
// shared rate limiting and transient-only retries.
type ExchangeConnector interface {
	Name() string

	// AvailableBalance returns the free quote-currency balance.
	AvailableBalance(ctx context.Context, coin string) (decimal.Decimal, error)

	// PlaceOrder submits a market order with attached TP/SL levels.
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)

	// OpenPositions lists live positions for the symbol (all symbols when empty).
	OpenPositions(ctx context.Context, symbol string) ([]ExchangePosition, error)

	// ClosePositions flattens every open position on the symbol with
	// reduce-only market orders.
	ClosePositions(ctx context.Context, symbol string) error

	// ValidateCredentials performs a cheap authenticated call to verify the
	// key, secret and IP whitelist.
	ValidateCredentials(ctx context.Context) error
}

// ConnectorFactory builds a connector for one user's decrypted credentials.
// The dispatcher depends on this instead of concrete clients so tests can
// substitute fakes.
type ConnectorFactory func(exchangeName, apiKey, apiSecret, environment string) (ExchangeConnector, error)
