package connectors

import (
	"fmt"

	"signalengine/src/model"
)

// DefaultFactory builds real exchange clients sharing one rate-limiter
// registry. The dispatcher receives this as its ConnectorFactory; tests
// inject fakes instead.
func DefaultFactory(limiter *LimiterRegistry) ConnectorFactory {
	return func(exchangeName, apiKey, apiSecret, environment string) (ExchangeConnector, error) {
		switch exchangeName {
		case model.ExchangeBybit:
			return NewBybitClient(apiKey, apiSecret, environment, limiter), nil
		case model.ExchangeBinance:
			return NewBinanceClient(apiKey, apiSecret, environment, limiter), nil
		default:
			return nil, fmt.Errorf("exchange %s not supported", exchangeName)
		}
	}
}
