package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BybitMainnetURL   string        `envconfig:"BYBIT_MAINNET_URL" default:"https://api.bybit.com"`
	BybitTestnetURL   string        `envconfig:"BYBIT_TESTNET_URL" default:"https://api-testnet.bybit.com"`
	BinanceMainnetURL string        `envconfig:"BINANCE_MAINNET_URL" default:"https://fapi.binance.com"`
	BinanceTestnetURL string        `envconfig:"BINANCE_TESTNET_URL" default:"https://testnet.binancefuture.com"`
	RecvWindow        int64         `envconfig:"EXCHANGE_RECV_WINDOW_MS" default:"5000"`
	RequestTimeout    time.Duration `envconfig:"EXCHANGE_REQUEST_TIMEOUT" default:"15s"`
	RequestsPerSec    int           `envconfig:"EXCHANGE_REQUESTS_PER_SEC" default:"5"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
