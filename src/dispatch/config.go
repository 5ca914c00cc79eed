package dispatch

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Workers caps how many users are dispatched concurrently per signal.
	Workers int `envconfig:"DISPATCH_WORKERS" default:"4"`

	// QuoteCoin is the settlement currency balances are read in.
	QuoteCoin string `envconfig:"DISPATCH_QUOTE_COIN" default:"USDT"`

	// QueueSize bounds each per-symbol signal queue.
	QueueSize int `envconfig:"DISPATCH_QUEUE_SIZE" default:"64"`

	// FillRescanInterval is how often the fill listener re-checks for
	// newly activated credentials.
	FillRescanInterval time.Duration `envconfig:"FILL_RESCAN_INTERVAL" default:"1m"`
}

func GetConfig() *Config {
	config := &Config{}

	err := envconfig.Process("", config)
	if err != nil {
		panic(err.Error())
	}

	return config
}
