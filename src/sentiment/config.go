package sentiment

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// FeedURL is the Fear & Greed index endpoint.
	FeedURL string `envconfig:"SENTIMENT_FEED_URL" default:"https://api.alternative.me/fng/"`

	RequestTimeout time.Duration `envconfig:"SENTIMENT_REQUEST_TIMEOUT" default:"10s"`

	// FetchInterval is how often the collector polls the feed. The index
	// itself updates daily, polling hourly just limits staleness after
	// restarts.
	FetchInterval time.Duration `envconfig:"SENTIMENT_FETCH_INTERVAL" default:"1h"`
}

func GetConfig() *Config {
	config := &Config{}

	err := envconfig.Process("", config)
	if err != nil {
		panic(err.Error())
	}

	return config
}
