package sentiment

import (
	"context"
	"net/http"
	"time"

	"signalengine/src/model"
	"signalengine/src/repository"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const feedSource = "fear_greed_index"

// ReferencePriceFunc returns the BTC last price stored alongside each
// sentiment snapshot, so operators can correlate index moves with the market.
type ReferencePriceFunc func() (decimal.Decimal, error)

// Collector polls the Fear & Greed feed and appends snapshots to
// market_sentiment_history. The serving process only ever reads the latest
// row.
type Collector struct {
	config    *Config
	feed      *FeedClient
	refPrice  ReferencePriceFunc
	snapshots *repository.SentimentRepository
}

func NewCollector() *Collector {
	config := GetConfig()
	return &Collector{
		config:    config,
		feed:      NewFeedClient(config),
		refPrice:  BinanceReferencePrice(),
		snapshots: repository.NewSentimentRepository(),
	}
}

func (c *Collector) WithDB(db *gorm.DB) *Collector {
	clone := *c
	clone.snapshots = c.snapshots.WithDB(db)
	return &clone
}

func (c *Collector) WithFeed(feed *FeedClient) *Collector {
	clone := *c
	clone.feed = feed
	return &clone
}

func (c *Collector) WithReferencePrice(fn ReferencePriceFunc) *Collector {
	clone := *c
	clone.refPrice = fn
	return &clone
}

// Run polls until the context is cancelled. The first collection happens
// immediately so a fresh deployment is not blind for a full interval.
func (c *Collector) Run(ctx context.Context) error {
	c.collectOnce(ctx)

	ticker := time.NewTicker(c.config.FetchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.collectOnce(ctx)
		}
	}
}

func (c *Collector) collectOnce(ctx context.Context) {
	snapshot, err := c.feed.Fetch(ctx)
	if err != nil {
		logger.WithError(err).Error("[sentiment] failed to fetch index")
		return
	}

	price, err := c.refPrice()
	if err != nil {
		// The reference price is informational, a snapshot without one is
		// still worth keeping.
		logger.WithError(err).Warn("[sentiment] failed to fetch reference price")
		price = decimal.Zero
	}

	row := &model.MarketSentiment{
		Value:          snapshot.Value,
		Classification: snapshot.Classification,
		ReferencePrice: price,
		Source:         feedSource,
		CollectedAt:    snapshot.CollectedAt,
	}

	if err := c.snapshots.Create(ctx, row); err != nil {
		logger.WithError(err).Error("[sentiment] failed to persist snapshot")
		return
	}

	logger.WithFields(logger.Fields{
		"value":           snapshot.Value,
		"classification":  snapshot.Classification,
		"reference_price": price.String(),
		"collected_at":    snapshot.CollectedAt,
	}).Info("[sentiment] snapshot stored")
}

// BinanceReferencePrice captures the BTC/USDT last price from Binance spot.
func BinanceReferencePrice() ReferencePriceFunc {
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}
	exchange := binance.NewWithConfig(apiConfig)

	return func() (decimal.Decimal, error) {
		ticker, err := exchange.GetTicker(goex.BTC_USDT)
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromFloat(ticker.Last), nil
	}
}
