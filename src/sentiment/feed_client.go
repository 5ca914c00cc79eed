package sentiment

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// Snapshot is one reading of the Fear & Greed index.
type Snapshot struct {
	Value          int
	Classification string
	CollectedAt    time.Time
}

// FeedClient reads the alternative.me Fear & Greed index.
type FeedClient struct {
	config *Config
	client *resty.Client
}

type feedResponse struct {
	Data []struct {
		Value               string `json:"value"`
		ValueClassification string `json:"value_classification"`
		Timestamp           string `json:"timestamp"`
	} `json:"data"`
}

func NewFeedClient(config *Config) *FeedClient {
	client := resty.New().
		SetTimeout(config.RequestTimeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= http.StatusInternalServerError ||
				r.StatusCode() == http.StatusTooManyRequests
		})

	return &FeedClient{config: config, client: client}
}

// WithBaseURL points the client at a different feed endpoint, for tests.
func (c *FeedClient) WithBaseURL(url string) *FeedClient {
	clone := *c
	cfg := *c.config
	cfg.FeedURL = url
	clone.config = &cfg
	return &clone
}

func (c *FeedClient) Fetch(ctx context.Context) (*Snapshot, error) {
	var body feedResponse

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("limit", "1").
		SetResult(&body).
		Get(c.config.FeedURL)

	if err != nil {
		return nil, fmt.Errorf("fetch fear & greed index: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("fear & greed feed returned status %d", resp.StatusCode())
	}
	if len(body.Data) == 0 {
		return nil, fmt.Errorf("fear & greed feed returned no data")
	}

	entry := body.Data[0]

	value, err := strconv.Atoi(entry.Value)
	if err != nil {
		return nil, fmt.Errorf("parse index value %q: %w", entry.Value, err)
	}
	if value < 0 || value > 100 {
		return nil, fmt.Errorf("index value %d out of range", value)
	}

	collectedAt := time.Now().UTC()
	if ts, err := strconv.ParseInt(entry.Timestamp, 10, 64); err == nil {
		collectedAt = time.Unix(ts, 0).UTC()
	}

	return &Snapshot{
		Value:          value,
		Classification: entry.ValueClassification,
		CollectedAt:    collectedAt,
	}, nil
}
