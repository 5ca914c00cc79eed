package gate

import (
	"fmt"
	"time"

	"signalengine/src/model"

	logger "github.com/sirupsen/logrus"
)

// DefaultMaxAge is how stale the sentiment gauge may be before the gate
// stops trusting it and fails open.
const DefaultMaxAge = 24 * time.Hour

type Decision struct {
	Allowed bool
	Reason  string
}

// Gate maps the current market sentiment onto the set of signal directions
// allowed to enter the dispatch pipeline.
type Gate struct {
	maxAge time.Duration
	now    func() time.Time
}

func New(maxAge time.Duration) *Gate {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Gate{maxAge: maxAge, now: time.Now}
}

// WithNow overrides the clock. Useful for tests.
func (g *Gate) WithNow(now func() time.Time) *Gate {
	return &Gate{maxAge: g.maxAge, now: now}
}

// Validate decides whether the signal may proceed given the latest sentiment
// snapshot. Close signals always pass: flattening a position must never be
// blocked by market mood. When the snapshot is missing or older than maxAge
// the gate fails open, and the fallback is always logged.
func (g *Gate) Validate(signal *model.TradingSignal, sentiment *model.MarketSentiment) Decision {
	if signal.IsClose() {
		return Decision{Allowed: true, Reason: "close signals bypass the sentiment gate"}
	}

	if sentiment == nil || g.now().Sub(sentiment.CollectedAt) > g.maxAge {
		logger.WithFields(map[string]interface{}{
			"symbol": signal.Symbol,
			"action": signal.Action,
		}).Warn("sentiment unavailable — permitting by default")

		return Decision{Allowed: true, Reason: "sentiment unavailable — permitting by default"}
	}

	policy := sentiment.Policy()
	direction := signal.Direction()

	switch policy {
	case model.PolicyBoth:
		return Decision{Allowed: true, Reason: fmt.Sprintf("sentiment %d allows both directions", sentiment.Value)}
	case model.PolicyLongOnly:
		if direction == model.DirectionLong {
			return Decision{Allowed: true, Reason: fmt.Sprintf("sentiment %d allows longs", sentiment.Value)}
		}
	case model.PolicyShortOnly:
		if direction == model.DirectionShort {
			return Decision{Allowed: true, Reason: fmt.Sprintf("sentiment %d allows shorts", sentiment.Value)}
		}
	}

	return Decision{
		Allowed: false,
		Reason:  fmt.Sprintf("%s not permitted while sentiment is %d (%s)", direction, sentiment.Value, policy),
	}
}
