package connectors

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// LimiterRegistry holds one token bucket per exchange so concurrent user
// dispatches share a single outbound budget instead of multiplying it.
type LimiterRegistry struct {
	perSecond int
	burst     int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewLimiterRegistry(perSecond, burst int) *LimiterRegistry {
	if perSecond <= 0 {
		perSecond = 5
	}
	if burst <= 0 {
		burst = perSecond
	}
	return &LimiterRegistry{
		perSecond: perSecond,
		burst:     burst,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Wait blocks until the exchange's bucket has a token or ctx is done.
func (lr *LimiterRegistry) Wait(ctx context.Context, exchange string) error {
	return lr.limiter(exchange).Wait(ctx)
}

func (lr *LimiterRegistry) limiter(exchange string) *rate.Limiter {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	l, ok := lr.limiters[exchange]
	if !ok {
		l = rate.NewLimiter(rate.Limit(lr.perSecond), lr.burst)
		lr.limiters[exchange] = l
	}
	return l
}
