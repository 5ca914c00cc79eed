package connectors

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	logger "github.com/sirupsen/logrus"
)

const (
	defaultRetryAttempts   = 3 // initial call + 2 retries
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second
)

// Retry runs op with exponential backoff, retrying only errors the taxonomy
// classifies as transient. Permanent errors (credential, balance, exchange
// rejection) abort immediately.
func Retry(ctx context.Context, name string, op func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(newExponential(), defaultRetryAttempts-1),
		ctx,
	)

	attempt := 0
	wrapped := func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		logger.WithError(err).WithFields(map[string]interface{}{
			"op":      name,
			"attempt": attempt,
		}).Warn("transient exchange error, will retry")
		return err
	}

	return backoff.Retry(wrapped, policy)
}

func newExponential() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = defaultRetryBaseDelay
	b.MaxInterval = defaultRetryMaxBackoff
	return b
}
