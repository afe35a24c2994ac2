// Package retry wraps network-touching operations in a fixed-attempts,
// fixed-delay policy. Transient push/pull and download failures are
// expected; genuine errors propagate once the budget is exhausted.
package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"relcli/internal/logger"
)

// Do runs op up to attempts times, sleeping delay between tries. Every
// failed attempt is logged with the label before the next try, so an
// operator can see which operation is flaking and why.
func Do(log logger.Logger, label string, attempts int, delay time.Duration, op func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1))

	attempt := 0
	return backoff.RetryNotify(
		func() error {
			attempt++
			return op()
		},
		policy,
		func(err error, next time.Duration) {
			log.Warn("operation failed, retrying",
				"op", label,
				"attempt", attempt,
				"retry_in", next.String(),
				"error", err.Error(),
			)
		},
	)
}
