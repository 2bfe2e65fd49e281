package collector

import (
	"context"
	"time"

	"github.com/avast/retry-go"
	"github.com/sirupsen/logrus"
)

const (
	DefaultRetryAttempts uint = 3
	DefaultRetryDelay         = 1 * time.Second
)

// Retry calls fn until it succeeds or attempts are used up, pausing a fixed
// delay between calls. The last error is returned unchanged.
func Retry(ctx context.Context, logger logrus.FieldLogger, name string, attempts uint, delay time.Duration, fn func() error) error {
	if attempts == 0 {
		attempts = 1
	}
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.WithFields(logrus.Fields{
				"op":      name,
				"attempt": n + 1,
				"of":      attempts,
			}).WithError(err).Warn("Attempt failed")
		}),
	)
}
