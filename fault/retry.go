package fault

import (
	"context"
	"log"
	"time"
)

// Retry runs fn up to 1+retries times, retrying only transient failures
// (see Retryable) with linear backoff: attempt n waits n * backoff. The last
// error is returned unchanged so callers can still classify it.
func Retry(ctx context.Context, logger *log.Logger, retries int, backoff time.Duration, op string, fn func(context.Context) error) error {
	if logger == nil {
		logger = log.Default()
	}

	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * backoff
			logger.Printf("%s failed, retry %d/%d in %v: %v", op, attempt, retries, delay, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err = fn(ctx)
		if err == nil || !Retryable(err) {
			return err
		}
	}
	return err
}
