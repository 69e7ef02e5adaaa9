// Package retry implements bounded retries with exponential backoff for
// operations that fail transiently, such as arXiv or model API calls.
package retry

import (
	"context"
	"math/rand"
	"time"

	"ragresearch/internal/domain"
)

type Config struct {
	MaxRetries int           // additional attempts after the first
	BaseDelay  time.Duration // delay before the first retry, doubled each time
}

func DefaultConfig() Config {
	return Config{MaxRetries: 1, BaseDelay: 2 * time.Second}
}

// WithBackoff runs fn and retries it up to cfg.MaxRetries times when the
// returned error is transient. Permanent errors and context cancellation
// stop retrying immediately. The last error is returned unchanged.
func WithBackoff(ctx context.Context, cfg Config, fn func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= cfg.MaxRetries || !domain.IsTransient(err) {
			return err
		}
		delay := cfg.BaseDelay << uint(attempt)
		if delay <= 0 {
			delay = time.Millisecond
		}
		// Jitter keeps workers retrying the same upstream from hammering
		// it in lockstep.
		delay = time.Duration(rand.Int63n(int64(delay)) + int64(delay)/2)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
