package publish

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy controls upload retries with exponential backoff and jitter.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first.
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Jitter is a fraction of the computed delay (0.25 = ±25%).
	Jitter float64
}

// DefaultRetryPolicy returns the policy used by New.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:       3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Jitter:         0.25,
	}
}

// retry runs fn until it succeeds, returns a non-retryable error, runs out
// of attempts, or ctx is done.
func (rp RetryPolicy) retry(ctx context.Context, key string, fn func(context.Context) error) error {
	attempts := max(rp.Attempts, 1)

	var err error
	for attempt := range attempts {
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil || !retryable(err) || attempt == attempts-1 {
			return err
		}

		zap.L().Warn("publish: retrying upload",
			zap.String("key", key),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)

		timer := time.NewTimer(rp.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

func (rp RetryPolicy) backoff(attempt int) time.Duration {
	delay := float64(rp.InitialBackoff) * math.Pow(2, float64(attempt))
	if rp.MaxBackoff > 0 {
		delay = min(delay, float64(rp.MaxBackoff))
	}
	if rp.Jitter > 0 {
		delay += (rand.Float64()*2 - 1) * delay * rp.Jitter
	}
	return time.Duration(max(delay, 0))
}

// statusCoder matches service response errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatusCode() int
}

// retryable reports whether err is a throttle, a server-side failure or a
// network timeout.
func retryable(err error) bool {
	var sc statusCoder
	if errors.As(err, &sc) {
		switch sc.HTTPStatusCode() {
		case 408, 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
