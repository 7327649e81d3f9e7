package albion

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// RetryPolicy describes how a single logical request is retried.
// It is shared by the price reads and the snapshot uploads.
type RetryPolicy struct {
	MaxAttempts     int
	Base            time.Duration
	JitterCeiling   time.Duration
	RetryableStatus func(code int) bool
}

// DefaultRetryPolicy: 4 attempts, 300ms * 2^k backoff plus up to 100ms jitter,
// retrying 429 and 502/503/504.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     4,
		Base:            300 * time.Millisecond,
		JitterCeiling:   100 * time.Millisecond,
		RetryableStatus: IsRetryableStatus,
	}
}

// IsRetryableStatus reports whether an upstream status is worth another try.
func IsRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Backoff is the wait after the failed attempt k (0-indexed).
func (p RetryPolicy) Backoff(k int) time.Duration {
	d := p.Base * time.Duration(1<<uint(k))
	if p.JitterCeiling > 0 {
		d += time.Duration(rand.Int63n(int64(p.JitterCeiling)))
	}
	return d
}

func (p RetryPolicy) retryable(code int) bool {
	if p.RetryableStatus == nil {
		return IsRetryableStatus(code)
	}
	return p.RetryableStatus(code)
}

// Do runs send until it returns a non-retryable result or the attempts are
// used up. Statuses outside the retryable set are handed back untouched so the
// caller can decide what a 404 means. When every failure was a status, one
// final unretried attempt is made and its result returned; otherwise the last
// transport error is. Cancellation of ctx is returned immediately.
func (p RetryPolicy) Do(ctx context.Context, send func(ctx context.Context) (*resty.Response, error)) (*resty.Response, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for k := 0; k < attempts; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := send(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = err
		} else if !p.retryable(resp.StatusCode()) {
			return resp, nil
		}

		if k == attempts-1 && lastErr != nil {
			break
		}
		if err := sleepContext(ctx, p.Backoff(k)); err != nil {
			return nil, err
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("request failed after %d attempts: %w", attempts, lastErr)
	}

	resp, err := send(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return resp, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
