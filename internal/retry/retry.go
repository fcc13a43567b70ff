// Package retry executes idempotent network operations with bounded
// exponential backoff. Callers wrapping non-idempotent requests must
// supply their own idempotency keys.
package retry

import (
	"context"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	MaxRetries = 3
	BaseDelay  = 1000 * time.Millisecond
	MaxDelay   = 10000 * time.Millisecond

	jitterMax = 1000 * time.Millisecond
)

// Operation is a deferred network call. It must be safe to re-invoke.
type Operation func() (*http.Response, error)

type Executor struct {
	maxRetries int
	logger     *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewExecutor(logger *zap.Logger) *Executor {
	return NewExecutorWithRetries(MaxRetries, logger)
}

// NewExecutorWithRetries overrides the retry budget. Zero means a
// single attempt with no delay.
func NewExecutorWithRetries(maxRetries int, logger *zap.Logger) *Executor {
	return &Executor{
		maxRetries: maxRetries,
		logger:     logger,
		sleep:      sleepCtx,
	}
}

// Do runs op, retrying up to MaxRetries additional times. A 429
// response honors a parsable Retry-After header, everything else uses
// exponential backoff with jitter capped at MaxDelay. Non-HTTP
// failures are retried only when the error message matches the known
// transient vocabulary; other errors propagate immediately. After
// exhaustion the last response is returned even if still unsuccessful,
// or the last error if the final attempt failed with one.
//
// Do blocks the calling goroutine; ctx only cuts the backoff sleeps
// short, it does not interrupt an in-flight attempt.
func (e *Executor) Do(ctx context.Context, op Operation) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		resp, err := op()
		if err != nil {
			lastErr = err
			if IsTransient(err) && attempt < e.maxRetries {
				delay := backoffDelay(attempt, "")
				e.logger.Warn("Transient failure, retrying",
					zap.Int("attempt", attempt+1),
					zap.Duration("delay", delay),
					zap.Error(err))
				if serr := e.sleep(ctx, delay); serr != nil {
					return nil, serr
				}
				continue
			}
			return nil, err
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < e.maxRetries {
			delay := backoffDelay(attempt, resp.Header.Get("Retry-After"))
			e.logger.Warn("Rate limited, retrying",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay))
			drain(resp)
			if serr := e.sleep(ctx, delay); serr != nil {
				return nil, serr
			}
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

// IsTransient reports whether err looks like a network failure that is
// expected to succeed on retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection refused",
		"connection reset",
		"timeout",
		"deadline exceeded",
		"no such host",
		"insufficient resources",
		"rate limit",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func backoffDelay(attempt int, retryAfter string) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.ParseInt(retryAfter, 10, 64); err == nil {
			return time.Duration(secs) * time.Second
		}
		// unparsable header falls back to exponential backoff
	}
	delay := BaseDelay<<uint(attempt) + time.Duration(rand.Int63n(int64(jitterMax)))
	if delay > MaxDelay {
		delay = MaxDelay
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func drain(resp *http.Response) {
	if resp.Body != nil {
		resp.Body.Close()
	}
}
