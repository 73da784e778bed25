// Package retry runs calls to external stores under a per-attempt timeout and
// a small retry budget reserved for transient connectivity failures.
package retry

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/lib/pq"
)

const (
	defaultAttempts  = 3
	defaultBaseDelay = 50 * time.Millisecond
)

// Policy bounds a single logical store call.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Timeout   time.Duration // per attempt, zero means no extra deadline

	// Retryable overrides IsTransient when set.
	Retryable func(error) bool
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry budget exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

func NewPolicy(attempts int, baseDelay, timeout time.Duration) Policy {
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	return Policy{
		Attempts:  attempts,
		BaseDelay: baseDelay,
		MaxDelay:  baseDelay * 16, // Maximum 16x base delay
		Timeout:   timeout,
	}
}

// Do calls fn until it succeeds, fails with a non-retryable error, the budget
// runs out or ctx is done.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = p.call(ctx, fn)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		}
		if !p.retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-time.After(p.Backoff(attempt)):
		}
	}

	return &ExhaustedError{Attempts: attempts, Err: err}
}

func (p Policy) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.Timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return fn(attemptCtx)
}

func (p Policy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return IsTransient(err)
}

// Backoff calculates exponential backoff delay with jitter
func (p Policy) Backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = base * 16
	}
	if attempt <= 0 {
		return base
	}

	// Exponential backoff: base * 2^(attempt-1)
	backoff := base * time.Duration(1<<(attempt-1))
	if backoff <= 0 || backoff > maxDelay {
		backoff = maxDelay
	}

	// Apply jitter (±25%)
	if quarter := int64(backoff / 4); quarter > 0 {
		jitter := time.Duration(rand.Int63n(quarter))
		if rand.Intn(2) == 0 {
			backoff += jitter
		} else {
			backoff -= jitter
		}
	}

	if backoff > maxDelay {
		backoff = maxDelay
	}
	return backoff
}

// IsTransient reports connectivity failures that are worth another attempt.
// Business errors (not found, capacity exceeded, constraint violations) are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// connection_exception class and cannot_connect_now
		return pqErr.Code.Class() == "08" || pqErr.Code == "57P03"
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
