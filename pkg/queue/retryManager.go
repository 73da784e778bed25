package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/ds124wfegd/bookit/pkg/retry"
)

// ErrPermanent marks task failures that no retry can fix.
var ErrPermanent = errors.New("permanent task failure")

// Permanent wraps err so the queue sends the task straight to the DLQ.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// RetryManager manages retry logic for failed tasks
type RetryManager struct {
	maxRetries int
	backoff    retry.Policy
}

// NewRetryManager creates a new RetryManager
func NewRetryManager(maxRetries int, baseDelay time.Duration) *RetryManager {
	return &RetryManager{
		maxRetries: maxRetries,
		backoff:    retry.NewPolicy(maxRetries, baseDelay, 0),
	}
}

// ShouldRetry determines if a task should be retried and returns the delay
func (r *RetryManager) ShouldRetry(task *Task, err error) (bool, time.Duration) {
	if err == nil || errors.Is(err, ErrPermanent) {
		return false, 0
	}

	limit := task.MaxRetries
	if limit <= 0 {
		limit = r.maxRetries
	}
	if task.Attempts >= limit {
		return false, 0
	}

	return true, r.backoff.Backoff(task.Attempts)
}
