package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ds124wfegd/bookit/internal/entity"
	"github.com/ds124wfegd/bookit/pkg/retry"
)

// storeCall runs fn under the store policy. Business errors pass through
// untouched; an exhausted retry budget becomes ErrStoreUnavailable.
func storeCall[T any](ctx context.Context, policy retry.Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := policy.Do(ctx, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	if err != nil {
		var zero T
		return zero, storeError(op, err)
	}
	return result, nil
}

func storeExec(ctx context.Context, policy retry.Policy, op string, fn func(ctx context.Context) error) error {
	return storeError(op, policy.Do(ctx, fn))
}

func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return fmt.Errorf("%w: %s: %w", entity.ErrStoreUnavailable, op, exhausted)
	}
	return err
}
