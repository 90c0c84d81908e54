package services

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retry runs op with exponential backoff until it succeeds, fails
// permanently, or the attempt budget runs out. Only transient
// *ProviderError values are retried.
func Retry[T any](ctx context.Context, maxRetries uint64, op func(ctx context.Context) (T, error)) (T, error) {
	var result T

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 10 * time.Second

	err := backoff.Retry(func() error {
		var err error
		result, err = op(ctx)
		if err == nil {
			return nil
		}
		var pe *ProviderError
		if errors.As(err, &pe) && pe.Transient {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, maxRetries), ctx))

	return result, err
}
