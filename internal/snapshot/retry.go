package snapshot

import (
	"context"
	"errors"
	"time"

	"github.com/xkilldash9x/seatwatch/api/schemas"
)

// sleepFunc waits for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retryStale runs fn up to attempts times, pausing delay between tries. Only
// stale-element failures are retried; anything else is returned at once.
func retryStale[T any](ctx context.Context, attempts int, delay time.Duration, sleep sleepFunc, fn func() (T, error)) (T, error) {
	var (
		zero T
		err  error
	)
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		var v T
		v, err = fn()
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, schemas.ErrStaleElement) {
			return zero, err
		}
		if i < attempts-1 {
			if sleepErr := sleep(ctx, delay); sleepErr != nil {
				return zero, sleepErr
			}
		}
	}
	return zero, err
}
