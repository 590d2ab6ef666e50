package realtime

import (
	"context"
	"errors"
	"time"

	"plugin/backend/services/marketplace/internal/apperr"
	"plugin/backend/services/marketplace/internal/store"
)

// DefaultAwaitTimeout bounds the wait for the first snapshot after a write.
const DefaultAwaitTimeout = 15 * time.Second

var errNoSnapshot = errors.New("realtime: no snapshot before timeout")

// SubscribeFunc opens a typed subscription.
type SubscribeFunc[T any] func(ctx context.Context, fn func(T, error)) (store.CancelFunc, error)

// AwaitFirst opens a subscription, returns its first delivery and cancels it. A timeout of
// zero means DefaultAwaitTimeout. Running out of time is a transient error.
func AwaitFirst[T any](ctx context.Context, timeout time.Duration, subscribe SubscribeFunc[T]) (T, error) {
	var zero T
	if timeout <= 0 {
		timeout = DefaultAwaitTimeout
	}
	ctx, cancelCtx := context.WithTimeout(ctx, timeout)
	defer cancelCtx()

	type result struct {
		v   T
		err error
	}
	first := make(chan result, 1)

	cancel, err := subscribe(ctx, func(v T, err error) {
		select {
		case first <- result{v: v, err: err}:
		default:
		}
	})
	if err != nil {
		return zero, err
	}
	defer cancel()

	select {
	case r := <-first:
		return r.v, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, apperr.Transient("await first snapshot", errNoSnapshot)
		}
		return zero, ctx.Err()
	}
}
