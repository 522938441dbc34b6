// Package storecall bounds store calls with a timeout and retries idempotent reads once.
package storecall

import (
	"context"
	"time"

	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
)

// Exec runs a write. A timeout or cancellation is reported as a transient error, never as
// a missing or invalid artifact.
func Exec(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	_, err := call(ctx, timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// ExecResult is Exec for writes that report a value, such as rows affected.
func ExecResult[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	return call(ctx, timeout, fn)
}

// Query runs an idempotent read and retries it once when the first attempt fails
// transiently and the caller is still waiting.
func Query[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	v, err := call(ctx, timeout, fn)
	if err == nil || !autherrors.IsTransient(err) || ctx.Err() != nil {
		return v, err
	}
	return call(ctx, timeout, fn)
}

func call[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	v, err := fn(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return v, autherrors.Transient(err)
		}
		return v, autherrors.FromContext(err)
	}
	return v, nil
}
