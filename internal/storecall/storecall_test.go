package storecall_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
	"github.com/ggrighi15/fusione-dev-sub001/internal/storecall"
)

func TestQueryRetriesTransientOnce(t *testing.T) {
	calls := 0
	v, err := storecall.Query(context.Background(), time.Second, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, autherrors.Transient(errors.New("connection reset"))
		}
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.Equal(t, 2, calls)
}

func TestQueryDoesNotRetryTerminalErrors(t *testing.T) {
	calls := 0
	_, err := storecall.Query(context.Background(), time.Second, func(context.Context) (int, error) {
		calls++
		return 0, autherrors.ErrNotFound
	})
	require.ErrorIs(t, err, autherrors.ErrNotFound)
	require.Equal(t, 1, calls)
}

func TestExecTimeoutIsTransient(t *testing.T) {
	err := storecall.Exec(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.True(t, autherrors.IsTransient(err))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecSlowStoreReturningOwnError(t *testing.T) {
	err := storecall.Exec(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return errors.New("driver: interrupted")
	})
	require.True(t, autherrors.IsTransient(err))
}
