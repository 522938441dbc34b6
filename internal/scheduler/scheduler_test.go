package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ggrighi15/fusione-dev-sub001/internal/scheduler"
)

func TestSchedulerRunsTasks(t *testing.T) {
	var fast, failing, panicking atomic.Int32

	s := scheduler.New([]scheduler.Task{
		{Name: "fast", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
			fast.Add(1)
			return nil
		}},
		{Name: "failing", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
			failing.Add(1)
			return errors.New("store down")
		}},
		{Name: "panicking", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
			panicking.Add(1)
			panic("boom")
		}},
		{Name: "disabled", Interval: 0, Run: func(context.Context) error {
			t.Error("disabled task ran")
			return nil
		}},
	})
	s.Start(context.Background())
	s.Start(context.Background())

	require.Eventually(t, func() bool {
		return fast.Load() >= 3 && failing.Load() >= 3 && panicking.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	stopped := fast.Load()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, stopped, fast.Load())
}

func TestSchedulerStopsOnContextCancel(t *testing.T) {
	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())

	s := scheduler.New([]scheduler.Task{
		{Name: "tick", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
			runs.Add(1)
			return nil
		}},
	})
	s.Start(ctx)
	require.Eventually(t, func() bool { return runs.Load() > 0 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	s.Stop()
	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, after, runs.Load())
}

func TestStopWithoutStart(t *testing.T) {
	scheduler.New(nil).Stop()
}
