package events_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ggrighi15/fusione-dev-sub001/internal/events"
)

func TestBusDispatch(t *testing.T) {
	var got []string

	bus := events.NewBus(zerolog.Nop(),
		events.Subscription{
			Subsystem: "alerting",
			Handlers: map[events.Kind]events.Handler{
				events.KindSuspiciousActivity: func(_ context.Context, e events.Event) {
					got = append(got, "alerting:"+e.(events.SuspiciousActivity).UserID)
				},
			},
		},
		events.Subscription{
			Subsystem: "metrics",
			Handlers: map[events.Kind]events.Handler{
				events.KindSuspiciousActivity: func(context.Context, events.Event) {
					got = append(got, "metrics")
				},
				events.KindUnusualLocation: func(context.Context, events.Event) {
					panic("boom")
				},
			},
		},
	)

	bus.Publish(context.Background(), events.SuspiciousActivity{UserID: "u1"})
	require.Equal(t, []string{"alerting:u1", "metrics"}, got)

	t.Run("panicking handler is contained", func(t *testing.T) {
		require.NotPanics(t, func() {
			bus.Publish(context.Background(), events.UnusualLocation{UserID: "u1"})
		})
	})

	t.Run("unhandled kinds are reported", func(t *testing.T) {
		require.ElementsMatch(t,
			[]events.Kind{events.KindCriticalSecurity, events.KindTwoFactorEnabled, events.KindCredentialsRevoked},
			bus.Unhandled())
	})
}

func TestKindString(t *testing.T) {
	for _, k := range events.Kinds() {
		require.NotEqual(t, "unknown", k.String())
	}
	require.Equal(t, "unknown", events.Kind(0).String())
}
