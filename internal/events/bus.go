package events

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Publisher is what emitting components depend on.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

type Handler func(ctx context.Context, e Event)

// Subscription is the handler table of one subsystem.
type Subscription struct {
	Subsystem string
	Handlers  map[Kind]Handler
}

type route struct {
	subsystem string
	handler   Handler
}

// Bus dispatches synchronously, in registration order. A panicking handler is logged and
// does not stop the remaining handlers.
type Bus struct {
	routes map[Kind][]route
	logger zerolog.Logger
}

var _ Publisher = (*Bus)(nil)

func NewBus(logger zerolog.Logger, subscriptions ...Subscription) *Bus {
	b := &Bus{
		routes: make(map[Kind][]route),
		logger: logger,
	}
	for _, sub := range subscriptions {
		for kind, h := range sub.Handlers {
			b.routes[kind] = append(b.routes[kind], route{subsystem: sub.Subsystem, handler: h})
		}
	}
	return b
}

func (b *Bus) Publish(ctx context.Context, e Event) {
	routes := b.routes[e.Kind()]
	if len(routes) == 0 {
		b.logger.Debug().Str("kind", e.Kind().String()).Msg("event has no subscribers")
		return
	}
	for _, r := range routes {
		b.dispatch(ctx, r, e)
	}
}

func (b *Bus) dispatch(ctx context.Context, r route, e Event) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error().
				Str("subsystem", r.subsystem).
				Str("kind", e.Kind().String()).
				Str("panic", fmt.Sprint(rec)).
				Msg("event handler panicked")
		}
	}()
	r.handler(ctx, e)
}

// Unhandled returns the kinds with no subscriber, for startup checks.
func (b *Bus) Unhandled() []Kind {
	var missing []Kind
	for _, k := range Kinds() {
		if len(b.routes[k]) == 0 {
			missing = append(missing, k)
		}
	}
	return missing
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
