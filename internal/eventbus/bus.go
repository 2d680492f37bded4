// Package eventbus dispatches domain events to handlers in-process.
package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"syncademic/internal/apperr"
	"syncademic/internal/events"
)

// Handler reacts to one published event.
type Handler func(ctx context.Context, ev events.Event) error

// Publisher is what services depend on to emit events.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// Bus runs every handler registered for an event's exact type, in
// registration order, on the caller's goroutine. The handler table is
// copied at construction and never changes afterwards.
type Bus struct {
	logger   *slog.Logger
	handlers map[events.Type][]Handler
}

// New freezes handlers into a Bus.
func New(logger *slog.Logger, handlers map[events.Type][]Handler) *Bus {
	frozen := make(map[events.Type][]Handler, len(handlers))
	for t, hs := range handlers {
		frozen[t] = append([]Handler(nil), hs...)
	}
	return &Bus{logger: logger, handlers: frozen}
}

// Publish dispatches ev. It fails only when no handler is registered for
// the event type; handler errors and panics are logged and skipped.
func (b *Bus) Publish(ctx context.Context, ev events.Event) error {
	if ev == nil {
		return apperr.New(apperr.Programming, "published a nil event")
	}
	hs, ok := b.handlers[ev.EventType()]
	if !ok || len(hs) == 0 {
		return apperr.New(apperr.Programming, "no handlers registered for event type %s", ev.EventType())
	}

	for i, h := range hs {
		if err := b.run(ctx, h, ev); err != nil {
			b.logger.Error("Event handler failed", "eventType", ev.EventType(), "handler", i, "error", err)
		}
	}
	return nil
}

func (b *Bus) run(ctx context.Context, h Handler, ev events.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(ctx, ev)
}
