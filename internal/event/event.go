package event

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

const (
	// maxInFlight bounds the number of concurrently running handlers so a
	// burst of settlements cannot spawn unbounded goroutines.
	maxInFlight = 1024

	handlerTimeout = 30 * time.Second
)

type Event interface {
	Name() string
}

type Handler func(ctx context.Context, e Event) error

// Bus is an in-memory publish/subscribe bus. Handlers run asynchronously;
// a handler error or panic is logged and never reaches the publisher, so the
// submission path cannot fail because a listener did.
type Bus struct {
	slots    chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewBus() *Bus {
	return &Bus{
		slots:    make(chan struct{}, maxInFlight),
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers a handler for the named event. All subscriptions
// happen during server wiring, before the first Publish.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[name] = append(b.handlers[name], h)
}

// Publish dispatches the event to every handler subscribed to its name.
// It blocks only while acquiring a dispatch slot.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, h := range b.handlers[e.Name()] {
		b.dispatch(ctx, h, e)
	}
}

func (b *Bus) dispatch(ctx context.Context, h Handler, e Event) {
	b.wg.Add(1)
	b.slots <- struct{}{}

	go func() {
		// The handler outlives the publishing request, so it gets its own
		// deadline detached from the request context.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), handlerTimeout)
		defer func() {
			if r := recover(); r != nil {
				slog.ErrorContext(ctx, "event: handler panicked",
					"event", e.Name(),
					"error", fmt.Errorf("%v, stack: %s", r, debug.Stack()),
				)
			}

			cancel()
			<-b.slots
			b.wg.Done()
		}()

		if err := h(ctx, e); err != nil {
			slog.ErrorContext(ctx, "event: handler failed",
				"event", e.Name(),
				"error", err,
			)
		}
	}()
}

// Stop waits for every in-flight handler to finish.
func (b *Bus) Stop() {
	b.wg.Wait()
}
