package event

import (
	"context"
	"fmt"
	"sync"
)

// ProcessingFinished is dispatched after an event was handled immediately.
type ProcessingFinished struct {
	Event ChangeEvent
}

// QueuingFinished is dispatched after an event was stored for deferred processing.
type QueuingFinished struct {
	Event ChangeEvent
}

// Stoppable is implemented by values whose dispatch can be short-circuited.
type Stoppable interface {
	IsPropagationStopped() bool
}

// ListenerFunc handles a dispatched value.
type ListenerFunc func(ctx context.Context, v any) error

// ContextHook derives the context shared by all listeners of one dispatch.
type ContextHook func(ctx context.Context, v any) context.Context

type listener struct {
	name string
	fn   ListenerFunc
}

// Dispatcher delivers values to listeners in registration order.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners []listener
	hooks     []ContextHook
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// AddListener appends a named listener.
func (d *Dispatcher) AddListener(name string, fn ListenerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, listener{name: name, fn: fn})
}

// AddContextHook registers a hook run once at the start of every dispatch.
func (d *Dispatcher) AddContextHook(fn ContextHook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks = append(d.hooks, fn)
}

// Listeners returns the listener names in order.
func (d *Dispatcher) Listeners() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, len(d.listeners))
	for i, l := range d.listeners {
		names[i] = l.name
	}
	return names
}

// Dispatch passes v to every listener until one stops propagation or fails.
func (d *Dispatcher) Dispatch(ctx context.Context, v any) error {
	d.mu.RLock()
	listeners := make([]listener, len(d.listeners))
	copy(listeners, d.listeners)
	hooks := make([]ContextHook, len(d.hooks))
	copy(hooks, d.hooks)
	d.mu.RUnlock()

	for _, h := range hooks {
		ctx = h(ctx, v)
	}

	for _, l := range listeners {
		if s, ok := v.(Stoppable); ok && s.IsPropagationStopped() {
			return nil
		}
		if err := l.fn(ctx, v); err != nil {
			return fmt.Errorf("listener %s: %w", l.name, err)
		}
	}
	return nil
}
