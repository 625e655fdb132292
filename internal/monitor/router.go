package monitor

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/searchsync/internal/event"
)

// EventQueue stores events for deferred processing.
type EventQueue interface {
	AddEventToQueue(ctx context.Context, ev event.ChangeEvent) error
}

// Listener names registered by the router, in dispatch order.
const (
	ListenerImmediate = "monitor.immediate"
	ListenerDelayed   = "monitor.delayed"
	ListenerDisabled  = "monitor.disabled"
)

// Router installs the monitoring listeners on a dispatcher.
type Router struct {
	types         TypeSource
	processor     *Processor
	queue         EventQueue
	notifications *event.Dispatcher
	logger        *slog.Logger
}

// NewRouter creates a router. notifications receives ProcessingFinished and
// QueuingFinished; nil creates a dispatcher without listeners.
func NewRouter(types TypeSource, processor *Processor, queue EventQueue, notifications *event.Dispatcher, logger *slog.Logger) *Router {
	if notifications == nil {
		notifications = event.NewDispatcher()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		types:         types,
		processor:     processor,
		queue:         queue,
		notifications: notifications,
		logger:        logger,
	}
}

// Notifications returns the dispatcher used for completion notifications.
func (r *Router) Notifications() *event.Dispatcher { return r.notifications }

type typeKey struct{}

// Register adds the immediate, delayed and disabled listeners to d. The
// monitoring type is read once per dispatch and shared by the three listeners.
func (r *Router) Register(d *event.Dispatcher) {
	d.AddContextHook(r.snapshotType)
	d.AddListener(ListenerImmediate, r.immediate)
	d.AddListener(ListenerDelayed, r.delayed)
	d.AddListener(ListenerDisabled, r.disabled)
}

func (r *Router) snapshotType(ctx context.Context, v any) context.Context {
	if _, ok := v.(event.ChangeEvent); !ok {
		return ctx
	}
	return context.WithValue(ctx, typeKey{}, r.types.MonitoringType())
}

// typeOf returns the type captured for the current dispatch.
func (r *Router) typeOf(ctx context.Context) Type {
	if t, ok := ctx.Value(typeKey{}).(Type); ok {
		return t
	}
	return r.types.MonitoringType()
}

func (r *Router) immediate(ctx context.Context, v any) error {
	ev, ok := v.(event.ChangeEvent)
	if !ok {
		return nil
	}
	if r.typeOf(ctx) != Immediate && !ev.IsImmediateProcessingForced() {
		return nil
	}

	handled, err := r.processor.Process(ctx, ev)
	if err != nil {
		return err
	}
	if !handled {
		r.logger.Debug("monitor_event_passed_through",
			slog.String("table", ev.Table()),
			slog.Int("uid", ev.UID()))
		return nil
	}

	ev.StopPropagation(true)
	return r.notifications.Dispatch(ctx, event.ProcessingFinished{Event: ev})
}

func (r *Router) delayed(ctx context.Context, v any) error {
	ev, ok := v.(event.ChangeEvent)
	if !ok {
		return nil
	}
	if r.typeOf(ctx) != Delayed || ev.IsImmediateProcessingForced() {
		return nil
	}
	if event.TypeName(ev) == "" {
		return nil
	}

	if err := r.queue.AddEventToQueue(ctx, ev); err != nil {
		return err
	}
	r.logger.Debug("monitor_event_queued",
		slog.String("type", event.TypeName(ev)),
		slog.String("table", ev.Table()),
		slog.Int("uid", ev.UID()))
	return r.notifications.Dispatch(ctx, event.QueuingFinished{Event: ev})
}

func (r *Router) disabled(ctx context.Context, v any) error {
	ev, ok := v.(event.ChangeEvent)
	if !ok {
		return nil
	}
	if r.typeOf(ctx) != Disabled || ev.IsImmediateProcessingForced() {
		return nil
	}
	ev.StopPropagation(true)
	return nil
}
