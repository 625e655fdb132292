package monitor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchsync/internal/event"
)

type recordingHandlers struct {
	calls []string
	err   error
}

func (h *recordingHandlers) record(name string) error {
	h.calls = append(h.calls, name)
	return h.err
}

func (h *recordingHandlers) ProcessRecordUpdate(_ context.Context, _ int, _ string, _ event.Fields) error {
	return h.record("update")
}

func (h *recordingHandlers) ProcessRecordMove(_ context.Context, _ int, _ string) error {
	return h.record("move")
}

func (h *recordingHandlers) ProcessVersionSwap(_ context.Context, _ int, _ string) error {
	return h.record("swap")
}

func (h *recordingHandlers) ProcessContentElementDeletion(_ context.Context, _ int) error {
	return h.record("content_delete")
}

func (h *recordingHandlers) CollectGarbage(_ context.Context, _ string, _ int) error {
	return h.record("garbage")
}

func (h *recordingHandlers) HandlePageMovement(_ context.Context, _ int) error {
	return h.record("page_move")
}

func (h *recordingHandlers) PerformRecordGarbageCheck(_ context.Context, _ int, _ string, _ event.Fields, _ bool) error {
	return h.record("garbage_check")
}

type memoryQueue struct {
	events []event.ChangeEvent
}

func (q *memoryQueue) AddEventToQueue(_ context.Context, ev event.ChangeEvent) error {
	q.events = append(q.events, ev)
	return nil
}

type unknownEvent struct{ event.Base }

type setup struct {
	handlers *recordingHandlers
	queue    *memoryQueue
	dispatch *event.Dispatcher
	notified []any
}

func newSetup(t Type) *setup {
	s := &setup{handlers: &recordingHandlers{}, queue: &memoryQueue{}, dispatch: event.NewDispatcher()}
	notifications := event.NewDispatcher()
	notifications.AddListener("test", func(_ context.Context, v any) error {
		s.notified = append(s.notified, v)
		return nil
	})
	router := NewRouter(StaticType(t), NewProcessor(s.handlers, s.handlers), s.queue, notifications, nil)
	router.Register(s.dispatch)
	return s
}

func TestParseType(t *testing.T) {
	tests := []struct {
		input   string
		want    Type
		wantErr bool
	}{
		{input: "immediate", want: Immediate},
		{input: "Delayed", want: Delayed},
		{input: "disabled", want: Disabled},
		{input: "1", want: Delayed},
		{input: "2", want: Disabled},
		{input: "sometimes", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRouter_ListenerOrder(t *testing.T) {
	s := newSetup(Immediate)
	assert.Equal(t, []string{ListenerImmediate, ListenerDelayed, ListenerDisabled}, s.dispatch.Listeners())
}

func TestRouter_Disabled(t *testing.T) {
	events := []event.ChangeEvent{
		event.NewRecordUpdated(1, "tx_foo", nil),
		event.NewRecordDeleted(2, "tx_foo"),
		event.NewPageMoved(3),
		&unknownEvent{Base: event.NewBase(4, "tx_bar", nil)},
	}
	for _, ev := range events {
		s := newSetup(Disabled)
		require.NoError(t, s.dispatch.Dispatch(context.Background(), ev))
		assert.True(t, ev.IsPropagationStopped())
		assert.Empty(t, s.handlers.calls)
		assert.Empty(t, s.queue.events)
		assert.Empty(t, s.notified)
	}
}

func TestRouter_ImmediateRecordUpdated(t *testing.T) {
	s := newSetup(Immediate)
	ev := event.NewRecordUpdated(1, "tx_foo", nil)

	require.NoError(t, s.dispatch.Dispatch(context.Background(), ev))

	assert.Equal(t, []string{"update"}, s.handlers.calls)
	require.Len(t, s.notified, 1)
	finished, ok := s.notified[0].(event.ProcessingFinished)
	require.True(t, ok)
	assert.Same(t, ev, finished.Event)
	assert.True(t, finished.Event.IsPropagationStopped())
}

func TestRouter_ImmediateRouting(t *testing.T) {
	tests := []struct {
		ev   event.ChangeEvent
		want string
	}{
		{ev: event.NewRecordDeleted(1, "tx_foo"), want: "garbage"},
		{ev: event.NewPageMoved(1), want: "page_move"},
		{ev: event.NewRecordGarbageCheck(1, "tx_foo", nil, false), want: "garbage_check"},
		{ev: event.NewRecordMoved(1, "tx_foo"), want: "move"},
		{ev: event.NewVersionSwapped(1, "tx_foo"), want: "swap"},
		{ev: event.NewContentElementDeleted(1), want: "content_delete"},
	}
	for _, tt := range tests {
		t.Run(event.TypeName(tt.ev), func(t *testing.T) {
			s := newSetup(Immediate)
			require.NoError(t, s.dispatch.Dispatch(context.Background(), tt.ev))
			assert.Equal(t, []string{tt.want}, s.handlers.calls)
		})
	}
}

func TestRouter_ImmediateUnknownPassesThrough(t *testing.T) {
	s := newSetup(Immediate)
	ev := &unknownEvent{Base: event.NewBase(1, "tx_foo", nil)}

	require.NoError(t, s.dispatch.Dispatch(context.Background(), ev))
	assert.False(t, ev.IsPropagationStopped())
	assert.Empty(t, s.handlers.calls)
	assert.Empty(t, s.notified)
}

func TestRouter_ImmediateHandlerErrorPropagates(t *testing.T) {
	s := newSetup(Immediate)
	s.handlers.err = errors.New("solr down")

	err := s.dispatch.Dispatch(context.Background(), event.NewRecordUpdated(1, "tx_foo", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "solr down")
	assert.Empty(t, s.notified)
}

func TestRouter_Delayed(t *testing.T) {
	s := newSetup(Delayed)
	ev := event.NewRecordUpdated(1, "tx_foo", nil)

	require.NoError(t, s.dispatch.Dispatch(context.Background(), ev))

	assert.Empty(t, s.handlers.calls)
	require.Len(t, s.queue.events, 1)
	assert.Same(t, ev, s.queue.events[0])
	require.Len(t, s.notified, 1)
	queued, ok := s.notified[0].(event.QueuingFinished)
	require.True(t, ok)
	assert.Same(t, ev, queued.Event)
	assert.False(t, ev.IsPropagationStopped())
}

func TestRouter_DelayedUnknownPassesThrough(t *testing.T) {
	s := newSetup(Delayed)
	ev := &unknownEvent{Base: event.NewBase(1, "tx_foo", nil)}

	require.NoError(t, s.dispatch.Dispatch(context.Background(), ev))
	assert.Empty(t, s.queue.events)
	assert.Empty(t, s.notified)
}

func TestRouter_ForceOverridesPolicy(t *testing.T) {
	for _, typ := range []Type{Delayed, Disabled} {
		t.Run(typ.String(), func(t *testing.T) {
			s := newSetup(typ)
			ev := event.NewRecordUpdated(1, "tx_foo", nil)
			ev.ForceImmediateProcessing(true)

			require.NoError(t, s.dispatch.Dispatch(context.Background(), ev))
			assert.Equal(t, []string{"update"}, s.handlers.calls)
			assert.Empty(t, s.queue.events)
			assert.True(t, ev.IsPropagationStopped())
		})
	}
}

type switchableType struct{ t Type }

func (s *switchableType) MonitoringType() Type { return s.t }

func TestRouter_ReadsTypeOnEveryDispatch(t *testing.T) {
	handlers := &recordingHandlers{}
	queue := &memoryQueue{}
	types := &switchableType{t: Delayed}
	d := event.NewDispatcher()
	NewRouter(types, NewProcessor(handlers, handlers), queue, nil, nil).Register(d)

	require.NoError(t, d.Dispatch(context.Background(), event.NewRecordUpdated(1, "tx_foo", nil)))
	types.t = Immediate
	require.NoError(t, d.Dispatch(context.Background(), event.NewRecordUpdated(2, "tx_foo", nil)))

	assert.Len(t, queue.events, 1)
	assert.Equal(t, []string{"update"}, handlers.calls)
}

// sequenceType returns the next type on every read.
type sequenceType struct {
	types []Type
	reads int
}

func (s *sequenceType) MonitoringType() Type {
	t := s.types[s.reads%len(s.types)]
	s.reads++
	return t
}

func TestRouter_TypeSwitchDuringDispatchStillHandlesEvent(t *testing.T) {
	handlers := &recordingHandlers{}
	queue := &memoryQueue{}
	// Reading per listener would see delayed, disabled and immediate in turn
	// and every listener would skip the event.
	types := &sequenceType{types: []Type{Delayed, Disabled, Immediate}}
	d := event.NewDispatcher()
	NewRouter(types, NewProcessor(handlers, handlers), queue, nil, nil).Register(d)

	require.NoError(t, d.Dispatch(context.Background(), event.NewRecordUpdated(1, "tx_foo", nil)))

	assert.Equal(t, 1, types.reads)
	assert.Len(t, queue.events, 1)
	assert.Empty(t, handlers.calls)
}
