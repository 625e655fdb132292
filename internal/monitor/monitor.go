// Package monitor routes change events according to the installation's
// monitoring type: handled immediately, deferred to the event queue, or dropped.
package monitor

import (
	"context"
	"fmt"
	"strings"

	"github.com/Aman-CERP/searchsync/internal/event"
)

// Type selects how change events are handled.
type Type int

const (
	// Immediate routes events to the handlers synchronously.
	Immediate Type = iota
	// Delayed stores events in the event queue for a later drain.
	Delayed
	// Disabled stops every event without handling it.
	Disabled
)

// String returns the configuration name of the type.
func (t Type) String() string {
	switch t {
	case Immediate:
		return "immediate"
	case Delayed:
		return "delayed"
	case Disabled:
		return "disabled"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// ParseType parses a monitoring type by name or number.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "immediate", "0", "":
		return Immediate, nil
	case "delayed", "1":
		return Delayed, nil
	case "disabled", "2":
		return Disabled, nil
	default:
		return Immediate, fmt.Errorf("unknown monitoring type %q (expected immediate, delayed or disabled)", s)
	}
}

// TypeSource provides the current monitoring type. It is read on every dispatch.
type TypeSource interface {
	MonitoringType() Type
}

// StaticType is a fixed TypeSource.
type StaticType Type

// MonitoringType implements TypeSource.
func (s StaticType) MonitoringType() Type { return Type(s) }

// DataUpdater reindexes records after updates, moves and version swaps.
type DataUpdater interface {
	ProcessRecordUpdate(ctx context.Context, uid int, table string, fields event.Fields) error
	ProcessRecordMove(ctx context.Context, uid int, table string) error
	ProcessVersionSwap(ctx context.Context, uid int, table string) error
	ProcessContentElementDeletion(ctx context.Context, uid int) error
}

// GarbageCollector removes documents that must no longer be visible.
type GarbageCollector interface {
	CollectGarbage(ctx context.Context, table string, uid int) error
	HandlePageMovement(ctx context.Context, uid int) error
	PerformRecordGarbageCheck(ctx context.Context, uid int, table string, fields event.Fields, frontendGroupsRemoved bool) error
}

// Processor routes a single event to its handler.
type Processor struct {
	data    DataUpdater
	garbage GarbageCollector
}

// NewProcessor creates a processor.
func NewProcessor(data DataUpdater, garbage GarbageCollector) *Processor {
	return &Processor{data: data, garbage: garbage}
}

// Process handles ev synchronously. It returns false for unknown variants.
func (p *Processor) Process(ctx context.Context, ev event.ChangeEvent) (bool, error) {
	var err error
	switch e := ev.(type) {
	case *event.RecordDeleted:
		err = p.garbage.CollectGarbage(ctx, e.Table(), e.UID())
	case *event.PageMoved:
		err = p.garbage.HandlePageMovement(ctx, e.UID())
	case *event.RecordGarbageCheck:
		err = p.garbage.PerformRecordGarbageCheck(ctx, e.UID(), e.Table(), e.Fields(), e.FrontendGroupsRemoved())
	case *event.RecordUpdated:
		err = p.data.ProcessRecordUpdate(ctx, e.UID(), e.Table(), e.Fields())
	case *event.RecordMoved:
		err = p.data.ProcessRecordMove(ctx, e.UID(), e.Table())
	case *event.VersionSwapped:
		err = p.data.ProcessVersionSwap(ctx, e.UID(), e.Table())
	case *event.ContentElementDeleted:
		err = p.data.ProcessContentElementDeletion(ctx, e.UID())
	default:
		return false, nil
	}
	if err != nil {
		return true, fmt.Errorf("process %s %s:%d: %w", event.TypeName(ev), ev.Table(), ev.UID(), err)
	}
	return true, nil
}
