// Package event defines the change events emitted when records of the content
// repository are edited, deleted, moved or swapped with a workspace version.
package event

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Tables with dedicated handling.
const (
	PageTable    = "pages"
	ContentTable = "tt_content"
)

// ChangeEvent is a single content mutation. Events are immutable after
// construction except for the propagation and force flags.
type ChangeEvent interface {
	UID() int
	Table() string
	Fields() Fields
	StopPropagation(stop bool)
	IsPropagationStopped() bool
	ForceImmediateProcessing(force bool)
	IsImmediateProcessingForced() bool
	IsPageUpdate() bool
	IsContentElementUpdate() bool
}

// Base carries the state shared by all event variants.
type Base struct {
	uid     int
	table   string
	fields  Fields
	stopped bool
	forced  bool
}

// NewBase creates the shared part of an event.
func NewBase(uid int, table string, fields Fields) Base {
	return Base{uid: uid, table: table, fields: fields.Clone()}
}

// UID returns the record uid.
func (b *Base) UID() int { return b.uid }

// Table returns the record table.
func (b *Base) Table() string { return b.table }

// Fields returns a copy of the changed columns. Nil for non-update events.
func (b *Base) Fields() Fields { return b.fields.Clone() }

// StopPropagation prevents further listeners from receiving the event.
func (b *Base) StopPropagation(stop bool) { b.stopped = stop }

// IsPropagationStopped reports whether a listener stopped propagation.
func (b *Base) IsPropagationStopped() bool { return b.stopped }

// ForceImmediateProcessing requests immediate handling regardless of the monitoring type.
func (b *Base) ForceImmediateProcessing(force bool) { b.forced = force }

// IsImmediateProcessingForced reports whether immediate handling was requested.
func (b *Base) IsImmediateProcessingForced() bool { return b.forced }

// IsPageUpdate reports whether the event concerns a page.
func (b *Base) IsPageUpdate() bool { return b.table == PageTable }

// IsContentElementUpdate reports whether the event concerns a content element.
func (b *Base) IsContentElementUpdate() bool { return b.table == ContentTable }

// RecordUpdated is emitted when a record was created or changed.
type RecordUpdated struct{ Base }

// NewRecordUpdated creates a RecordUpdated event.
func NewRecordUpdated(uid int, table string, fields Fields) *RecordUpdated {
	return &RecordUpdated{Base: NewBase(uid, table, fields)}
}

// RecordDeleted is emitted when a record was deleted.
type RecordDeleted struct{ Base }

// NewRecordDeleted creates a RecordDeleted event.
func NewRecordDeleted(uid int, table string) *RecordDeleted {
	return &RecordDeleted{Base: NewBase(uid, table, nil)}
}

// RecordMoved is emitted when a record was moved to another page.
type RecordMoved struct{ Base }

// NewRecordMoved creates a RecordMoved event.
func NewRecordMoved(uid int, table string) *RecordMoved {
	return &RecordMoved{Base: NewBase(uid, table, nil)}
}

// PageMoved is emitted when a page was moved in the page tree.
type PageMoved struct{ Base }

// NewPageMoved creates a PageMoved event.
func NewPageMoved(uid int) *PageMoved {
	return &PageMoved{Base: NewBase(uid, PageTable, nil)}
}

// VersionSwapped is emitted when a workspace version replaced the live record.
type VersionSwapped struct{ Base }

// NewVersionSwapped creates a VersionSwapped event.
func NewVersionSwapped(uid int, table string) *VersionSwapped {
	return &VersionSwapped{Base: NewBase(uid, table, nil)}
}

// ContentElementDeleted is emitted when a content element was deleted.
// The owning page must be reindexed.
type ContentElementDeleted struct{ Base }

// NewContentElementDeleted creates a ContentElementDeleted event.
func NewContentElementDeleted(uid int) *ContentElementDeleted {
	return &ContentElementDeleted{Base: NewBase(uid, ContentTable, nil)}
}

// RecordGarbageCheck is emitted when changed fields might have removed the
// visibility of a record (hidden set, groups removed, time window closed).
type RecordGarbageCheck struct {
	Base
	frontendGroupsRemoved bool
}

// NewRecordGarbageCheck creates a RecordGarbageCheck event.
func NewRecordGarbageCheck(uid int, table string, fields Fields, frontendGroupsRemoved bool) *RecordGarbageCheck {
	return &RecordGarbageCheck{
		Base:                  NewBase(uid, table, fields),
		frontendGroupsRemoved: frontendGroupsRemoved,
	}
}

// FrontendGroupsRemoved reports whether the change is known to have removed groups.
func (e *RecordGarbageCheck) FrontendGroupsRemoved() bool { return e.frontendGroupsRemoved }

// Fields maps column names to values.
type Fields map[string]any

// Clone returns a shallow copy, nil for nil.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Has reports whether the column is present.
func (f Fields) Has(key string) bool {
	_, ok := f[key]
	return ok
}

// Int returns a column as integer. Decoded JSON numbers and numeric strings are accepted.
func (f Fields) Int(key string) (int, bool) {
	switch v := f[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case int32:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	default:
		return 0, false
	}
}

// Text returns a column as string.
func (f Fields) Text(key string) string {
	switch v := f[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return strings.Trim(string(b), `"`)
	}
}
