package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// EnvelopeVersion is the current serialized event format.
const EnvelopeVersion = 1

// ErrUnknownEventType is returned when decoding an envelope of an unknown variant.
var ErrUnknownEventType = errors.New("unknown event type")

// Variant type names used in the envelope.
const (
	TypeRecordUpdated         = "record_updated"
	TypeRecordDeleted         = "record_deleted"
	TypeRecordMoved           = "record_moved"
	TypePageMoved             = "page_moved"
	TypeVersionSwapped        = "version_swapped"
	TypeContentElementDeleted = "content_element_deleted"
	TypeRecordGarbageCheck    = "record_garbage_check"
)

// DefaultDroppedFields are columns never persisted with a deferred event.
// A trailing "*" matches by prefix.
var DefaultDroppedFields = []string{"l10n_diffsource", "l10n_state", "t3ver_*"}

const pidField = "pid"

type envelope struct {
	Version               int    `json:"v"`
	Type                  string `json:"type"`
	UID                   int    `json:"uid"`
	Table                 string `json:"table"`
	Fields                Fields `json:"fields,omitempty"`
	FrontendGroupsRemoved bool   `json:"frontend_groups_removed,omitempty"`
	Forced                bool   `json:"forced,omitempty"`
}

// Codec serializes events for deferred processing.
type Codec struct {
	// DroppedFields are removed from every event.
	DroppedFields []string
	// RequiredFields always survive. Page and content element events keep
	// only these and pid.
	RequiredFields map[string]struct{}
}

// NewCodec creates a codec keeping the union of the given required field sets.
func NewCodec(required ...[]string) *Codec {
	c := &Codec{
		DroppedFields:  append([]string(nil), DefaultDroppedFields...),
		RequiredFields: make(map[string]struct{}),
	}
	for _, set := range required {
		for _, f := range set {
			c.RequiredFields[f] = struct{}{}
		}
	}
	return c
}

// TypeName returns the envelope type of an event, or "" for unknown variants.
func TypeName(ev ChangeEvent) string {
	switch ev.(type) {
	case *RecordUpdated:
		return TypeRecordUpdated
	case *RecordDeleted:
		return TypeRecordDeleted
	case *RecordMoved:
		return TypeRecordMoved
	case *PageMoved:
		return TypePageMoved
	case *VersionSwapped:
		return TypeVersionSwapped
	case *ContentElementDeleted:
		return TypeContentElementDeleted
	case *RecordGarbageCheck:
		return TypeRecordGarbageCheck
	default:
		return ""
	}
}

// Encode serializes an event into a JSON envelope.
func (c *Codec) Encode(ev ChangeEvent) ([]byte, error) {
	typ := TypeName(ev)
	if typ == "" {
		return nil, fmt.Errorf("%w: %T", ErrUnknownEventType, ev)
	}

	env := envelope{
		Version: EnvelopeVersion,
		Type:    typ,
		UID:     ev.UID(),
		Table:   ev.Table(),
		Fields:  c.filter(ev),
		Forced:  ev.IsImmediateProcessingForced(),
	}
	if gc, ok := ev.(*RecordGarbageCheck); ok {
		env.FrontendGroupsRemoved = gc.FrontendGroupsRemoved()
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", typ, err)
	}
	return data, nil
}

// Decode restores the concrete event variant from an envelope.
func (c *Codec) Decode(data []byte) (ChangeEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if env.Version != EnvelopeVersion {
		return nil, fmt.Errorf("decode event: unsupported envelope version %d", env.Version)
	}

	var ev ChangeEvent
	switch env.Type {
	case TypeRecordUpdated:
		ev = NewRecordUpdated(env.UID, env.Table, env.Fields)
	case TypeRecordDeleted:
		ev = NewRecordDeleted(env.UID, env.Table)
	case TypeRecordMoved:
		ev = NewRecordMoved(env.UID, env.Table)
	case TypePageMoved:
		ev = NewPageMoved(env.UID)
	case TypeVersionSwapped:
		ev = NewVersionSwapped(env.UID, env.Table)
	case TypeContentElementDeleted:
		ev = NewContentElementDeleted(env.UID)
	case TypeRecordGarbageCheck:
		ev = NewRecordGarbageCheck(env.UID, env.Table, env.Fields, env.FrontendGroupsRemoved)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, env.Type)
	}
	ev.ForceImmediateProcessing(env.Forced)
	return ev, nil
}

func (c *Codec) filter(ev ChangeEvent) Fields {
	fields := ev.Fields()
	if len(fields) == 0 {
		return nil
	}

	restrict := ev.IsPageUpdate() || ev.IsContentElementUpdate()
	out := make(Fields, len(fields))
	for k, v := range fields {
		if c.keep(k, restrict) {
			out[k] = v
		}
	}
	return out
}

func (c *Codec) keep(field string, restrict bool) bool {
	if field == pidField {
		return true
	}
	if _, ok := c.RequiredFields[field]; ok {
		return true
	}
	if restrict {
		return false
	}
	for _, d := range c.DroppedFields {
		if prefix, ok := strings.CutSuffix(d, "*"); ok {
			if strings.HasPrefix(field, prefix) {
				return false
			}
			continue
		}
		if field == d {
			return false
		}
	}
	return true
}
