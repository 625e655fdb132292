package access

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// PublicGroup is held by every visitor, logged in or not.
const PublicGroup = 0

// Rootline is an ordered sequence of access elements.
// At most the last element may be a content or record element.
type Rootline struct {
	elements []Element
}

// New creates a rootline from elements, failing if a terminal element is not last.
func New(elements ...Element) (Rootline, error) {
	var r Rootline
	for _, e := range elements {
		if err := r.Push(e); err != nil {
			return Rootline{}, err
		}
	}
	return r, nil
}

// ForRecord returns a rootline with a single record element.
// An empty group list yields an empty rootline.
func ForRecord(groups []int) Rootline {
	e := NewRecordElement(groups)
	if len(e.groups) == 0 {
		return Rootline{}
	}
	return Rootline{elements: []Element{e}}
}

// Parse decodes a rootline string. Segments that fail to parse are logged and skipped.
func Parse(s string) Rootline {
	var r Rootline

	s = strings.TrimSpace(s)
	if s == "" {
		return r
	}

	segments := strings.Split(s, elementSeparator)

	// A single bare group list is the content element.
	if len(segments) == 1 && !strings.Contains(segments[0], keySeparator) {
		segments[0] = contentKey + keySeparator + segments[0]
	}

	for _, seg := range segments {
		e, err := ParseElement(seg)
		if err != nil {
			slog.Warn("access_rootline_segment_skipped",
				slog.String("rootline", s),
				slog.String("segment", seg),
				slog.String("error", err.Error()))
			continue
		}
		if err := r.Push(e); err != nil {
			slog.Warn("access_rootline_segment_skipped",
				slog.String("rootline", s),
				slog.String("segment", seg),
				slog.String("error", err.Error()))
			continue
		}
	}
	return r
}

// Push appends an element. It fails when the rootline already ends with a
// content or record element, or when a record element would join other elements.
func (r *Rootline) Push(e Element) error {
	if n := len(r.elements); n > 0 && r.elements[n-1].Terminal() {
		return fmt.Errorf("%w: cannot append %s element after %s",
			ErrTerminalElement, e.kind, r.elements[n-1].kind)
	}
	if e.kind == KindRecord && len(r.elements) > 0 {
		return fmt.Errorf("%w: a record element must stand alone", ErrTerminalElement)
	}
	r.elements = append(r.elements, e)
	return nil
}

// Elements returns a copy of the elements.
func (r Rootline) Elements() []Element {
	out := make([]Element, len(r.elements))
	copy(out, r.elements)
	return out
}

// Len returns the number of elements.
func (r Rootline) Len() int { return len(r.elements) }

// IsEmpty reports whether the rootline carries no restriction.
func (r Rootline) IsEmpty() bool { return len(r.elements) == 0 }

// String renders the rootline in wire format.
func (r Rootline) String() string {
	parts := make([]string, len(r.elements))
	for i, e := range r.elements {
		parts[i] = e.String()
	}
	return strings.Join(parts, elementSeparator)
}

// Groups returns the sorted, duplicate-free union of all element groups.
func (r Rootline) Groups() []int {
	seen := make(map[int]struct{})
	out := []int{}
	for _, e := range r.elements {
		for _, g := range e.groups {
			if _, ok := seen[g]; ok {
				continue
			}
			seen[g] = struct{}{}
			out = append(out, g)
		}
	}
	sort.Ints(out)
	return out
}

// Allows reports whether a visitor holding userGroups may see the document.
// Every element must be satisfied; the public group is always held.
func (r Rootline) Allows(userGroups []int) bool {
	held := make(map[int]struct{}, len(userGroups)+1)
	held[PublicGroup] = struct{}{}
	for _, g := range userGroups {
		held[g] = struct{}{}
	}
	for _, e := range r.elements {
		if !e.Allows(held) {
			return false
		}
	}
	return true
}

// Equal compares two rootlines element by element.
func (r Rootline) Equal(other Rootline) bool {
	return r.String() == other.String()
}
