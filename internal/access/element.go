// Package access implements the access rootline: a compact string encoding
// of the hierarchical visibility restrictions attached to every indexed document.
//
// Wire format: elements joined by "/". Each element is "key:g1,g2,..." where key
// is a page id, "c" (content) or "r" (record). A lone content element may omit
// its key entirely, so "1,2" is the same as "c:1,2".
package access

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrInvalidElement is returned when a rootline segment cannot be parsed.
	ErrInvalidElement = errors.New("invalid access rootline element")

	// ErrTerminalElement is returned when appending after a content or record element.
	ErrTerminalElement = errors.New("access rootline already terminated by a content or record element")
)

// Kind identifies the element variant.
type Kind int

const (
	// KindPage restricts access to a page (and, when inherited, its subpages).
	KindPage Kind = iota
	// KindContent restricts access to content on the last page.
	KindContent
	// KindRecord restricts access to a standalone record.
	KindRecord
)

const (
	elementSeparator = "/"
	keySeparator     = ":"
	groupSeparator   = ","
	contentKey       = "c"
	recordKey        = "r"
)

// String returns the wire key for non-page kinds and a readable name otherwise.
func (k Kind) String() string {
	switch k {
	case KindPage:
		return "page"
	case KindContent:
		return "content"
	case KindRecord:
		return "record"
	default:
		return "unknown"
	}
}

// Element is one restriction of a rootline.
type Element struct {
	kind   Kind
	pageID int
	groups []int
}

// NewPageElement creates a page element.
func NewPageElement(pageID int, groups []int) Element {
	return Element{kind: KindPage, pageID: pageID, groups: normalizeGroups(groups)}
}

// NewContentElement creates a content element.
func NewContentElement(groups []int) Element {
	return Element{kind: KindContent, groups: normalizeGroups(groups)}
}

// NewRecordElement creates a record element.
func NewRecordElement(groups []int) Element {
	return Element{kind: KindRecord, groups: normalizeGroups(groups)}
}

// Kind returns the element variant.
func (e Element) Kind() Kind { return e.kind }

// PageID returns the page id of a page element, 0 otherwise.
func (e Element) PageID() int { return e.pageID }

// Groups returns a copy of the sorted, duplicate-free group ids.
func (e Element) Groups() []int {
	out := make([]int, len(e.groups))
	copy(out, e.groups)
	return out
}

// Terminal reports whether nothing may follow this element.
func (e Element) Terminal() bool {
	return e.kind == KindContent || e.kind == KindRecord
}

// String renders the element in wire format.
func (e Element) String() string {
	var key string
	switch e.kind {
	case KindContent:
		key = contentKey
	case KindRecord:
		key = recordKey
	default:
		key = strconv.Itoa(e.pageID)
	}
	return key + keySeparator + joinGroups(e.groups)
}

// Allows reports whether a user holding the given groups satisfies this element.
// Content elements need every listed group; page and record elements need any.
func (e Element) Allows(held map[int]struct{}) bool {
	if e.kind == KindContent {
		for _, g := range e.groups {
			if _, ok := held[g]; !ok {
				return false
			}
		}
		return true
	}
	for _, g := range e.groups {
		if _, ok := held[g]; ok {
			return true
		}
	}
	return false
}

// ParseElement parses a single "key:groups" segment.
func ParseElement(s string) (Element, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Element{}, fmt.Errorf("%w: empty segment", ErrInvalidElement)
	}

	key, list, found := strings.Cut(s, keySeparator)
	if !found {
		return Element{}, fmt.Errorf("%w: %q has no key", ErrInvalidElement, s)
	}

	groups, err := parseGroups(list)
	if err != nil {
		return Element{}, fmt.Errorf("%w: %q: %v", ErrInvalidElement, s, err)
	}

	switch key {
	case contentKey:
		return NewContentElement(groups), nil
	case recordKey:
		return NewRecordElement(groups), nil
	}

	pageID, err := strconv.Atoi(key)
	if err != nil || pageID < 0 || !isDigits(key) {
		return Element{}, fmt.Errorf("%w: %q has invalid key %q", ErrInvalidElement, s, key)
	}
	return NewPageElement(pageID, groups), nil
}

func parseGroups(list string) ([]int, error) {
	if strings.TrimSpace(list) == "" {
		return nil, errors.New("no groups")
	}
	parts := strings.Split(list, groupSeparator)
	groups := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if !isDigits(p) {
			return nil, fmt.Errorf("group %q is not a non-negative integer", p)
		}
		g, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", p, err)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func normalizeGroups(groups []int) []int {
	seen := make(map[int]struct{}, len(groups))
	out := make([]int, 0, len(groups))
	for _, g := range groups {
		if g < 0 {
			continue
		}
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	sort.Ints(out)
	return out
}

func joinGroups(groups []int) string {
	parts := make([]string, len(groups))
	for i, g := range groups {
		parts[i] = strconv.Itoa(g)
	}
	return strings.Join(parts, groupSeparator)
}
