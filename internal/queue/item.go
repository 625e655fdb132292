// Package queue implements the index queue: the durable list of records
// waiting to be (re)indexed, scoped per root site.
package queue

import (
	"errors"
	"time"
)

// ErrItemNotFound is returned when a queue item does not exist.
var ErrItemNotFound = errors.New("index queue item not found")

// Item is one document to be (re)indexed.
type Item struct {
	ID                    int64
	Root                  int
	Type                  string
	UID                   int
	IndexingConfiguration string
	Indexer               string
	Changed               int64
	Indexed               int64
	Errors                string
	ErrorCount            int
}

// IsStale reports whether the item needs indexing.
func (i Item) IsStale() bool { return i.Changed > i.Indexed }

// HasErrors reports whether the last indexing attempt failed.
func (i Item) HasErrors() bool { return i.Errors != "" }

// ChangedTime returns Changed as time.
func (i Item) ChangedTime() time.Time { return time.Unix(i.Changed, 0) }

// IndexedTime returns Indexed as time, zero when never indexed.
func (i Item) IndexedTime() time.Time {
	if i.Indexed == 0 {
		return time.Time{}
	}
	return time.Unix(i.Indexed, 0)
}

// Statistics summarizes the queue of one site.
type Statistics struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Indexed int `json:"indexed"`
	Failed  int `json:"failed"`
}

// Progress returns the indexed share in percent, 0 for an empty queue.
func (s Statistics) Progress() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Total-s.Pending) / float64(s.Total) * 100
}
