// Package content reads records and pages of the content repository.
package content

import (
	"encoding/json"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Column names shared by pages and records.
const (
	ColUID              = "uid"
	ColPID              = "pid"
	ColDeleted          = "deleted"
	ColHidden           = "hidden"
	ColStartTime        = "starttime"
	ColEndTime          = "endtime"
	ColFeGroup          = "fe_group"
	ColExtendToSubpages = "extendToSubpages"
	ColIsSiteRoot       = "is_siteroot"
	ColDoktype          = "doktype"
	ColNoSearch         = "no_search"
	ColTstamp           = "tstamp"
	ColMountPID         = "mount_pid"
	ColLanguage         = "sys_language_uid"
)

// Row maps column names to values of one record.
type Row map[string]any

// Int returns a column as int, 0 when missing or not numeric.
func (r Row) Int(col string) int {
	return int(r.Int64(col))
}

// Int64 returns a column as int64, 0 when missing or not numeric.
func (r Row) Int64(col string) int64 {
	switch v := r[col].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			f, _ := v.Float64()
			return int64(f)
		}
		return n
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n
	default:
		return 0
	}
}

// Bool reports whether a column is set to a non-zero value.
func (r Row) Bool(col string) bool {
	if b, ok := r[col].(bool); ok {
		return b
	}
	return r.Int64(col) != 0
}

// Text returns a column as string.
func (r Row) Text(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "1"
		}
		return "0"
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Groups parses a comma separated group list column, dropping invalid entries.
// Negative ids are kept; callers decide how to treat them.
func (r Row) Groups(col string) []int {
	raw := r.Text(col)
	if raw == "" {
		return nil
	}
	var out []int
	for _, p := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			continue
		}
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}

// UID returns the record uid.
func (r Row) UID() int { return r.Int(ColUID) }

// PID returns the parent page id.
func (r Row) PID() int { return r.Int(ColPID) }

// Clone returns a shallow copy.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// DefaultDoktypes are the page types indexed when a configuration lists none.
var DefaultDoktypes = []int{1}

// Policy decides which records may be indexed.
type Policy struct {
	// Doktypes allowed for pages. Empty uses DefaultDoktypes.
	Doktypes []int
}

// Indexable reports whether row is visible and searchable at now.
// isPage enables the page-only checks (doktype and no_search).
func Indexable(row Row, isPage bool, now time.Time, policy Policy) bool {
	if row == nil || row.Bool(ColDeleted) || row.Bool(ColHidden) {
		return false
	}
	ts := now.Unix()
	if start := row.Int64(ColStartTime); start > 0 && start > ts {
		return false
	}
	if end := row.Int64(ColEndTime); end > 0 && end <= ts {
		return false
	}
	if !isPage {
		return true
	}
	if row.Bool(ColNoSearch) {
		return false
	}
	doktypes := policy.Doktypes
	if len(doktypes) == 0 {
		doktypes = DefaultDoktypes
	}
	return slices.Contains(doktypes, row.Int(ColDoktype))
}
