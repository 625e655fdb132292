// Package document builds the field sets sent to the search index.
package document

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Aman-CERP/searchsync/internal/access"
	"github.com/Aman-CERP/searchsync/internal/content"
	"github.com/Aman-CERP/searchsync/internal/queue"
	"github.com/Aman-CERP/searchsync/internal/site"
)

// Field names set on every document.
const (
	FieldID         = "id"
	FieldVariantID  = "variantId"
	FieldType       = "type"
	FieldUID        = "uid"
	FieldPID        = "pid"
	FieldSite       = "site"
	FieldSiteHash   = "siteHash"
	FieldRootPageID = "rootPageId"
	FieldChanged    = "changed"
	FieldIndexed    = "indexed"
	FieldURL        = "url"
	FieldHost       = "host"
	FieldAccess     = "access"
	FieldLanguage   = "language"
)

// Document maps field names to values.
type Document map[string]any

// ID returns the document id.
func (d Document) ID() string {
	s, _ := d[FieldID].(string)
	return s
}

// VariantID returns the id shared by all variants of a record.
func (d Document) VariantID() string {
	s, _ := d[FieldVariantID].(string)
	return s
}

// ID computes a document id: siteHash/type/uid, followed by the access groups
// and the mount point when present.
func ID(siteHash, typ string, uid int, groups []int, mountPoint string) string {
	parts := []string{siteHash, typ, strconv.Itoa(uid)}
	if len(groups) > 0 {
		g := make([]string, len(groups))
		for i, n := range groups {
			g[i] = strconv.Itoa(n)
		}
		parts = append(parts, strings.Join(g, ","))
	}
	if mountPoint != "" {
		parts = append(parts, mountPoint)
	}
	return strings.Join(parts, "/")
}

// VariantID computes the variant id type/uid.
func VariantID(typ string, uid int) string {
	return typ + "/" + strconv.Itoa(uid)
}

// Builder creates documents from records.
type Builder struct {
	now func() time.Time
}

// NewBuilder creates a builder. A nil clock uses time.Now.
func NewBuilder(now func() time.Time) *Builder {
	if now == nil {
		now = time.Now
	}
	return &Builder{now: now}
}

// Build creates the document of a queue item. Mapped fields come from the
// item's indexing configuration; the access field is set only for a
// restricted rootline.
func (b *Builder) Build(row content.Row, item queue.Item, s site.Site, rootline access.Rootline, host string) Document {
	siteHash := s.Hash()
	doc := Document{
		FieldID:         ID(siteHash, item.Type, item.UID, rootline.Groups(), mountPoint(row)),
		FieldVariantID:  VariantID(item.Type, item.UID),
		FieldType:       item.Type,
		FieldUID:        item.UID,
		FieldPID:        row.PID(),
		FieldSite:       s.Domain,
		FieldSiteHash:   siteHash,
		FieldRootPageID: s.RootPageID,
		FieldChanged:    row.Int64(content.ColTstamp),
		FieldIndexed:    b.now().Unix(),
		FieldHost:       host,
		FieldURL:        recordURL(s, host, item, row),
		FieldLanguage:   row.Int(content.ColLanguage),
	}
	if !rootline.IsEmpty() {
		doc[FieldAccess] = rootline.String()
	}

	if cfg, ok := s.Configuration(item.IndexingConfiguration); ok {
		for field, column := range cfg.Fields {
			if _, reserved := doc[field]; reserved {
				continue
			}
			if v := row.Text(column); v != "" {
				doc[field] = v
			}
		}
	}
	return doc
}

// mountPoint identifies a page mounted into the tree as mountPid-uid, empty
// when mount_pid is unset.
func mountPoint(row content.Row) string {
	if pid := row.Int(content.ColMountPID); pid > 0 {
		return strconv.Itoa(pid) + "-" + strconv.Itoa(row.UID())
	}
	return ""
}

func recordURL(s site.Site, host string, item queue.Item, row content.Row) string {
	scheme := s.Scheme
	if scheme == "" {
		scheme = "https"
	}
	if host == "" {
		host = s.Host()
	}
	if item.Type == content.PageTable {
		return fmt.Sprintf("%s://%s/index.php?id=%d", scheme, host, item.UID)
	}
	return fmt.Sprintf("%s://%s/index.php?id=%d&record=%s:%d", scheme, host, row.PID(), item.Type, item.UID)
}
