// Package document defines the document aggregate: a unit of content inside a
// collection, carrying an open meta map and optionally an object-store
// content locator.
package document

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/loom/internal/domain"
)

// Meta keys used by the file-storage path.
const (
	// MetaURL holds the presigned content URL for stored files.
	MetaURL = "url"
	// MetaObjectKey holds the object-store key the URL was signed for.
	MetaObjectKey = "object_key"
)

// Document is the stored document (value object with targeted setters for
// pipeline-owned meta keys).
type Document struct {
	id           uuid.UUID
	collectionID string
	content      string
	title        string
	meta         map[string]any
	createdAt    time.Time
	updatedAt    time.Time
}

// New validates and creates a Document with a fresh id.
func New(collectionID, content, title string, meta map[string]any) (Document, error) {
	if collectionID == "" {
		return Document{}, fmt.Errorf("%w: document collection id is required", domain.ErrValidation)
	}
	if meta == nil {
		meta = map[string]any{}
	}
	now := time.Now().UTC()
	return Document{
		id:           uuid.New(),
		collectionID: collectionID,
		content:      content,
		title:        title,
		meta:         meta,
		createdAt:    now,
		updatedAt:    now,
	}, nil
}

// Reconstruct creates a Document without validation (storage hydration).
func Reconstruct(
	id uuid.UUID, collectionID, content, title string,
	meta map[string]any, createdAt, updatedAt time.Time,
) Document {
	if meta == nil {
		meta = map[string]any{}
	}
	return Document{
		id:           id,
		collectionID: collectionID,
		content:      content,
		title:        title,
		meta:         meta,
		createdAt:    createdAt,
		updatedAt:    updatedAt,
	}
}

// ID returns the document id.
func (d Document) ID() uuid.UUID { return d.id }

// CollectionID returns the owning collection id.
func (d Document) CollectionID() string { return d.collectionID }

// Content returns the text content.
func (d Document) Content() string { return d.content }

// Title returns the optional title.
func (d Document) Title() string { return d.title }

// Meta returns the open meta map.
func (d Document) Meta() map[string]any { return d.meta }

// CreatedAt returns the creation timestamp.
func (d Document) CreatedAt() time.Time { return d.createdAt }

// UpdatedAt returns the last update timestamp.
func (d Document) UpdatedAt() time.Time { return d.updatedAt }

// MetaValue walks a dot-separated path into the meta map.
// Missing keys and non-map intermediates yield (nil, false).
func (d Document) MetaValue(path string) (any, bool) {
	return walkMeta(d.meta, path)
}

func walkMeta(m map[string]any, path string) (any, bool) {
	var cur any = m
	start := 0
	for i := 0; i <= len(path); i++ {
		if i != len(path) && path[i] != '.' {
			continue
		}
		key := path[start:i]
		start = i + 1
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = node[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Attribute resolves a built-in document attribute by name.
// Unknown names resolve to nil, mirroring the meta-map behavior.
func (d Document) Attribute(name string) any {
	switch name {
	case "document_id":
		return d.id.String()
	case "collection_id":
		return d.collectionID
	case "content":
		return d.content
	case "title":
		if d.title == "" {
			return nil
		}
		return d.title
	case "created_at":
		return d.createdAt
	case "updated_at":
		return d.updatedAt
	default:
		return nil
	}
}

// SetContent replaces the text content.
func (d *Document) SetContent(content string) {
	d.content = content
	d.updatedAt = time.Now().UTC()
}

// SetTitle replaces the title.
func (d *Document) SetTitle(title string) {
	d.title = title
	d.updatedAt = time.Now().UTC()
}

// SetMeta replaces the whole meta map. Nil becomes an empty map.
func (d *Document) SetMeta(meta map[string]any) {
	if meta == nil {
		meta = map[string]any{}
	}
	d.meta = meta
	d.updatedAt = time.Now().UTC()
}

// SetMetaValue writes a top-level meta key (content-locator refresh path).
func (d *Document) SetMetaValue(key string, v any) {
	if d.meta == nil {
		d.meta = map[string]any{}
	}
	d.meta[key] = v
	d.updatedAt = time.Now().UTC()
}

// ObjectKey returns the object-store key for stored-file documents.
func (d Document) ObjectKey() (string, bool) {
	v, ok := d.meta[MetaObjectKey].(string)
	return v, ok && v != ""
}

// ContentURL returns the presigned content URL for stored-file documents.
func (d Document) ContentURL() (string, bool) {
	v, ok := d.meta[MetaURL].(string)
	return v, ok && v != ""
}
