// Package index defines index definitions: named record destinations with
// ordered, typed field descriptors that the schema registry turns into
// storage tables.
package index

import (
	"fmt"
	"regexp"
	"time"

	"github.com/kailas-cloud/loom/internal/domain"
)

// TablePrefix prepends every derived table name so user index ids can never
// collide with application tables.
const TablePrefix = "zzidx__"

// idRegex caps ids at 56 chars so prefixed table names fit the 63-char
// storage identifier limit.
var idRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,55}$`)

// IsValidID checks an index id against the identifier rules.
func IsValidID(id string) bool { return idRegex.MatchString(id) }

// Index is the stored index definition (immutable value object). The
// definition row may exist before its table is materialized.
type Index struct {
	id          string
	description string
	fields      []Field
	createdAt   time.Time
	updatedAt   time.Time
}

// New validates and creates an Index definition.
// ID: ^[a-z_][a-z0-9_]{0,55}$. Fields: unique names; an empty list is
// allowed at declaration time and rejected at table-creation time.
func New(id, description string, fields []Field) (Index, error) {
	if !IsValidID(id) {
		return Index{}, fmt.Errorf("%w: index id %q must match %s", domain.ErrValidation, id, idRegex.String())
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f.Name()] {
			return Index{}, fmt.Errorf("%w: duplicate field name %q", domain.ErrValidation, f.Name())
		}
		seen[f.Name()] = true
	}
	now := time.Now().UTC()
	return Index{id: id, description: description, fields: fields, createdAt: now, updatedAt: now}, nil
}

// Reconstruct creates an Index without validation (storage hydration).
func Reconstruct(id, description string, fields []Field, createdAt, updatedAt time.Time) Index {
	return Index{id: id, description: description, fields: fields, createdAt: createdAt, updatedAt: updatedAt}
}

// ID returns the index id.
func (i Index) ID() string { return i.id }

// Description returns the human description.
func (i Index) Description() string { return i.description }

// Fields returns the ordered field descriptors.
func (i Index) Fields() []Field { return i.fields }

// CreatedAt returns the creation timestamp.
func (i Index) CreatedAt() time.Time { return i.createdAt }

// UpdatedAt returns the last update timestamp.
func (i Index) UpdatedAt() time.Time { return i.updatedAt }

// TableName derives the storage table name for this index.
func (i Index) TableName() string { return TablePrefix + i.id }

// FieldNames returns declared field names in declaration order.
func (i Index) FieldNames() []string {
	names := make([]string, len(i.fields))
	for n, f := range i.fields {
		names[n] = f.Name()
	}
	return names
}

// FieldByName looks up a field by name.
func (i Index) FieldByName(name string) (Field, bool) {
	for _, f := range i.fields {
		if f.Name() == name {
			return f, true
		}
	}
	return Field{}, false
}

// EmbeddingFields returns the subset of fields holding vectors.
func (i Index) EmbeddingFields() []Field {
	var out []Field
	for _, f := range i.fields {
		if f.IsEmbedding() {
			out = append(out, f)
		}
	}
	return out
}
