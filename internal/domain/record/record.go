// Package record defines rows of index tables: one record per transformer
// output, carrying the declared field values plus bookkeeping columns.
package record

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/loom/internal/domain"
	"github.com/kailas-cloud/loom/internal/domain/index"
)

// Reserved column names present on every index table.
const (
	ColRecordID   = "index_record_id"
	ColDocumentID = "document_id"
	ColBindingID  = "binding_id"
	ColTaskID     = "task_id"
	ColCustomID   = "custom_id"
	ColMeta       = "meta"
	ColCreatedAt  = "created_at"
	ColUpdatedAt  = "updated_at"
)

// ColText is the conventional source-text field name. The completion writer
// fills it with document content when an index declares the field and the
// transformer output leaves it unpopulated.
const ColText = "text"

// Record is one row of an index table.
type Record struct {
	id         uuid.UUID
	documentID uuid.UUID
	bindingID  int64
	taskID     string
	customID   string
	meta       map[string]any
	values     map[string]any
	createdAt  time.Time
	updatedAt  time.Time
}

// New creates a Record with a fresh id. Values must already be converted
// (see ConvertValues). Document id may be uuid.Nil for documentless rows.
func New(documentID uuid.UUID, bindingID int64, taskID, customID string,
	meta, values map[string]any,
) Record {
	now := time.Now().UTC()
	return Record{
		id:         uuid.New(),
		documentID: documentID,
		bindingID:  bindingID,
		taskID:     taskID,
		customID:   customID,
		meta:       meta,
		values:     values,
		createdAt:  now,
		updatedAt:  now,
	}
}

// Reconstruct creates a Record without validation (storage hydration).
func Reconstruct(id, documentID uuid.UUID, bindingID int64, taskID, customID string,
	meta, values map[string]any, createdAt, updatedAt time.Time,
) Record {
	return Record{
		id:         id,
		documentID: documentID,
		bindingID:  bindingID,
		taskID:     taskID,
		customID:   customID,
		meta:       meta,
		values:     values,
		createdAt:  createdAt,
		updatedAt:  updatedAt,
	}
}

// ID returns the record id.
func (r Record) ID() uuid.UUID { return r.id }

// DocumentID returns the source document id, or uuid.Nil when unset.
func (r Record) DocumentID() uuid.UUID { return r.documentID }

// BindingID returns the producing binding id, or 0 when unset.
func (r Record) BindingID() int64 { return r.bindingID }

// TaskID returns the producing task id.
func (r Record) TaskID() string { return r.taskID }

// CustomID returns the caller-supplied id.
func (r Record) CustomID() string { return r.customID }

// Meta returns the record metadata map.
func (r Record) Meta() map[string]any { return r.meta }

// Values returns the declared field values keyed by field name.
func (r Record) Values() map[string]any { return r.values }

// Value returns a single field value.
func (r Record) Value(field string) (any, bool) {
	v, ok := r.values[field]
	return v, ok
}

// CreatedAt returns the creation timestamp.
func (r Record) CreatedAt() time.Time { return r.createdAt }

// UpdatedAt returns the last update timestamp.
func (r Record) UpdatedAt() time.Time { return r.updatedAt }

// Hit is a record scored by vector distance in a nearest-neighbour query.
type Hit struct {
	Record   Record
	Distance float64
}

// ConvertValues validates raw against the index fields and converts each
// value to its storage form. Unknown field names are rejected.
func ConvertValues(fields []index.Field, raw map[string]any) (map[string]any, error) {
	byName := make(map[string]index.Field, len(fields))
	for _, f := range fields {
		byName[f.Name()] = f
	}
	out := make(map[string]any, len(raw))
	for name, v := range raw {
		f, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: index has no field %q", domain.ErrValidation, name)
		}
		converted, err := ConvertValue(f, v)
		if err != nil {
			return nil, err
		}
		out[name] = converted
	}
	return out, nil
}

// ConvertValue converts a decoded JSON value to the storage form for the
// given field. Nil stays nil for optional fields and errors otherwise.
func ConvertValue(f index.Field, raw any) (any, error) {
	if raw == nil {
		if !f.Optional() {
			return nil, fmt.Errorf("%w: field %q is not optional", domain.ErrValidation, f.Name())
		}
		return nil, nil
	}

	switch f.FieldType() {
	case index.TypeEmbedding:
		return convertEmbedding(f, raw)
	case index.TypeInt:
		return convertInt(f, raw)
	case index.TypeFloat:
		return convertFloat(f, raw)
	case index.TypeBool:
		if b, ok := raw.(bool); ok {
			return b, nil
		}
		return nil, typeMismatch(f, "bool", raw)
	case index.TypeString, index.TypeText:
		if s, ok := raw.(string); ok {
			return s, nil
		}
		return nil, typeMismatch(f, "string", raw)
	case index.TypeBytes:
		return convertBytes(f, raw)
	case index.TypeDate, index.TypeDateTime, index.TypeTime:
		// time.Time and textual literals both encode fine; Postgres casts text.
		switch raw.(type) {
		case time.Time, string:
			return raw, nil
		}
		return nil, typeMismatch(f, "timestamp or string", raw)
	case index.TypeUUID:
		return convertUUID(f, raw)
	case index.TypeObject:
		if m, ok := raw.(map[string]any); ok {
			return m, nil
		}
		return nil, typeMismatch(f, "object", raw)
	case index.TypeArray:
		if s, ok := raw.([]any); ok {
			return s, nil
		}
		return nil, typeMismatch(f, "array", raw)
	default:
		return nil, fmt.Errorf("%w: field %q has unknown type %q", domain.ErrValidation, f.Name(), f.FieldType())
	}
}

func convertEmbedding(f index.Field, raw any) (any, error) {
	var vec []float32
	switch v := raw.(type) {
	case pgvector.Vector:
		vec = v.Slice()
	case []float32:
		vec = v
	case []float64:
		vec = make([]float32, len(v))
		for i, x := range v {
			vec[i] = float32(x)
		}
	case []any:
		vec = make([]float32, len(v))
		for i, item := range v {
			x, ok := asFloat(item)
			if !ok {
				return nil, typeMismatch(f, "numeric vector", raw)
			}
			vec[i] = float32(x)
		}
	default:
		return nil, typeMismatch(f, "numeric vector", raw)
	}
	if len(vec) != f.Dims() {
		return nil, fmt.Errorf("%w: field %q expects %d dimensions, got %d",
			domain.ErrValidation, f.Name(), f.Dims(), len(vec))
	}
	return pgvector.NewVector(vec), nil
}

func convertInt(f index.Field, raw any) (any, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != float64(int64(v)) {
			return nil, fmt.Errorf("%w: field %q expects an integer, got %v", domain.ErrValidation, f.Name(), v)
		}
		return int64(v), nil
	}
	return nil, typeMismatch(f, "int", raw)
}

func convertFloat(f index.Field, raw any) (any, error) {
	if x, ok := asFloat(raw); ok {
		return x, nil
	}
	return nil, typeMismatch(f, "float", raw)
}

func convertBytes(f index.Field, raw any) (any, error) {
	switch v := raw.(type) {
	case []byte:
		return v, nil
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q expects base64 bytes: %v", domain.ErrValidation, f.Name(), err)
		}
		return decoded, nil
	}
	return nil, typeMismatch(f, "bytes", raw)
}

func convertUUID(f index.Field, raw any) (any, error) {
	switch v := raw.(type) {
	case uuid.UUID:
		return v, nil
	case string:
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q expects a uuid: %v", domain.ErrValidation, f.Name(), err)
		}
		return id, nil
	}
	return nil, typeMismatch(f, "uuid", raw)
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

func typeMismatch(f index.Field, want string, got any) error {
	return fmt.Errorf("%w: field %q expects %s, got %T", domain.ErrValidation, f.Name(), want, got)
}
