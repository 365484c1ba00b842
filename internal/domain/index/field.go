package index

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/kailas-cloud/loom/internal/domain"
)

// Type is the canonical storage type of an index field.
type Type string

// Canonical field types. Wire aliases (e.g. "str", "integer", "dict") are
// folded into these by ParseType.
const (
	TypeInt       Type = "int"
	TypeFloat     Type = "float"
	TypeBool      Type = "bool"
	TypeString    Type = "string"
	TypeText      Type = "text"
	TypeBytes     Type = "bytes"
	TypeDate      Type = "date"
	TypeDateTime  Type = "datetime"
	TypeTime      Type = "time"
	TypeUUID      Type = "uuid"
	TypeObject    Type = "object"
	TypeArray     Type = "array"
	TypeEmbedding Type = "embedding"
)

var typeAliases = map[string]Type{
	"int": TypeInt, "integer": TypeInt,
	"float": TypeFloat,
	"bool":  TypeBool, "boolean": TypeBool,
	"str": TypeString, "string": TypeString,
	"text":  TypeText,
	"bytes": TypeBytes, "bytearray": TypeBytes,
	"date":     TypeDate,
	"datetime": TypeDateTime,
	"time":     TypeTime,
	"uuid":     TypeUUID, "uuid1": TypeUUID, "uuid3": TypeUUID, "uuid4": TypeUUID, "uuid5": TypeUUID,
	"dict": TypeObject, "object": TypeObject,
	"list": TypeArray, "array": TypeArray,
	"embedding": TypeEmbedding,
}

// ParseType resolves a wire type name to its canonical Type.
func ParseType(s string) (Type, error) {
	if t, ok := typeAliases[s]; ok {
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown field type %q", domain.ErrValidation, s)
}

// Distance is the similarity metric of an embedding field.
type Distance string

// Distance metric constants.
const (
	DistanceCosine Distance = "cosine"
	DistanceL2     Distance = "l2"
	DistanceIP     Distance = "ip"
)

// IsValid checks if the distance metric is supported.
func (d Distance) IsValid() bool {
	return d == DistanceCosine || d == DistanceL2 || d == DistanceIP
}

// Column names every index table carries; field names must not collide.
var reservedFieldNames = map[string]bool{
	"index_record_id": true, "document_id": true, "binding_id": true,
	"task_id": true, "custom_id": true, "meta": true,
	"created_at": true, "updated_at": true,
}

var fieldNameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Field is an immutable value object describing one declared index column.
type Field struct {
	name      string
	fieldType Type
	optional  bool
	dims      int
	model     string
	metric    Distance
}

func validateFieldName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: field name is required", domain.ErrValidation)
	}
	if !fieldNameRegex.MatchString(name) {
		return fmt.Errorf("%w: field name %q must match %s", domain.ErrValidation, name, fieldNameRegex.String())
	}
	if reservedFieldNames[name] {
		return fmt.Errorf("%w: field name %q is reserved", domain.ErrValidation, name)
	}
	return nil
}

// NewField validates and creates a non-embedding Field.
func NewField(name string, ft Type, optional bool) (Field, error) {
	if err := validateFieldName(name); err != nil {
		return Field{}, err
	}
	if ft == TypeEmbedding {
		return Field{}, fmt.Errorf("%w: field %q: embedding fields require dims, use NewEmbeddingField", domain.ErrValidation, name)
	}
	if _, err := ParseType(string(ft)); err != nil {
		return Field{}, fmt.Errorf("field %q: %w", name, err)
	}
	return Field{name: name, fieldType: ft, optional: optional}, nil
}

// NewEmbeddingField validates and creates an embedding Field.
// Dims must be positive; metric defaults to cosine; model is informational.
func NewEmbeddingField(name string, dims int, metric Distance, model string) (Field, error) {
	if err := validateFieldName(name); err != nil {
		return Field{}, err
	}
	if dims <= 0 {
		return Field{}, fmt.Errorf("%w: field %q: embedding dims must be positive, got %d", domain.ErrValidation, name, dims)
	}
	if metric == "" {
		metric = DistanceCosine
	}
	if !metric.IsValid() {
		return Field{}, fmt.Errorf("%w: field %q: invalid distance metric %q", domain.ErrValidation, name, metric)
	}
	return Field{name: name, fieldType: TypeEmbedding, dims: dims, model: model, metric: metric}, nil
}

// ReconstructField creates a Field without validation (storage hydration).
func ReconstructField(name string, ft Type, optional bool, dims int, model string, metric Distance) Field {
	return Field{name: name, fieldType: ft, optional: optional, dims: dims, model: model, metric: metric}
}

// Name returns the field name.
func (f Field) Name() string { return f.name }

// FieldType returns the canonical field type.
func (f Field) FieldType() Type { return f.fieldType }

// Optional reports whether the column is nullable by declaration.
func (f Field) Optional() bool { return f.optional }

// IsEmbedding reports whether this is a vector column.
func (f Field) IsEmbedding() bool { return f.fieldType == TypeEmbedding }

// Dims returns the embedding dimension (0 for non-embedding fields).
func (f Field) Dims() int { return f.dims }

// Model returns the declared embedding model (informational).
func (f Field) Model() string { return f.model }

// Metric returns the embedding distance metric.
func (f Field) Metric() Distance { return f.metric }

// WireField is the JSON shape of a field declaration keyed by field name.
type WireField struct {
	Type     string         `json:"type"`
	Optional bool           `json:"optional,omitempty"`
	Extras   map[string]any `json:"extras,omitempty"`
}

// FieldsFromWire parses a name-keyed field map into an ordered descriptor
// list. Map input has no order, so fields are sorted by name to keep layouts
// deterministic.
func FieldsFromWire(m map[string]WireField) ([]Field, error) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]Field, 0, len(names))
	for _, name := range names {
		w := m[name]
		ft, err := ParseType(w.Type)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}

		var f Field
		if ft == TypeEmbedding {
			dims, ok := intExtra(w.Extras, "dims")
			if !ok {
				return nil, fmt.Errorf("%w: field %q: embedding requires extras.dims", domain.ErrValidation, name)
			}
			model, _ := w.Extras["model"].(string)
			metric := Distance("")
			if s, ok := w.Extras["distance_metric"].(string); ok {
				metric = Distance(s)
			}
			f, err = NewEmbeddingField(name, dims, metric, model)
		} else {
			f, err = NewField(name, ft, w.Optional)
		}
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// FieldsToWire renders fields back to the name-keyed JSON shape.
func FieldsToWire(fields []Field) map[string]WireField {
	m := make(map[string]WireField, len(fields))
	for _, f := range fields {
		w := WireField{Type: string(f.fieldType), Optional: f.optional}
		if f.IsEmbedding() {
			w.Extras = map[string]any{"dims": f.dims, "distance_metric": string(f.metric)}
			if f.model != "" {
				w.Extras["model"] = f.model
			}
		}
		m[f.name] = w
	}
	return m
}

// intExtra reads an integer extra that may arrive as float64 (JSON) or int.
func intExtra(extras map[string]any, key string) (int, bool) {
	switch v := extras[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
