// Package filter implements the binding filter engine: typed conditions over
// document attributes and meta fields, validated at construction and
// evaluated statelessly.
package filter

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"github.com/kailas-cloud/loom/internal/domain"
)

// Operation is a filter comparison operation.
type Operation string

// The thirteen supported operations. Negative forms are expressed via the
// condition's negate flag, not separate operations.
const (
	OpEquals              Operation = "equals"
	OpEqualsCI            Operation = "equals_ci"
	OpLessThan            Operation = "less_than"
	OpLessThanOrEquals    Operation = "less_than_or_equals"
	OpGreaterThan         Operation = "greater_than"
	OpGreaterThanOrEquals Operation = "greater_than_or_equals"
	OpContains            Operation = "contains"
	OpContainsCI          Operation = "contains_ci"
	OpStartsWith          Operation = "starts_with"
	OpStartsWithCI        Operation = "starts_with_ci"
	OpEndsWith            Operation = "ends_with"
	OpEndsWithCI          Operation = "ends_with_ci"
	OpIn                  Operation = "in"
)

var validOps = map[Operation]bool{
	OpEquals: true, OpEqualsCI: true,
	OpLessThan: true, OpLessThanOrEquals: true,
	OpGreaterThan: true, OpGreaterThanOrEquals: true,
	OpContains: true, OpContainsCI: true,
	OpStartsWith: true, OpStartsWithCI: true,
	OpEndsWith: true, OpEndsWithCI: true,
	OpIn: true,
}

var orderingOps = map[Operation]bool{
	OpLessThan: true, OpLessThanOrEquals: true,
	OpGreaterThan: true, OpGreaterThanOrEquals: true,
}

// stringOps require a string filter value. Plain equals is absent: it
// accepts any value including null.
var stringOps = map[Operation]bool{
	OpEqualsCI: true,
	OpContains: true, OpContainsCI: true,
	OpStartsWith: true, OpStartsWithCI: true,
	OpEndsWith: true, OpEndsWithCI: true,
}

// Combination is the logical combination of a filter's conditions.
type Combination string

// Combination constants.
const (
	CombinationAnd Combination = "AND"
	CombinationOr  Combination = "OR"
)

// Condition is one validated comparison (immutable value object).
type Condition struct {
	field     string
	operation Operation
	value     any
	negate    bool
}

// NewCondition validates and creates a Condition.
// Ordering operations require a numeric value (numeric strings are coerced
// and stored as float64); `in` requires a list, map, or string; the string
// operations require a string; `equals` accepts anything including null.
func NewCondition(field string, op Operation, value any, negate bool) (Condition, error) {
	if field == "" {
		return Condition{}, fmt.Errorf("%w: condition field is required", domain.ErrValidation)
	}
	if !validOps[op] {
		return Condition{}, fmt.Errorf("%w: unknown operation %q", domain.ErrValidation, op)
	}

	switch {
	case orderingOps[op]:
		f, ok := coerceFloat(value)
		if !ok {
			return Condition{}, fmt.Errorf("%w: operation %q requires a numeric value, got %T", domain.ErrValidation, op, value)
		}
		value = f
	case op == OpIn:
		if !isIterable(value) {
			return Condition{}, fmt.Errorf("%w: operation %q requires a list, map, or string value, got %T", domain.ErrValidation, op, value)
		}
	case stringOps[op]:
		if _, ok := value.(string); !ok {
			return Condition{}, fmt.Errorf("%w: operation %q requires a string value, got %T", domain.ErrValidation, op, value)
		}
	}

	return Condition{field: field, operation: op, value: value, negate: negate}, nil
}

// Field returns the document field the condition applies to.
func (c Condition) Field() string { return c.field }

// Operation returns the comparison operation.
func (c Condition) Operation() Operation { return c.operation }

// Value returns the comparison value (coerced form for ordering operations).
func (c Condition) Value() any { return c.value }

// Negate reports whether the final outcome is inverted.
func (c Condition) Negate() bool { return c.negate }

type conditionWire struct {
	Field     string    `json:"field"`
	Operation Operation `json:"operation"`
	Value     any       `json:"value"`
	Negate    bool      `json:"negate,omitempty"`
}

// MarshalJSON renders the wire form {field, operation, value, negate}.
func (c Condition) MarshalJSON() ([]byte, error) {
	return json.Marshal(conditionWire{Field: c.field, Operation: c.operation, Value: c.value, Negate: c.negate})
}

// UnmarshalJSON parses and validates the wire form.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var w conditionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	cond, err := NewCondition(w.Field, w.Operation, w.Value, w.Negate)
	if err != nil {
		return err
	}
	*c = cond
	return nil
}

// Filter is a validated set of conditions with a combination mode.
// The zero Filter (no conditions) matches every document.
type Filter struct {
	conditions  []Condition
	combination Combination
}

// New validates and creates a Filter. Empty combination defaults to AND.
func New(conditions []Condition, combination Combination) (Filter, error) {
	switch combination {
	case "":
		combination = CombinationAnd
	case CombinationAnd, CombinationOr:
	default:
		return Filter{}, fmt.Errorf("%w: unsupported combination %q", domain.ErrValidation, combination)
	}
	return Filter{conditions: conditions, combination: combination}, nil
}

// Conditions returns the filter's conditions.
func (f Filter) Conditions() []Condition { return f.conditions }

// Combination returns the logical combination mode.
func (f Filter) Combination() Combination {
	if f.combination == "" {
		return CombinationAnd
	}
	return f.combination
}

type filterWire struct {
	Conditions  []Condition `json:"conditions"`
	Combination Combination `json:"combination,omitempty"`
}

// MarshalJSON renders the wire form {conditions, combination}.
func (f Filter) MarshalJSON() ([]byte, error) {
	return json.Marshal(filterWire{Conditions: f.conditions, Combination: f.Combination()})
}

// UnmarshalJSON parses and validates the wire form.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var w filterWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	flt, err := New(w.Conditions, w.Combination)
	if err != nil {
		return err
	}
	*f = flt
	return nil
}

// coerceFloat converts numeric types and numeric strings to float64.
// Used only for filter-value validation; document values never coerce.
func coerceFloat(v any) (float64, bool) {
	if f, ok := numeric(v); ok {
		return f, true
	}
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}

// numeric converts strict numeric types to float64.
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func isIterable(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		return true
	default:
		return false
	}
}
