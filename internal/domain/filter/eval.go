package filter

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/kailas-cloud/loom/internal/domain"
	"github.com/kailas-cloud/loom/internal/domain/document"
)

// Matches reports whether the document satisfies every condition (AND) or at
// least one (OR). A filter with no conditions matches everything. Evaluation
// errors propagate before negation.
func (f Filter) Matches(doc document.Document) (bool, error) {
	if len(f.conditions) == 0 {
		return true, nil
	}
	if f.Combination() == CombinationOr {
		for _, c := range f.conditions {
			ok, err := c.Matches(doc)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
	for _, c := range f.conditions {
		ok, err := c.Matches(doc)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// FilterDocuments returns the matching subset of docs, preserving input
// order. Evaluation is pure over its input: repeated calls with the same
// arguments yield the same result.
func FilterDocuments(docs []document.Document, f Filter) ([]document.Document, error) {
	out := make([]document.Document, 0, len(docs))
	for _, d := range docs {
		ok, err := f.Matches(d)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// Matches evaluates the condition against one document. The negate flag
// inverts the final boolean, including the null-value branch.
func (c Condition) Matches(doc document.Document) (bool, error) {
	ok, err := apply(c.operation, resolveField(doc, c.field), c.value)
	if err != nil {
		return false, fmt.Errorf("field %q: %w", c.field, err)
	}
	if c.negate {
		return !ok, nil
	}
	return ok, nil
}

// resolveField maps a condition field to the document value: "meta."-prefixed
// names walk the meta map, anything else is a built-in attribute. Missing
// values resolve to nil.
func resolveField(doc document.Document, field string) any {
	if path, found := strings.CutPrefix(field, "meta."); found {
		v, ok := doc.MetaValue(path)
		if !ok {
			return nil
		}
		return v
	}
	return doc.Attribute(field)
}

func apply(op Operation, docValue, filterValue any) (bool, error) {
	if docValue == nil {
		return applyNull(op, filterValue)
	}

	switch op {
	case OpEquals:
		return looseEqual(docValue, filterValue), nil
	case OpEqualsCI:
		return strings.EqualFold(stringify(docValue), stringify(filterValue)), nil
	case OpLessThan, OpLessThanOrEquals, OpGreaterThan, OpGreaterThanOrEquals:
		docNum, ok := numeric(docValue)
		if !ok {
			return false, fmt.Errorf("%w: %q requires a numeric document value, got %T", domain.ErrUnsupportedOperation, op, docValue)
		}
		filterNum, _ := numeric(filterValue)
		switch op {
		case OpLessThan:
			return docNum < filterNum, nil
		case OpLessThanOrEquals:
			return docNum <= filterNum, nil
		case OpGreaterThan:
			return docNum > filterNum, nil
		default:
			return docNum >= filterNum, nil
		}
	case OpContains:
		return containsValue(docValue, filterValue.(string))
	case OpContainsCI:
		return strings.Contains(lowered(docValue), lowered(filterValue)), nil
	case OpStartsWith, OpEndsWith:
		s, ok := docValue.(string)
		if !ok {
			return false, fmt.Errorf("%w: %q requires a string document value, got %T", domain.ErrUnsupportedOperation, op, docValue)
		}
		if op == OpStartsWith {
			return strings.HasPrefix(s, filterValue.(string)), nil
		}
		return strings.HasSuffix(s, filterValue.(string)), nil
	case OpStartsWithCI:
		return strings.HasPrefix(lowered(docValue), lowered(filterValue)), nil
	case OpEndsWithCI:
		return strings.HasSuffix(lowered(docValue), lowered(filterValue)), nil
	case OpIn:
		return memberOf(docValue, filterValue)
	default:
		return false, fmt.Errorf("%w: %q", domain.ErrUnsupportedOperation, op)
	}
}

// applyNull is the null-value policy: equality compares against a null
// filter value, ordering and string operations are false, `in` tests null
// membership in the filter collection.
func applyNull(op Operation, filterValue any) (bool, error) {
	switch op {
	case OpEquals, OpEqualsCI:
		return filterValue == nil, nil
	case OpLessThan, OpLessThanOrEquals, OpGreaterThan, OpGreaterThanOrEquals,
		OpContains, OpContainsCI,
		OpStartsWith, OpStartsWithCI, OpEndsWith, OpEndsWithCI:
		return false, nil
	case OpIn:
		return nullMember(filterValue), nil
	default:
		return false, fmt.Errorf("%w: %q for null document value", domain.ErrUnsupportedOperation, op)
	}
}

// nullMember reports whether a collection filter value contains null.
// Strings and maps cannot hold null members.
func nullMember(filterValue any) bool {
	rv := reflect.ValueOf(filterValue)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if rv.Index(i).Interface() == nil {
			return true
		}
	}
	return false
}

// containsValue implements `contains`: substring for string document values,
// membership for lists, key presence for maps.
func containsValue(docValue any, want string) (bool, error) {
	switch dv := docValue.(type) {
	case string:
		return strings.Contains(dv, want), nil
	case map[string]any:
		_, ok := dv[want]
		return ok, nil
	}
	rv := reflect.ValueOf(docValue)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := 0; i < rv.Len(); i++ {
			if looseEqual(rv.Index(i).Interface(), want) {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("%w: %q requires a string, list, or map document value, got %T",
		domain.ErrUnsupportedOperation, OpContains, docValue)
}

// memberOf implements `in`: membership of the document value in the filter
// collection, substring when the filter value is a string.
func memberOf(docValue, filterValue any) (bool, error) {
	switch fv := filterValue.(type) {
	case string:
		s, ok := docValue.(string)
		if !ok {
			return false, fmt.Errorf("%w: %q over a string value requires a string document value, got %T",
				domain.ErrUnsupportedOperation, OpIn, docValue)
		}
		return strings.Contains(fv, s), nil
	case map[string]any:
		s, ok := docValue.(string)
		if !ok {
			return false, nil
		}
		_, present := fv[s]
		return present, nil
	}
	rv := reflect.ValueOf(filterValue)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := 0; i < rv.Len(); i++ {
			if looseEqual(docValue, rv.Index(i).Interface()) {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("%w: %q requires a list, map, or string value, got %T",
		domain.ErrUnsupportedOperation, OpIn, filterValue)
}

// looseEqual compares with numeric cross-type equality (10000 == 10000.0);
// everything else compares structurally.
func looseEqual(a, b any) bool {
	if af, ok := numeric(a); ok {
		bf, ok := numeric(b)
		return ok && af == bf
	}
	if _, ok := numeric(b); ok {
		return false
	}
	return reflect.DeepEqual(a, b)
}

func stringify(v any) string { return fmt.Sprint(v) }

func lowered(v any) string { return strings.ToLower(stringify(v)) }
