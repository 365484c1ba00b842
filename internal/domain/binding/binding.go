// Package binding defines the link between a collection, a transformer and
// an index. A binding routes documents from its collection through the
// transformer and lands the outputs in the index.
package binding

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/loom/internal/domain"
	"github.com/kailas-cloud/loom/internal/domain/filter"
)

// Status is the binding lifecycle state.
type Status string

// Binding statuses.
const (
	// StatusPending marks a freshly created binding that has not been
	// processed yet. No tasks are generated for pending bindings.
	StatusPending Status = "pending"
	// StatusOn marks an active binding: new documents in its collection
	// produce transformer tasks.
	StatusOn Status = "on"
	// StatusOff marks a manually paused binding.
	StatusOff Status = "off"
	// StatusDetached marks a binding whose collection, transformer or index
	// was deleted out from under it.
	StatusDetached Status = "detached"
)

// ParamIndexFields is the reserved transformer_params key holding the ordered
// list of index field names that transformer outputs are zipped against.
const ParamIndexFields = "loom_index_fields"

// ParamBand is the reserved execution_params key overriding the queue band
// the binding's tasks are dispatched on.
const ParamBand = "band"

var validStatuses = map[Status]struct{}{
	StatusPending:  {},
	StatusOn:       {},
	StatusOff:      {},
	StatusDetached: {},
}

// IsValid reports whether s is a known binding status.
func (s Status) IsValid() bool {
	_, ok := validStatuses[s]
	return ok
}

// Binding connects a collection to an index through a transformer.
type Binding struct {
	id                int64
	collectionID      string
	transformerID     string
	indexID           string
	description       string
	executionParams   map[string]any
	transformerParams map[string]any
	filter            *filter.Filter
	status            Status
	createdAt         time.Time
	updatedAt         time.Time
}

// New validates and creates a Binding in the pending state.
// The filter may be nil; nil param maps are allocated empty.
func New(collectionID, transformerID, indexID, description string,
	executionParams, transformerParams map[string]any, f *filter.Filter,
) (Binding, error) {
	if collectionID == "" {
		return Binding{}, fmt.Errorf("%w: binding requires a collection id", domain.ErrValidation)
	}
	if transformerID == "" {
		return Binding{}, fmt.Errorf("%w: binding requires a transformer id", domain.ErrValidation)
	}
	if indexID == "" {
		return Binding{}, fmt.Errorf("%w: binding requires an index id", domain.ErrValidation)
	}
	if executionParams == nil {
		executionParams = map[string]any{}
	}
	if transformerParams == nil {
		transformerParams = map[string]any{}
	}
	if fields, ok := transformerParams[ParamIndexFields]; ok {
		if _, err := normalizeIndexFields(fields); err != nil {
			return Binding{}, err
		}
	}
	now := time.Now().UTC()
	return Binding{
		collectionID:      collectionID,
		transformerID:     transformerID,
		indexID:           indexID,
		description:       description,
		executionParams:   executionParams,
		transformerParams: transformerParams,
		filter:            f,
		status:            StatusPending,
		createdAt:         now,
		updatedAt:         now,
	}, nil
}

// Reconstruct creates a Binding without validation (storage hydration).
func Reconstruct(id int64, collectionID, transformerID, indexID, description string,
	executionParams, transformerParams map[string]any, f *filter.Filter,
	status Status, createdAt, updatedAt time.Time,
) Binding {
	return Binding{
		id:                id,
		collectionID:      collectionID,
		transformerID:     transformerID,
		indexID:           indexID,
		description:       description,
		executionParams:   executionParams,
		transformerParams: transformerParams,
		filter:            f,
		status:            status,
		createdAt:         createdAt,
		updatedAt:         updatedAt,
	}
}

// ID returns the numeric binding id. Zero until persisted.
func (b Binding) ID() int64 { return b.id }

// CollectionID returns the source collection id.
func (b Binding) CollectionID() string { return b.collectionID }

// TransformerID returns the transformer id.
func (b Binding) TransformerID() string { return b.transformerID }

// IndexID returns the destination index id.
func (b Binding) IndexID() string { return b.indexID }

// Description returns the human description.
func (b Binding) Description() string { return b.description }

// ExecutionParams returns dispatch-level parameters (queue band overrides and
// similar knobs).
func (b Binding) ExecutionParams() map[string]any { return b.executionParams }

// TransformerParams returns the parameters forwarded to the transformer.
func (b Binding) TransformerParams() map[string]any { return b.transformerParams }

// Filter returns the document filter, or nil when the binding is unfiltered.
func (b Binding) Filter() *filter.Filter { return b.filter }

// Status returns the binding lifecycle status.
func (b Binding) Status() Status { return b.status }

// CreatedAt returns the creation timestamp.
func (b Binding) CreatedAt() time.Time { return b.createdAt }

// UpdatedAt returns the last update timestamp.
func (b Binding) UpdatedAt() time.Time { return b.updatedAt }

// SetID stamps the storage-assigned id onto a freshly inserted binding.
func (b *Binding) SetID(id int64) { b.id = id }

// SetDescription replaces the human description.
func (b *Binding) SetDescription(description string) {
	b.description = description
	b.updatedAt = time.Now().UTC()
}

// SetStatus transitions the binding to the given status.
func (b *Binding) SetStatus(s Status) error {
	if !s.IsValid() {
		return fmt.Errorf("%w: unknown binding status %q", domain.ErrValidation, s)
	}
	b.status = s
	b.updatedAt = time.Now().UTC()
	return nil
}

// SetFilter replaces the document filter. Nil clears it.
func (b *Binding) SetFilter(f *filter.Filter) {
	b.filter = f
	b.updatedAt = time.Now().UTC()
}

// SetExecutionParams replaces the dispatch parameters.
func (b *Binding) SetExecutionParams(params map[string]any) {
	if params == nil {
		params = map[string]any{}
	}
	b.executionParams = params
	b.updatedAt = time.Now().UTC()
}

// SetTransformerParams replaces the transformer parameters.
func (b *Binding) SetTransformerParams(params map[string]any) error {
	if params == nil {
		params = map[string]any{}
	}
	if fields, ok := params[ParamIndexFields]; ok {
		if _, err := normalizeIndexFields(fields); err != nil {
			return err
		}
	}
	b.transformerParams = params
	b.updatedAt = time.Now().UTC()
	return nil
}

// IndexFields returns the ordered index field names transformer outputs map
// to, and whether the key is set at all.
func (b Binding) IndexFields() ([]string, bool) {
	raw, ok := b.transformerParams[ParamIndexFields]
	if !ok {
		return nil, false
	}
	fields, err := normalizeIndexFields(raw)
	if err != nil {
		return nil, false
	}
	return fields, true
}

// SetIndexFields records the ordered index field names in transformer params.
func (b *Binding) SetIndexFields(fields []string) error {
	if len(fields) == 0 {
		return fmt.Errorf("%w: %s must list at least one field", domain.ErrValidation, ParamIndexFields)
	}
	if b.transformerParams == nil {
		b.transformerParams = map[string]any{}
	}
	b.transformerParams[ParamIndexFields] = fields
	b.updatedAt = time.Now().UTC()
	return nil
}

// ExtractIndexFields reads the destination field list from a transformer
// params map, as carried on task messages.
func ExtractIndexFields(params map[string]any) ([]string, error) {
	raw, ok := params[ParamIndexFields]
	if !ok {
		return nil, fmt.Errorf("%w: %s missing from transformer params", domain.ErrValidation, ParamIndexFields)
	}
	return normalizeIndexFields(raw)
}

// normalizeIndexFields coerces a raw params value into a []string.
// JSON round-trips deliver []any, direct callers pass []string.
func normalizeIndexFields(raw any) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: %s must list at least one field", domain.ErrValidation, ParamIndexFields)
		}
		return v, nil
	case []any:
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: %s must list at least one field", domain.ErrValidation, ParamIndexFields)
		}
		fields := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s entries must be strings, got %T", domain.ErrValidation, ParamIndexFields, item)
			}
			fields = append(fields, s)
		}
		return fields, nil
	default:
		return nil, fmt.Errorf("%w: %s must be a list of field names, got %T", domain.ErrValidation, ParamIndexFields, raw)
	}
}
