// Package transformer defines transformer declarations: named computations a
// binding dispatches documents through. The implementation lives in the
// worker's registry; the declaration carries the reference.
package transformer

import (
	"fmt"
	"regexp"
	"time"

	"github.com/kailas-cloud/loom/internal/domain"
)

// TaskNamePrefix prepends every derived task name.
const TaskNamePrefix = "loom.transformer."

var idRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_.]+$`)

// Transformer is the stored transformer declaration (immutable value object).
type Transformer struct {
	id          string
	path        string
	description string
	createdAt   time.Time
	updatedAt   time.Time
}

// New validates and creates a Transformer.
// ID: ^[a-zA-Z][a-zA-Z0-9_.]+$, max 255 chars. Path names the worker-side
// implementation; empty means declarative only (not dispatchable).
func New(id, path, description string) (Transformer, error) {
	if id == "" {
		return Transformer{}, fmt.Errorf("%w: transformer id is required", domain.ErrValidation)
	}
	if len(id) > 255 {
		return Transformer{}, fmt.Errorf("%w: transformer id too long (max 255)", domain.ErrValidation)
	}
	if !idRegex.MatchString(id) {
		return Transformer{}, fmt.Errorf("%w: transformer id %q must match %s", domain.ErrValidation, id, idRegex.String())
	}
	now := time.Now().UTC()
	return Transformer{id: id, path: path, description: description, createdAt: now, updatedAt: now}, nil
}

// Reconstruct creates a Transformer without validation (storage hydration).
func Reconstruct(id, path, description string, createdAt, updatedAt time.Time) Transformer {
	return Transformer{id: id, path: path, description: description, createdAt: createdAt, updatedAt: updatedAt}
}

// ID returns the transformer id.
func (tr Transformer) ID() string { return tr.id }

// Path returns the worker-side implementation reference.
func (tr Transformer) Path() string { return tr.path }

// Description returns the human description.
func (tr Transformer) Description() string { return tr.description }

// CreatedAt returns the creation timestamp.
func (tr Transformer) CreatedAt() time.Time { return tr.createdAt }

// UpdatedAt returns the last update timestamp.
func (tr Transformer) UpdatedAt() time.Time { return tr.updatedAt }

// SetPath replaces the implementation reference. Empty demotes the
// transformer to declarative only.
func (tr *Transformer) SetPath(path string) {
	tr.path = path
	tr.updatedAt = time.Now().UTC()
}

// SetDescription replaces the human description.
func (tr *Transformer) SetDescription(description string) {
	tr.description = description
	tr.updatedAt = time.Now().UTC()
}

// Dispatchable reports whether the declaration names an implementation.
func (tr Transformer) Dispatchable() bool { return tr.path != "" }

// TaskName derives the queue task name for this transformer.
func (tr Transformer) TaskName() string { return TaskNamePrefix + tr.id }
