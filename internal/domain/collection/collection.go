// Package collection defines document collections: named groups of documents
// that bindings attach to.
package collection

import (
	"fmt"
	"regexp"
	"time"

	"github.com/kailas-cloud/loom/internal/domain"
)

var idRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Config keys understood by the pipeline.
const (
	// ConfigStoreFiles marks a collection whose documents carry object-store
	// content alongside their text.
	ConfigStoreFiles = "store_files"
)

// Collection is the document collection aggregate (immutable value object).
type Collection struct {
	id          string
	description string
	config      map[string]any
	createdAt   time.Time
	updatedAt   time.Time
}

func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: collection id is required", domain.ErrValidation)
	}
	if len(id) > 255 {
		return fmt.Errorf("%w: collection id too long (max 255)", domain.ErrValidation)
	}
	if !idRegex.MatchString(id) {
		return fmt.Errorf("%w: collection id must be alphanumeric with underscores and hyphens", domain.ErrValidation)
	}
	return nil
}

// New validates and creates a Collection.
// ID: ^[A-Za-z0-9_-]+$, 1-255 chars. Nil config gets the defaults.
func New(id, description string, config map[string]any) (Collection, error) {
	if err := validateID(id); err != nil {
		return Collection{}, err
	}
	if config == nil {
		config = map[string]any{ConfigStoreFiles: true}
	}
	now := time.Now().UTC()
	return Collection{
		id:          id,
		description: description,
		config:      config,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// Reconstruct creates a Collection without validation (storage hydration).
func Reconstruct(id, description string, config map[string]any, createdAt, updatedAt time.Time) Collection {
	return Collection{id: id, description: description, config: config, createdAt: createdAt, updatedAt: updatedAt}
}

// ID returns the collection id.
func (c Collection) ID() string { return c.id }

// Description returns the human description.
func (c Collection) Description() string { return c.description }

// Config returns the collection config map.
func (c Collection) Config() map[string]any { return c.config }

// CreatedAt returns the creation timestamp.
func (c Collection) CreatedAt() time.Time { return c.createdAt }

// UpdatedAt returns the last update timestamp.
func (c Collection) UpdatedAt() time.Time { return c.updatedAt }

// SetDescription replaces the human description.
func (c *Collection) SetDescription(description string) {
	c.description = description
	c.updatedAt = time.Now().UTC()
}

// SetConfig replaces the config map. Nil restores the defaults.
func (c *Collection) SetConfig(config map[string]any) {
	if config == nil {
		config = map[string]any{ConfigStoreFiles: true}
	}
	c.config = config
	c.updatedAt = time.Now().UTC()
}

// StoresFiles reports whether documents in this collection keep object-store
// content locators that need refreshing before dispatch.
func (c Collection) StoresFiles() bool {
	v, ok := c.config[ConfigStoreFiles].(bool)
	return ok && v
}
