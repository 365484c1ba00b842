package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists signals a duplicate resource.
	ErrAlreadyExists = errors.New("already exists")
	// ErrValidation signals a construction-time rejection.
	ErrValidation = errors.New("validation failed")
	// ErrConfiguration signals a fatal binding/transformer/index misconfiguration.
	ErrConfiguration = errors.New("configuration error")
	// ErrSchemaRace signals an insert against a relation not yet visible.
	ErrSchemaRace = errors.New("schema not yet visible")
	// ErrBroadcastTimeout signals that a worker broadcast got no acknowledgement in time.
	ErrBroadcastTimeout = errors.New("broadcast timed out")
	// ErrUnsupportedOperation signals a filter operation the document value cannot support.
	ErrUnsupportedOperation = errors.New("unsupported filter operation")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)

// ConfigurationError wraps ErrConfiguration with the offending binding and reason.
type ConfigurationError struct {
	BindingID int64
	Reason    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: binding %d: %s", ErrConfiguration.Error(), e.BindingID, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// NewConfigurationError creates a configuration error for a binding.
func NewConfigurationError(bindingID int64, format string, args ...any) error {
	return &ConfigurationError{BindingID: bindingID, Reason: fmt.Sprintf(format, args...)}
}

// SchemaRaceError wraps ErrSchemaRace with the missing relation and attempt count.
type SchemaRaceError struct {
	Relation string
	Attempts int
}

func (e *SchemaRaceError) Error() string {
	return fmt.Sprintf("%s: relation %q (attempt %d)", ErrSchemaRace.Error(), e.Relation, e.Attempts)
}

func (e *SchemaRaceError) Unwrap() error { return ErrSchemaRace }

// BroadcastTimeoutError wraps ErrBroadcastTimeout. Informational: callers log
// it and continue, correctness never depends on the broadcast.
type BroadcastTimeoutError struct {
	Target  string
	Timeout time.Duration
	Acks    int
}

func (e *BroadcastTimeoutError) Error() string {
	return fmt.Sprintf("%s: target %q after %s (%d acks)", ErrBroadcastTimeout.Error(), e.Target, e.Timeout, e.Acks)
}

func (e *BroadcastTimeoutError) Unwrap() error { return ErrBroadcastTimeout }
