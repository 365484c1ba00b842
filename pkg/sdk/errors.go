package loom

import (
	"fmt"

	"github.com/kailas-cloud/loom/internal/domain"
)

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound               = domain.ErrNotFound
	ErrAlreadyExists          = domain.ErrAlreadyExists
	ErrValidation             = domain.ErrValidation
	ErrConfiguration          = domain.ErrConfiguration
	ErrSchemaRace             = domain.ErrSchemaRace
	ErrUnsupportedOperation   = domain.ErrUnsupportedOperation
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
)

// codeSentinels maps wire error codes to their sentinel.
var codeSentinels = map[string]error{
	"not_found":                    ErrNotFound,
	"already_exists":               ErrAlreadyExists,
	"validation_failed":            ErrValidation,
	"configuration_error":          ErrConfiguration,
	"schema_not_ready":             ErrSchemaRace,
	"unsupported_filter_operation": ErrUnsupportedOperation,
	"embedding_provider_error":     ErrEmbeddingProviderError,
}

// APIError is a non-2xx response decoded from the server. It unwraps to the
// sentinel matching its code, so errors.Is works across the wire.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	// BindingID is set on configuration errors that name the offending binding.
	BindingID *int64
}

func (e *APIError) Error() string {
	return fmt.Sprintf("loom: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return codeSentinels[e.Code]
}
