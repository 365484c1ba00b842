// Package transform hosts the worker-side transformer runtime: a registry of
// handler functions keyed by implementation path, plus the built-in text
// transformers.
package transform

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kailas-cloud/loom/internal/domain"
	"github.com/kailas-cloud/loom/internal/task"
)

// Row is one transformer output row, values ordered to match the binding's
// destination field list.
type Row []any

// Input carries everything a handler gets about one task.
type Input struct {
	Document task.DocumentPayload
	// Fields is the destination field list, in output order.
	Fields []string
	// Params are the binding's transformer params.
	Params map[string]any
}

// Handler executes one transformer over a document and returns zero or more
// output rows.
type Handler func(ctx context.Context, in Input) ([]Row, error)

// Registry maps implementation paths to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to an implementation path.
func (r *Registry) Register(path string, h Handler) error {
	if path == "" {
		return fmt.Errorf("%w: implementation path is required", domain.ErrValidation)
	}
	if h == nil {
		return fmt.Errorf("%w: handler for %q is nil", domain.ErrValidation, path)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[path]; ok {
		return fmt.Errorf("%w: handler for %q", domain.ErrAlreadyExists, path)
	}
	r.handlers[path] = h
	return nil
}

// Resolve returns the handler registered for an implementation path.
func (r *Registry) Resolve(path string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[path]
	return h, ok
}

// Paths lists registered implementation paths, sorted.
func (r *Registry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	paths := make([]string, 0, len(r.handlers))
	for p := range r.handlers {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Builtins returns a registry preloaded with the built-in text transformers.
// A nil embedder leaves the embeddings transformer unregistered.
func Builtins(embedder domain.Embedder) *Registry {
	r := NewRegistry()
	_ = r.Register(PathCounter, Counter())
	_ = r.Register(PathChunks, Chunks())
	if embedder != nil {
		_ = r.Register(PathEmbeddings, Embeddings(embedder))
	}
	return r
}
