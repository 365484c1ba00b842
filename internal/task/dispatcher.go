package task

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/loom/internal/metrics"
)

// DefaultStreamPrefix prefixes the per-band stream keys.
const DefaultStreamPrefix = "loom:tasks:"

// Queue is the stream surface the dispatcher needs.
type Queue interface {
	XAdd(ctx context.Context, stream string, maxLen int64, fields map[string]string) (string, error)
	XGroupCreate(ctx context.Context, stream, group string) error
}

// Dispatcher enqueues task messages onto priority-banded streams.
type Dispatcher struct {
	queue  Queue
	logger *zap.Logger
	prefix string
	maxLen int64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithStreamPrefix overrides the stream key prefix.
func WithStreamPrefix(prefix string) Option {
	return func(d *Dispatcher) { d.prefix = prefix }
}

// WithMaxLen caps each band stream to approximately n entries.
func WithMaxLen(n int64) Option {
	return func(d *Dispatcher) { d.maxLen = n }
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(queue Queue, logger *zap.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:  queue,
		logger: logger,
		prefix: DefaultStreamPrefix,
		maxLen: 100000,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// StreamFor returns the stream key for a band under the given prefix.
func StreamFor(prefix string, band Band) string {
	return prefix + string(band)
}

// Streams returns all band stream keys in drain order, highest first.
func (d *Dispatcher) Streams() []string {
	bands := Bands()
	keys := make([]string, len(bands))
	for i, b := range bands {
		keys[i] = StreamFor(d.prefix, b)
	}
	return keys
}

// EnsureGroups creates the consumer group on every band stream.
func (d *Dispatcher) EnsureGroups(ctx context.Context, group string) error {
	for _, stream := range d.Streams() {
		if err := d.queue.XGroupCreate(ctx, stream, group); err != nil {
			return fmt.Errorf("create group on %s: %w", stream, err)
		}
	}
	return nil
}

// Dispatch enqueues a message onto the given band. A missing task id or
// enqueue timestamp is filled in. Returns the task id.
func (d *Dispatcher) Dispatch(ctx context.Context, band Band, msg Message) (string, error) {
	if !band.IsValid() {
		return "", fmt.Errorf("dispatch %s: unknown band %q", msg.Name, band)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now().UTC()
	}

	fields, err := msg.Encode()
	if err != nil {
		return "", fmt.Errorf("dispatch %s: %w", msg.Name, err)
	}

	stream := StreamFor(d.prefix, band)
	entryID, err := d.queue.XAdd(ctx, stream, d.maxLen, fields)
	if err != nil {
		return "", fmt.Errorf("dispatch %s to %s: %w", msg.Name, stream, err)
	}

	metrics.TasksDispatchedTotal.WithLabelValues(msg.Name, string(band)).Inc()
	d.logger.Debug("Task dispatched",
		zap.String("task_id", msg.ID),
		zap.String("task_name", msg.Name),
		zap.String("band", string(band)),
		zap.String("entry_id", entryID),
	)
	return msg.ID, nil
}

// DispatchANNBuild enqueues a deferred ANN index build on the background
// band. Satisfies the schema registry's dispatcher contract.
func (d *Dispatcher) DispatchANNBuild(ctx context.Context, indexID, field string) (string, error) {
	return d.Dispatch(ctx, BandBackground, Message{
		Name:    NameANNBuild,
		IndexID: indexID,
		Params: map[string]any{
			ParamIndexID: indexID,
			ParamField:   field,
		},
	})
}
