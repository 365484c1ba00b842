// Package worker consumes queued tasks from the priority-banded streams:
// transformer runs with record write-back, deferred ANN builds, reload
// handling, and stale-message reclaim.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/loom/internal/db"
	"github.com/kailas-cloud/loom/internal/domain"
	"github.com/kailas-cloud/loom/internal/domain/binding"
	"github.com/kailas-cloud/loom/internal/domain/transformer"
	"github.com/kailas-cloud/loom/internal/metrics"
	"github.com/kailas-cloud/loom/internal/task"
	"github.com/kailas-cloud/loom/internal/transform"
)

const (
	defaultGroup        = "loom-workers"
	defaultSlots        = 4
	defaultBlock        = 5 * time.Second
	defaultClaimEvery   = 30 * time.Second
	defaultClaimMinIdle = time.Minute
	defaultRetryDelay   = 500 * time.Millisecond

	readErrorBackoff = time.Second
	ackTTL           = time.Minute
)

// Config holds worker runtime settings.
type Config struct {
	// Name identifies this consumer within the group. Defaults to
	// hostname-pid.
	Name          string
	Group         string
	StreamPrefix  string
	Slots         int
	Block         time.Duration
	ClaimInterval time.Duration
	ClaimMinIdle  time.Duration
	// RetryDelay is the pause before the single schema-race insert retry.
	RetryDelay    time.Duration
	ReloadChannel string
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "loom-worker"
		}
		c.Name = host + "-" + strconv.Itoa(os.Getpid())
	}
	if c.Group == "" {
		c.Group = defaultGroup
	}
	if c.StreamPrefix == "" {
		c.StreamPrefix = task.DefaultStreamPrefix
	}
	if c.Slots <= 0 {
		c.Slots = defaultSlots
	}
	if c.Block <= 0 {
		c.Block = defaultBlock
	}
	if c.ClaimInterval <= 0 {
		c.ClaimInterval = defaultClaimEvery
	}
	if c.ClaimMinIdle <= 0 {
		c.ClaimMinIdle = defaultClaimMinIdle
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.ReloadChannel == "" {
		c.ReloadChannel = task.DefaultReloadChannel
	}
}

// Deps bundles the worker's collaborators.
type Deps struct {
	Queue        Queue
	Conns        db.ConnAcquirer
	Schemas      SchemaCache
	Registry     *transform.Registry
	Transformers TransformerSource
	Acks         AckStore
	Subscriber   Subscriber
	Logger       *zap.Logger
}

// Worker runs task consumption across a fixed set of slots.
type Worker struct {
	cfg      Config
	streams  []string
	bands    map[string]task.Band
	queue    Queue
	conns    db.ConnAcquirer
	schemas  SchemaCache
	registry *transform.Registry
	resolver *resolver
	acks     AckStore
	sub      Subscriber
	logger   *zap.Logger
}

// New creates a worker. Streams are derived from the prefix, in drain order.
func New(cfg Config, deps Deps) (*Worker, error) {
	switch {
	case deps.Queue == nil:
		return nil, errors.New("worker: queue is required")
	case deps.Conns == nil:
		return nil, errors.New("worker: connection source is required")
	case deps.Schemas == nil:
		return nil, errors.New("worker: schema cache is required")
	case deps.Registry == nil:
		return nil, errors.New("worker: transform registry is required")
	case deps.Transformers == nil:
		return nil, errors.New("worker: transformer source is required")
	case deps.Logger == nil:
		return nil, errors.New("worker: logger is required")
	}
	cfg.applyDefaults()

	bands := make(map[string]task.Band)
	streams := make([]string, 0, len(task.Bands()))
	for _, b := range task.Bands() {
		key := task.StreamFor(cfg.StreamPrefix, b)
		streams = append(streams, key)
		bands[key] = b
	}

	return &Worker{
		cfg:      cfg,
		streams:  streams,
		bands:    bands,
		queue:    deps.Queue,
		conns:    deps.Conns,
		schemas:  deps.Schemas,
		registry: deps.Registry,
		resolver: newResolver(deps.Transformers),
		acks:     deps.Acks,
		sub:      deps.Subscriber,
		logger:   deps.Logger,
	}, nil
}

// Run blocks until ctx is cancelled, then waits for in-flight work.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Worker starting",
		zap.String("consumer", w.cfg.Name),
		zap.String("group", w.cfg.Group),
		zap.Int("slots", w.cfg.Slots),
		zap.Strings("streams", w.streams),
	)

	var wg sync.WaitGroup
	if w.sub != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.reloadLoop(ctx)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.claimLoop(ctx)
	}()
	for i := 0; i < w.cfg.Slots; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.consumeLoop(ctx, newSlot(id, w.conns))
		}(i)
	}

	wg.Wait()
	w.logger.Info("Worker stopped", zap.String("consumer", w.cfg.Name))
	return nil
}

// consumeLoop reads one batch at a time so backlogged high bands always win.
func (w *Worker) consumeLoop(ctx context.Context, s *slot) {
	defer s.release()

	for {
		if ctx.Err() != nil {
			return
		}
		msgs, err := w.queue.XReadGroup(ctx, w.cfg.Group, w.cfg.Name, w.streams, 1, w.cfg.Block)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("Queue read failed", zap.Int("slot", s.id), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(readErrorBackoff):
			}
			continue
		}
		for _, m := range msgs {
			w.process(ctx, s, m)
		}
	}
}

// process runs one message end to end. Successful and permanently failed
// tasks are acked; transient failures stay pending for redelivery.
func (w *Worker) process(ctx context.Context, s *slot, m db.StreamMessage) {
	msg, err := task.Decode(m.Fields)
	if err != nil {
		w.logger.Error("Dropping undecodable task message",
			zap.String("stream", m.Stream),
			zap.String("entry_id", m.ID),
			zap.Error(err),
		)
		w.ack(ctx, m)
		return
	}

	band := string(w.bands[m.Stream])
	start := time.Now()
	err = w.handle(ctx, s, msg)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		metrics.TasksCompletedTotal.WithLabelValues(msg.Name, band).Inc()
		metrics.TaskDuration.WithLabelValues(msg.Name, band).Observe(elapsed.Seconds())
		w.ack(ctx, m)
		w.logger.Debug("Task completed",
			zap.String("task_id", msg.ID),
			zap.String("task_name", msg.Name),
			zap.Duration("elapsed", elapsed),
		)
	case isPermanent(err):
		metrics.TasksFailedTotal.WithLabelValues(msg.Name, band).Inc()
		w.ack(ctx, m)
		w.logger.Error("Task failed",
			zap.String("task_id", msg.ID),
			zap.String("task_name", msg.Name),
			zap.Error(err),
		)
	default:
		metrics.TasksRetriedTotal.WithLabelValues(msg.Name, "transient").Inc()
		w.logger.Warn("Task failed, leaving pending for redelivery",
			zap.String("task_id", msg.ID),
			zap.String("task_name", msg.Name),
			zap.Error(err),
		)
	}
}

func (w *Worker) ack(ctx context.Context, m db.StreamMessage) {
	if err := w.queue.XAck(ctx, m.Stream, w.cfg.Group, m.ID); err != nil {
		w.logger.Warn("Ack failed", zap.String("entry_id", m.ID), zap.Error(err))
	}
}

// handle routes a decoded message to its executor.
func (w *Worker) handle(ctx context.Context, s *slot, msg task.Message) error {
	switch {
	case msg.Name == task.NameANNBuild:
		return w.handleANNBuild(ctx, msg)
	case strings.HasPrefix(msg.Name, transformer.TaskNamePrefix):
		return w.handleTransform(ctx, s, msg)
	default:
		return fmt.Errorf("%w: unknown task %q", domain.ErrValidation, msg.Name)
	}
}

func (w *Worker) handleANNBuild(ctx context.Context, msg task.Message) error {
	indexID, _ := msg.Params[task.ParamIndexID].(string)
	field, _ := msg.Params[task.ParamField].(string)
	if indexID == "" || field == "" {
		return fmt.Errorf("%w: ann build requires %s and %s params",
			domain.ErrValidation, task.ParamIndexID, task.ParamField)
	}
	return w.schemas.BuildANNIndex(ctx, indexID, field)
}

func (w *Worker) handleTransform(ctx context.Context, s *slot, msg task.Message) error {
	if msg.Document == nil {
		return fmt.Errorf("%w: transform task %s carries no document", domain.ErrValidation, msg.ID)
	}

	id := strings.TrimPrefix(msg.Name, transformer.TaskNamePrefix)
	path, err := w.resolver.path(ctx, id)
	if err != nil {
		return fmt.Errorf("resolve transformer %q: %w", id, err)
	}
	handler, ok := w.registry.Resolve(path)
	if !ok {
		return fmt.Errorf("%w: no handler registered for %q (transformer %q)",
			domain.ErrConfiguration, path, id)
	}

	fields, err := binding.ExtractIndexFields(msg.Params)
	if err != nil {
		return err
	}

	rows, err := handler(ctx, transform.Input{
		Document: *msg.Document,
		Fields:   fields,
		Params:   msg.Params,
	})
	if err != nil {
		return fmt.Errorf("run %s: %w", path, err)
	}

	return w.writeRecords(ctx, s, msg, fields, rows)
}

// isPermanent reports whether retrying could not change the outcome.
func isPermanent(err error) bool {
	return errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrConfiguration) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrSchemaRace)
}

// resolver caches transformer id to implementation path lookups. Reloads
// clear entries so redeployed transformers resolve fresh.
type resolver struct {
	source TransformerSource
	mu     sync.RWMutex
	paths  map[string]string
}

func newResolver(source TransformerSource) *resolver {
	return &resolver{source: source, paths: make(map[string]string)}
}

func (r *resolver) path(ctx context.Context, id string) (string, error) {
	r.mu.RLock()
	p, ok := r.paths[id]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	tr, err := r.source.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if !tr.Dispatchable() {
		return "", fmt.Errorf("%w: transformer %q has no implementation path", domain.ErrConfiguration, id)
	}

	r.mu.Lock()
	r.paths[id] = tr.Path()
	r.mu.Unlock()
	return tr.Path(), nil
}

// reset drops cached lookups: the named ids, or everything when none given.
func (r *resolver) reset(ids ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(ids) == 0 {
		r.paths = make(map[string]string)
		return
	}
	for _, id := range ids {
		delete(r.paths, id)
	}
}
