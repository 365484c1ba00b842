package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/loom/internal/db"
	"github.com/kailas-cloud/loom/internal/domain"
	"github.com/kailas-cloud/loom/internal/metrics"
)

const (
	// SignalReload instructs workers to refresh cached layouts and
	// re-resolve transformer handlers.
	SignalReload = "reload"

	// DefaultReloadChannel carries reload signals to workers.
	DefaultReloadChannel = "loom:reload"

	// DefaultBroadcastTimeout bounds the wait for worker acknowledgements.
	DefaultBroadcastTimeout = 3 * time.Second

	defaultAckPoll = 50 * time.Millisecond
)

// ReloadSignal is the wire payload published on the reload channel.
type ReloadSignal struct {
	Signal         string   `json:"signal"`
	BroadcastID    string   `json:"broadcast_id"`
	Target         string   `json:"target"`
	Modules        []string `json:"modules,omitempty"`
	TimeoutSeconds int      `json:"timeout_seconds"`
}

// DecodeReloadSignal parses a broadcast payload and rejects foreign signals.
func DecodeReloadSignal(payload []byte) (ReloadSignal, error) {
	var sig ReloadSignal
	if err := json.Unmarshal(payload, &sig); err != nil {
		return ReloadSignal{}, fmt.Errorf("decode reload signal: %w", err)
	}
	if sig.Signal != SignalReload {
		return ReloadSignal{}, fmt.Errorf("decode reload signal: unexpected signal %q", sig.Signal)
	}
	return sig, nil
}

// AckKey returns the counter key workers increment to acknowledge a
// broadcast.
func AckKey(channel, broadcastID string) string {
	return channel + ":ack:" + broadcastID
}

// Broadcaster is the pub/sub surface the notifier needs.
type Broadcaster interface {
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)
}

// AckReader polls acknowledgement counters written by workers.
type AckReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Notifier publishes schema-change signals and waits, bounded, for worker
// acknowledgements. A timeout is informational: workers also refresh
// synchronously on cache miss, so correctness never depends on delivery.
type Notifier struct {
	pub     Broadcaster
	acks    AckReader
	logger  *zap.Logger
	channel string
	timeout time.Duration
	poll    time.Duration
}

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

// WithReloadChannel overrides the pub/sub channel.
func WithReloadChannel(channel string) NotifierOption {
	return func(n *Notifier) { n.channel = channel }
}

// WithBroadcastTimeout overrides the acknowledgement wait.
func WithBroadcastTimeout(d time.Duration) NotifierOption {
	return func(n *Notifier) { n.timeout = d }
}

// WithAckPollInterval overrides how often the ack counter is polled.
func WithAckPollInterval(d time.Duration) NotifierOption {
	return func(n *Notifier) { n.poll = d }
}

// NewNotifier creates a reload notifier.
func NewNotifier(pub Broadcaster, acks AckReader, logger *zap.Logger, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		pub:     pub,
		acks:    acks,
		logger:  logger,
		channel: DefaultReloadChannel,
		timeout: DefaultBroadcastTimeout,
		poll:    defaultAckPoll,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NotifySchemaChange broadcasts a reload for target, listing the modules
// that changed. Returns a BroadcastTimeoutError when not every subscriber
// acknowledges in time; callers log it and continue.
func (n *Notifier) NotifySchemaChange(ctx context.Context, target string, modules []string) error {
	sig := ReloadSignal{
		Signal:         SignalReload,
		BroadcastID:    uuid.NewString(),
		Target:         target,
		Modules:        modules,
		TimeoutSeconds: int(n.timeout / time.Second),
	}
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("encode reload signal: %w", err)
	}

	receivers, err := n.pub.Publish(ctx, n.channel, payload)
	if err != nil {
		return fmt.Errorf("publish reload: %w", err)
	}
	if receivers == 0 {
		metrics.BroadcastsTotal.WithLabelValues("timeout").Inc()
		n.logger.Warn("Reload broadcast had no subscribers",
			zap.String("target", target),
			zap.String("channel", n.channel),
		)
		return &domain.BroadcastTimeoutError{Target: target, Timeout: n.timeout, Acks: 0}
	}

	acks := n.awaitAcks(ctx, AckKey(n.channel, sig.BroadcastID), receivers)
	if int64(acks) < receivers {
		metrics.BroadcastsTotal.WithLabelValues("timeout").Inc()
		n.logger.Warn("Reload broadcast not fully acknowledged",
			zap.String("target", target),
			zap.Int("acks", acks),
			zap.Int64("receivers", receivers),
			zap.Duration("timeout", n.timeout),
		)
		return &domain.BroadcastTimeoutError{Target: target, Timeout: n.timeout, Acks: acks}
	}

	metrics.BroadcastsTotal.WithLabelValues("acked").Inc()
	n.logger.Info("Reload broadcast acknowledged",
		zap.String("target", target),
		zap.Int64("receivers", receivers),
	)
	return nil
}

// awaitAcks polls the ack counter until every receiver answered or the
// timeout elapsed, returning the last observed count.
func (n *Notifier) awaitAcks(ctx context.Context, key string, receivers int64) int {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	ticker := time.NewTicker(n.poll)
	defer ticker.Stop()

	var acks int
	for {
		select {
		case <-ctx.Done():
			return acks
		case <-ticker.C:
			data, err := n.acks.Get(ctx, key)
			if err != nil {
				if !errors.Is(err, db.ErrKeyNotFound) && !errors.Is(err, context.DeadlineExceeded) {
					n.logger.Debug("Ack counter read failed", zap.String("key", key), zap.Error(err))
				}
				continue
			}
			count, err := strconv.Atoi(string(data))
			if err != nil {
				n.logger.Debug("Ack counter malformed", zap.String("key", key), zap.ByteString("value", data))
				continue
			}
			acks = count
			if int64(acks) >= receivers {
				return acks
			}
		}
	}
}
