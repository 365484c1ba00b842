package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/loom/internal/task"
)

// reloadLoop subscribes for reload broadcasts, re-subscribing on transport
// errors until ctx ends.
func (w *Worker) reloadLoop(ctx context.Context) {
	for {
		err := w.sub.Subscribe(ctx, w.cfg.ReloadChannel, func(_ string, payload []byte) {
			w.applyReload(ctx, payload)
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			w.logger.Error("Reload subscription lost, retrying", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

// applyReload refreshes the worker-local caches and acknowledges the
// broadcast by bumping its counter key.
func (w *Worker) applyReload(ctx context.Context, payload []byte) {
	sig, err := task.DecodeReloadSignal(payload)
	if err != nil {
		w.logger.Warn("Ignoring malformed broadcast", zap.Error(err))
		return
	}

	w.schemas.InvalidateAll()
	w.resolver.reset(sig.Modules...)

	if w.acks != nil {
		key := task.AckKey(w.cfg.ReloadChannel, sig.BroadcastID)
		if err := w.acks.IncrBy(ctx, key, 1); err != nil {
			w.logger.Warn("Reload ack failed", zap.String("broadcast_id", sig.BroadcastID), zap.Error(err))
		} else if err := w.acks.Expire(ctx, key, ackTTL, true); err != nil {
			w.logger.Debug("Reload ack expire failed", zap.Error(err))
		}
	}

	w.logger.Info("Reload applied",
		zap.String("broadcast_id", sig.BroadcastID),
		zap.String("target", sig.Target),
		zap.Strings("modules", sig.Modules),
	)
}
