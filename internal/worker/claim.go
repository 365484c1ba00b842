package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/loom/internal/metrics"
)

const claimBatch = 100

// claimLoop periodically claims pending messages whose consumers stopped
// reading and runs them on its own slot. This is the at-least-once
// redelivery path for crashed workers and transiently failed tasks.
func (w *Worker) claimLoop(ctx context.Context) {
	s := newSlot(w.cfg.Slots, w.conns)
	defer s.release()

	ticker := time.NewTicker(w.cfg.ClaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.claimOnce(ctx, s)
		}
	}
}

// claimOnce sweeps every band stream, highest priority first.
func (w *Worker) claimOnce(ctx context.Context, s *slot) {
	for _, stream := range w.streams {
		start := "0-0"
		for {
			msgs, next, err := w.queue.XAutoClaim(ctx, stream, w.cfg.Group, w.cfg.Name, w.cfg.ClaimMinIdle, start, claimBatch)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.logger.Warn("Claim sweep failed", zap.String("stream", stream), zap.Error(err))
				break
			}
			if len(msgs) == 0 {
				break
			}

			metrics.TasksReclaimedTotal.Add(float64(len(msgs)))
			w.logger.Info("Reclaimed stale tasks",
				zap.Int("count", len(msgs)),
				zap.String("stream", stream),
			)
			for _, m := range msgs {
				w.process(ctx, s, m)
			}

			if next == "" || next == "0-0" {
				break
			}
			start = next
		}
	}
}
