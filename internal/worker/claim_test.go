package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/loom/internal/db"
)

func TestClaimOnce_SweepsAllStreamsWithCursor(t *testing.T) {
	w, d := newTestWorker(t)

	stale := encoded(t, counterMsg())
	pages := map[string][][]db.StreamMessage{
		"loom:tasks:transform": {
			{{Stream: "loom:tasks:transform", ID: "1-0", Fields: stale.Fields}},
			{{Stream: "loom:tasks:transform", ID: "2-0", Fields: stale.Fields}},
		},
	}
	cursors := map[string][]string{
		"loom:tasks:transform": {"2-0", "0-0"},
	}
	var sweeps []string
	d.queue.claimFn = func(_ context.Context, stream, group, consumer string, minIdle time.Duration, start string, count int64) ([]db.StreamMessage, string, error) {
		sweeps = append(sweeps, stream+"@"+start)
		if group != "loom-workers" || consumer != "test-consumer" {
			t.Errorf("unexpected claim identity %s/%s", group, consumer)
		}
		p := pages[stream]
		if len(p) == 0 {
			return nil, "0-0", nil
		}
		pages[stream] = p[1:]
		next := cursors[stream][0]
		cursors[stream] = cursors[stream][1:]
		return p[0], next, nil
	}

	w.claimOnce(context.Background(), newSlot(w.cfg.Slots, d.conns))

	want := []string{
		"loom:tasks:interactive@0-0",
		"loom:tasks:transform@0-0",
		"loom:tasks:transform@2-0",
		"loom:tasks:background@0-0",
	}
	if len(sweeps) != len(want) {
		t.Fatalf("sweep calls: got %v, want %v", sweeps, want)
	}
	for i := range want {
		if sweeps[i] != want[i] {
			t.Errorf("sweep %d: got %q, want %q", i, sweeps[i], want[i])
		}
	}

	acked := d.queue.acked()
	if len(acked) != 2 {
		t.Fatalf("expected both reclaimed tasks processed and acked, got %v", acked)
	}
}

func TestClaimOnce_ErrorMovesToNextStream(t *testing.T) {
	w, d := newTestWorker(t)

	var sweeps []string
	d.queue.claimFn = func(_ context.Context, stream, _, _ string, _ time.Duration, start string, _ int64) ([]db.StreamMessage, string, error) {
		sweeps = append(sweeps, stream)
		if stream == "loom:tasks:interactive" {
			return nil, "", errors.New("claim unsupported")
		}
		return nil, "0-0", nil
	}

	w.claimOnce(context.Background(), newSlot(w.cfg.Slots, d.conns))

	if len(sweeps) != 3 {
		t.Fatalf("a failed sweep must not stop the pass, got %v", sweeps)
	}
}
