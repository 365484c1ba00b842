package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/kailas-cloud/loom/internal/task"
)

func reloadPayload(t *testing.T, sig task.ReloadSignal) []byte {
	t.Helper()
	data, err := json.Marshal(sig)
	if err != nil {
		t.Fatalf("marshal signal: %v", err)
	}
	return data
}

func TestApplyReload_InvalidatesAndAcks(t *testing.T) {
	w, d := newTestWorker(t)

	// Warm the resolver so the reset is observable.
	if _, err := w.resolver.path(context.Background(), "counter1"); err != nil {
		t.Fatalf("warm resolver: %v", err)
	}

	w.applyReload(context.Background(), reloadPayload(t, task.ReloadSignal{
		Signal:      task.SignalReload,
		BroadcastID: "b42",
		Target:      "schema",
		Modules:     []string{"counter1"},
	}))

	if d.schemas.invalidatedAll != 1 {
		t.Error("reload must invalidate the layout cache")
	}
	if _, err := w.resolver.path(context.Background(), "counter1"); err != nil {
		t.Fatalf("re-resolve: %v", err)
	}
	if d.transformers.gets != 2 {
		t.Errorf("reload must evict the named transformer, got %d lookups", d.transformers.gets)
	}

	key := "loom:reload:ack:b42"
	if d.acks.incrs[key] != 1 {
		t.Errorf("expected ack counter bump for %s, got %v", key, d.acks.incrs)
	}
	if d.acks.expires[key] != time.Minute {
		t.Errorf("expected one minute ack ttl, got %v", d.acks.expires[key])
	}
}

func TestApplyReload_FullResetWhenNoModules(t *testing.T) {
	w, d := newTestWorker(t)

	if _, err := w.resolver.path(context.Background(), "counter1"); err != nil {
		t.Fatalf("warm resolver: %v", err)
	}
	if _, err := w.resolver.path(context.Background(), "counter2"); err != nil {
		t.Fatalf("warm resolver: %v", err)
	}

	w.applyReload(context.Background(), reloadPayload(t, task.ReloadSignal{
		Signal:      task.SignalReload,
		BroadcastID: "b43",
		Target:      "all",
	}))

	if _, err := w.resolver.path(context.Background(), "counter1"); err != nil {
		t.Fatal(err)
	}
	if _, err := w.resolver.path(context.Background(), "counter2"); err != nil {
		t.Fatal(err)
	}
	if d.transformers.gets != 4 {
		t.Errorf("bare reload must evict every cached transformer, got %d lookups", d.transformers.gets)
	}
}

func TestApplyReload_IgnoresMalformedPayload(t *testing.T) {
	w, d := newTestWorker(t)

	w.applyReload(context.Background(), []byte("{broken"))
	w.applyReload(context.Background(), reloadPayload(t, task.ReloadSignal{
		Signal:      "drain",
		BroadcastID: "b44",
	}))

	if d.schemas.invalidatedAll != 0 {
		t.Error("malformed broadcasts must not touch the caches")
	}
	if len(d.acks.incrs) != 0 {
		t.Error("malformed broadcasts must not be acknowledged")
	}
}

func TestReloadLoop_ResubscribesAfterError(t *testing.T) {
	w, d := newTestWorker(t)

	subs := make(chan struct{}, 4)
	d.sub.subscribeFn = func(ctx context.Context, channel string, _ func(string, []byte)) error {
		if channel != "loom:reload" {
			t.Errorf("unexpected channel %q", channel)
		}
		subs <- struct{}{}
		return context.DeadlineExceeded
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.reloadLoop(ctx)
		close(done)
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-subs:
		case <-time.After(3 * time.Second):
			t.Fatal("subscription was not re-established after an error")
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reload loop did not stop on cancel")
	}
}
