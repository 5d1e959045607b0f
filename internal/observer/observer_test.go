package observer

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/shohag/formsync/internal/models"
	"github.com/shohag/formsync/internal/notify"
	"github.com/shohag/formsync/internal/queue"
	"github.com/shohag/formsync/internal/storage"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func testManager(store storage.Store) *queue.Manager {
	return queue.NewManager(queue.Config{MaxAttempts: 5}, store, zerolog.Nop())
}

func TestObserver_InitialFetchSetsReady(t *testing.T) {
	store := storage.NewMemory()
	m := testManager(store)
	bus := notify.NewBroadcaster()

	obs := New(m, bus, time.Hour, zerolog.Nop())
	obs.Start(context.Background())
	defer obs.Stop()

	if !waitFor(t, time.Second, func() bool { return obs.Stats().Ready }) {
		t.Fatal("observer never became ready")
	}
	if snap := obs.Stats(); snap.Total != 0 {
		t.Errorf("snapshot = %+v, want empty", snap)
	}
}

func TestObserver_WakesOnQueueChanged(t *testing.T) {
	store := storage.NewMemory()
	m := testManager(store)
	bus := notify.NewBroadcaster()

	// Poll interval far in the future: only a broadcast can wake it.
	obs := New(m, bus, time.Hour, zerolog.Nop())
	obs.Start(context.Background())
	defer obs.Stop()

	if !waitFor(t, time.Second, func() bool { return obs.Stats().Ready }) {
		t.Fatal("observer never became ready")
	}

	if _, err := m.Add(context.Background(), "/api/records", "", map[string]any{"a": 1}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	bus.Broadcast()

	if !waitFor(t, time.Second, func() bool { return obs.Stats().Queued == 1 }) {
		t.Fatalf("snapshot = %+v, want queued=1", obs.Stats())
	}
	if snap := obs.Stats(); snap.Total != 1 {
		t.Errorf("total = %d, want 1", snap.Total)
	}
}

func TestObserver_PollsOnInterval(t *testing.T) {
	store := storage.NewMemory()
	m := testManager(store)
	bus := notify.NewBroadcaster()

	obs := New(m, bus, 20*time.Millisecond, zerolog.Nop())
	obs.Start(context.Background())
	defer obs.Stop()

	if _, err := m.Add(context.Background(), "/api/records", "", map[string]any{"a": 1}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if !waitFor(t, time.Second, func() bool { return obs.Stats().Queued == 1 }) {
		t.Fatalf("snapshot = %+v, want queued=1", obs.Stats())
	}
}

func TestObserver_ManualRefresh(t *testing.T) {
	store := storage.NewMemory()
	m := testManager(store)
	bus := notify.NewBroadcaster()

	obs := New(m, bus, time.Hour, zerolog.Nop())

	seedFailed(t, store)
	obs.Refresh(context.Background())

	snap := obs.Stats()
	if !snap.Ready || snap.Failed != 1 || snap.Total != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func seedFailed(t *testing.T, store storage.Store) {
	t.Helper()

	sub := &models.QueuedSubmission{
		ID:                 models.NewID("sub"),
		Endpoint:           "/api/records",
		Method:             "POST",
		Payload:            map[string]any{models.ClientSubmissionIDField: "tok"},
		ClientSubmissionID: "tok",
		Status:             models.StatusFailed,
		LastError:          "HTTP 400: bad",
		CreatedAt:          time.Now().UTC(),
		UpdatedAt:          time.Now().UTC(),
	}
	if err := store.Put(context.Background(), sub); err != nil {
		t.Fatalf("Put: %v", err)
	}
}
