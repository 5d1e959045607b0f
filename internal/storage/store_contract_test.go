package storage

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/shohag/formsync/internal/models"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "formsync.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := sqlite.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func newTestSubmission(id string, status models.SubmissionStatus) *models.QueuedSubmission {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.QueuedSubmission{
		ID:                 id,
		Endpoint:           "/api/records",
		Method:             http.MethodPost,
		Payload:            map[string]any{"a": float64(1), models.ClientSubmissionIDField: "tok-" + id},
		ClientSubmissionID: "tok-" + id,
		Status:             status,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func TestStore_PutRejectsDuplicateID(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sub := newTestSubmission("sub_1", models.StatusQueued)

			if err := store.Put(ctx, sub); err != nil {
				t.Fatalf("Put: %v", err)
			}
			if err := store.Put(ctx, sub); !errors.Is(err, ErrDuplicateID) {
				t.Errorf("second Put error = %v, want ErrDuplicateID", err)
			}
		})
	}
}

func TestStore_GetByIDRoundTrip(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sub := newTestSubmission("sub_1", models.StatusQueued)
			if err := store.Put(ctx, sub); err != nil {
				t.Fatalf("Put: %v", err)
			}

			got, err := store.GetByID(ctx, "sub_1")
			if err != nil {
				t.Fatalf("GetByID: %v", err)
			}
			if got.Endpoint != sub.Endpoint || got.Method != sub.Method || got.ClientSubmissionID != sub.ClientSubmissionID {
				t.Errorf("round trip mismatch: %+v", got)
			}
			if got.Payload["a"] != float64(1) {
				t.Errorf("payload round trip: %v", got.Payload)
			}
			if got.Payload[models.ClientSubmissionIDField] != sub.ClientSubmissionID {
				t.Error("payload token mismatch")
			}

			if _, err := store.GetByID(ctx, "sub_missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("missing id error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_UpdateMergesPartialFields(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sub := newTestSubmission("sub_1", models.StatusQueued)
			if err := store.Put(ctx, sub); err != nil {
				t.Fatalf("Put: %v", err)
			}

			sending := models.StatusSending
			attempts := 3
			if err := store.Update(ctx, "sub_1", Update{Status: &sending, Attempts: &attempts}); err != nil {
				t.Fatalf("Update: %v", err)
			}

			got, _ := store.GetByID(ctx, "sub_1")
			if got.Status != models.StatusSending || got.Attempts != 3 {
				t.Errorf("after update: %+v", got)
			}
			// Untouched fields survive the merge.
			if got.Endpoint != sub.Endpoint || got.ClientSubmissionID != sub.ClientSubmissionID {
				t.Errorf("merge clobbered fields: %+v", got)
			}

			lastErr := "HTTP 500: boom"
			if err := store.Update(ctx, "sub_1", Update{LastError: &lastErr}); err != nil {
				t.Fatalf("Update lastError: %v", err)
			}
			got, _ = store.GetByID(ctx, "sub_1")
			if got.LastError != lastErr || got.Attempts != 3 {
				t.Errorf("after second update: %+v", got)
			}
		})
	}
}

func TestStore_UpdateMissingEntryFails(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			queued := models.StatusQueued

			// Update must not recreate a deleted entry.
			if err := store.Update(ctx, "sub_gone", Update{Status: &queued}); !errors.Is(err, ErrNotFound) {
				t.Errorf("Update error = %v, want ErrNotFound", err)
			}
			if _, err := store.GetByID(ctx, "sub_gone"); !errors.Is(err, ErrNotFound) {
				t.Error("entry must not exist after failed update")
			}
		})
	}
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sub := newTestSubmission("sub_1", models.StatusQueued)
			if err := store.Put(ctx, sub); err != nil {
				t.Fatalf("Put: %v", err)
			}

			if err := store.Delete(ctx, "sub_1"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if err := store.Delete(ctx, "sub_1"); err != nil {
				t.Errorf("second Delete: %v", err)
			}
		})
	}
}

func TestStore_CountAndStatusIndex(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, status := range []models.SubmissionStatus{
				models.StatusQueued, models.StatusQueued, models.StatusFailed,
			} {
				sub := newTestSubmission(models.NewID("sub"), status)
				if err := store.Put(ctx, sub); err != nil {
					t.Fatalf("Put: %v", err)
				}
			}

			queued, err := store.GetByStatus(ctx, models.StatusQueued)
			if err != nil {
				t.Fatalf("GetByStatus: %v", err)
			}
			if len(queued) != 2 {
				t.Errorf("queued = %d, want 2", len(queued))
			}

			total, err := store.Count(ctx)
			if err != nil || total != 3 {
				t.Errorf("Count() = %d, %v", total, err)
			}
			failed, err := store.Count(ctx, models.StatusFailed)
			if err != nil || failed != 1 {
				t.Errorf("Count(failed) = %d, %v", failed, err)
			}
			both, err := store.Count(ctx, models.StatusQueued, models.StatusFailed)
			if err != nil || both != 3 {
				t.Errorf("Count(queued, failed) = %d, %v", both, err)
			}

			if err := store.Clear(ctx); err != nil {
				t.Fatalf("Clear: %v", err)
			}
			total, _ = store.Count(ctx)
			if total != 0 {
				t.Errorf("Count after Clear = %d", total)
			}
		})
	}
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "formsync.db")

	store, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sub := newTestSubmission("sub_persist", models.StatusQueued)
	if err := store.Put(ctx, sub); err != nil {
		t.Fatalf("Put: %v", err)
	}
	store.Close()

	reopened, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if err := reopened.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	got, err := reopened.GetByID(ctx, "sub_persist")
	if err != nil {
		t.Fatalf("GetByID after reopen: %v", err)
	}
	if got.ClientSubmissionID != sub.ClientSubmissionID {
		t.Errorf("persisted entry mismatch: %+v", got)
	}
}

func TestMemory_UnavailableAfterClose(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	store.Close()

	if err := store.Put(ctx, newTestSubmission("sub_1", models.StatusQueued)); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Put error = %v, want ErrUnavailable", err)
	}
	if _, err := store.Count(ctx); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Count error = %v, want ErrUnavailable", err)
	}
}
